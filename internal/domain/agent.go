package domain

import "context"

// AgentState is the lifecycle state of a registered agent.
type AgentState string

const (
	StateUnloaded  AgentState = "unloaded"
	StateLoading   AgentState = "loading"
	StateActive    AgentState = "active"
	StateDegraded  AgentState = "degraded"
	StateUnloading AgentState = "unloading"
	StateError     AgentState = "error"
)

// Loaded reports whether the state implies a live handler instance.
// The registry maintains: instance != nil exactly when Loaded() is true.
func (s AgentState) Loaded() bool {
	return s == StateActive || s == StateDegraded
}

// Transient reports whether the state is an in-flight transition.
// Operations on an agent in a transient state are rejected until the
// transition resolves.
func (s AgentState) Transient() bool {
	return s == StateLoading || s == StateUnloading
}

// DefaultPriority is assigned to capabilities that do not declare one.
// Lower values win routing ties; 0 is the highest priority.
const DefaultPriority = 50

// Capability is a routing advertisement declared by an agent. Capabilities
// are immutable after declaration.
type Capability struct {
	Name        string   `json:"name"`
	Patterns    []string `json:"patterns"`
	RequiresGPU bool     `json:"requires_gpu,omitempty"`
	GPUMemoryMB int      `json:"gpu_memory_mb,omitempty"`
	CPUCores    int      `json:"cpu_cores,omitempty"`
	Priority    int      `json:"priority"`
	Description string   `json:"description,omitempty"`
}

// AgentInfo is the static identity an agent declares about itself.
type AgentInfo struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	RequiresGPU  bool     `json:"requires_gpu,omitempty" yaml:"requires_gpu"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies"`
}

// Health is the outcome of a single agent health probe. Detail carries
// free-form diagnostics (model availability, queue depth, ...).
type Health struct {
	Healthy bool           `json:"healthy"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// HealthReport is one agent's row in a health sweep: the probe outcome plus
// the lifecycle state the sweep left the agent in. Error carries the message
// when the probe itself blew up (treated as unhealthy).
type HealthReport struct {
	Healthy bool           `json:"healthy"`
	State   AgentState     `json:"state"`
	Detail  map[string]any `json:"detail,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Agent is the contract every pluggable handler implements. The registry
// owns the only long-lived reference to a loaded instance.
//
// Capabilities must be pure and cheap: it is consulted on every routing
// decision. Execute is where real work happens and may block; callers that
// need bounded latency supply a context deadline. OnLoad returning false
// vetoes the load without being an error.
type Agent interface {
	Info() AgentInfo
	Capabilities() []Capability
	OnLoad(ctx context.Context) (bool, error)
	OnUnload(ctx context.Context) error
	Execute(ctx context.Context, item WorkItem) (Result, error)
	HealthCheck(ctx context.Context) Health
}
