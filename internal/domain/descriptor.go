package domain

import "context"

// Module drivers understood by the kernel.
const (
	DriverBuiltin = "builtin"
	DriverWASM    = "wasm"
)

// ModuleRef locates the code behind an agent: a driver name plus a
// driver-specific source (constructor key for builtin, .wasm path for wasm).
// It is the handle the registry uses to re-instantiate a handler on reload.
type ModuleRef struct {
	Driver string `json:"driver" yaml:"driver"`
	Source string `json:"source" yaml:"source"`
}

// Descriptor is the static registration record for one agent: who it is and
// how to instantiate it. Runtime state lives inside the registry.
type Descriptor struct {
	Info AgentInfo `json:"info"`
	Ref  ModuleRef `json:"module"`
}

// Driver resolves module references into live agent instances.
//
// Resolve is the registration-time check: it must fail when the reference
// cannot possibly instantiate (unknown constructor, missing file).
// Instantiate builds a fresh handler; the registry calls it on every load.
// Invalidate drops any cached compilation unit for the reference so the next
// Instantiate observes on-disk edits; drivers without a cache make it a no-op.
type Driver interface {
	Name() string
	Resolve(ref ModuleRef) error
	Instantiate(ctx context.Context, ref ModuleRef) (Agent, error)
	Invalidate(ref ModuleRef)
}

// AgentStatus is a point-in-time snapshot of one descriptor, safe to hand
// to management surfaces without holding registry locks.
type AgentStatus struct {
	AgentInfo
	Ref            ModuleRef  `json:"module"`
	State          AgentState `json:"state"`
	LoadError      string     `json:"error,omitempty"`
	TasksProcessed uint64     `json:"tasks_processed"`
	TasksFailed    uint64     `json:"tasks_failed"`
}

// Summary is the registry-wide status view. UNLOADED, ERROR and DEGRADED
// are distinct: never attempted (or cleanly removed), attempted and failed
// with a reason, and loaded but failing health checks.
type Summary struct {
	TotalAgents    int                `json:"total_agents"`
	AgentsByState  map[AgentState]int `json:"agents_by_state"`
	Agents         []AgentStatus      `json:"agents"`
	FallbackRoutes map[string]string  `json:"fallback_routes,omitempty"`
}
