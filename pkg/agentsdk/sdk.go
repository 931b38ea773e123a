// Package agentsdk provides types and helpers for slate agent developers.
//
// NOTE: This package re-exports internal/domain via type aliases. It is
// usable by agents that live inside the slate-core module (builtin agents).
// Out-of-tree agent authors target the WASM ABI instead; see
// pkg/agentsdk/wasm for the guest contract and wire types.
package agentsdk

import (
	"context"

	"slate-core/internal/domain"
)

// Re-exported domain types for agent developers.
type (
	Agent      = domain.Agent
	AgentInfo  = domain.AgentInfo
	AgentState = domain.AgentState
	Capability = domain.Capability
	Health     = domain.Health
	WorkItem   = domain.WorkItem
	Result     = domain.Result
	ModuleRef  = domain.ModuleRef
	Descriptor = domain.Descriptor
)

// Re-exported lifecycle states.
const (
	StateUnloaded  = domain.StateUnloaded
	StateLoading   = domain.StateLoading
	StateActive    = domain.StateActive
	StateDegraded  = domain.StateDegraded
	StateUnloading = domain.StateUnloading
	StateError     = domain.StateError
)

// Re-exported driver names.
const (
	DriverBuiltin = domain.DriverBuiltin
	DriverWASM    = domain.DriverWASM
)

// DefaultPriority is assigned to capabilities that do not declare one.
const DefaultPriority = domain.DefaultPriority

// BaseAgent provides default implementations for everything except Execute.
// Embed it and override the methods your agent needs; a bare embed yields an
// always-healthy agent that loads unconditionally.
type BaseAgent struct {
	info AgentInfo
	caps []Capability
}

// NewBaseAgent creates a BaseAgent with the given identity and capabilities.
func NewBaseAgent(info AgentInfo, caps []Capability) BaseAgent {
	return BaseAgent{info: info, caps: caps}
}

func (b BaseAgent) Info() AgentInfo                      { return b.info }
func (b BaseAgent) Capabilities() []Capability           { return b.caps }
func (b BaseAgent) OnLoad(context.Context) (bool, error) { return true, nil }
func (b BaseAgent) OnUnload(context.Context) error       { return nil }
func (b BaseAgent) HealthCheck(context.Context) Health   { return Health{Healthy: true} }
