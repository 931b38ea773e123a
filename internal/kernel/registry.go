package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"slate-core/internal/domain"
)

// Registry is the process-wide agent plugin kernel: descriptor store,
// lifecycle controller, capability router, health monitor target, and
// persistence subject. One instance per process, constructed at startup and
// passed explicitly to every surface that needs it.
//
// Locking protocol: r.mu guards every read or mutation of entries, order,
// fallback, and drivers. Handler hooks (Instantiate, OnLoad, OnUnload,
// Execute, HealthCheck) and lifecycle event delivery always run with the
// lock released; state changes they cause are applied in a fresh critical
// section afterwards. Subscribers may therefore re-enter the registry.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    []string // registration order, drives LoadAll
	fallback map[string]string
	drivers  map[string]domain.Driver

	bus    *Bus
	logger *slog.Logger
}

// entry is the registry's record for one agent. The instance field is
// non-nil exactly while state is ACTIVE or DEGRADED; during LOADING and
// UNLOADING the handler lives in a local variable of the operation only.
type entry struct {
	desc      domain.Descriptor
	state     domain.AgentState
	instance  domain.Agent
	loadError string
	processed uint64
	failed    uint64
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		fallback: make(map[string]string),
		drivers:  make(map[string]domain.Driver),
		bus:      NewBus(logger),
		logger:   logger,
	}
}

// RegisterDriver makes a module-reference driver available to Register and
// Load. Drivers are expected to be wired once at startup.
func (r *Registry) RegisterDriver(d domain.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// OnLifecycle subscribes fn to every state transition. Callbacks run
// synchronously after the store lock is released and must not block.
// Returns an unsubscribe function.
func (r *Registry) OnLifecycle(fn domain.LifecycleFunc) func() {
	return r.bus.Subscribe(fn)
}

// Register inserts a descriptor if its ID is new; registering an existing ID
// is a no-op that never disturbs a loaded instance. The module reference must
// resolve through a registered driver or registration fails. Returns whether
// a new descriptor was inserted.
func (r *Registry) Register(desc domain.Descriptor) (bool, error) {
	if desc.Info.ID == "" {
		return false, fmt.Errorf("%w: empty agent id", domain.ErrManifestInvalid)
	}

	r.mu.Lock()
	drv, ok := r.drivers[desc.Ref.Driver]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrDriverNotFound, desc.Ref.Driver)
	}

	// Resolve outside the lock: drivers may touch disk.
	if err := drv.Resolve(desc.Ref); err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrModuleUnresolved, desc.Ref.Source, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Info.ID]; exists {
		return false, nil
	}
	r.entries[desc.Info.ID] = &entry{desc: desc, state: domain.StateUnloaded}
	r.order = append(r.order, desc.Info.ID)

	r.logger.Debug("agent registered",
		"agent", desc.Info.ID,
		"driver", desc.Ref.Driver,
		"source", desc.Ref.Source,
	)
	return true, nil
}

// Get returns a point-in-time status for one agent.
func (r *Registry) Get(id string) (domain.AgentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.AgentStatus{}, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	return statusOf(e), nil
}

// List returns agent statuses in registration order.
func (r *Registry) List() []domain.AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AgentStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, statusOf(r.entries[id]))
	}
	return out
}

// Status returns the management summary: totals, per-state counts, per-agent
// rows, and the fallback table. UNLOADED, ERROR (with reason), and DEGRADED
// are all distinguishable in the result.
func (r *Registry) Status() domain.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := domain.Summary{
		TotalAgents:   len(r.entries),
		AgentsByState: make(map[domain.AgentState]int),
		Agents:        make([]domain.AgentStatus, 0, len(r.order)),
	}
	for _, id := range r.order {
		e := r.entries[id]
		sum.AgentsByState[e.state]++
		sum.Agents = append(sum.Agents, statusOf(e))
	}
	if len(r.fallback) > 0 {
		sum.FallbackRoutes = make(map[string]string, len(r.fallback))
		for k, v := range r.fallback {
			sum.FallbackRoutes[k] = v
		}
	}
	return sum
}

// SetFallback declares that work routed to `from` is redirected to `to`
// while `from` is DEGRADED. An empty `to` clears the route. Both IDs must be
// registered.
func (r *Registry) SetFallback(from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[from]; !ok {
		return fmt.Errorf("%w: unknown agent %q", domain.ErrFallbackInvalid, from)
	}
	if to == "" {
		delete(r.fallback, from)
		r.logger.Info("fallback route cleared", "agent", from)
		return nil
	}
	if _, ok := r.entries[to]; !ok {
		return fmt.Errorf("%w: unknown fallback agent %q", domain.ErrFallbackInvalid, to)
	}
	r.fallback[from] = to
	r.logger.Info("fallback route set", "agent", from, "fallback", to)
	return nil
}

// FallbackRoutes returns a copy of the fallback table.
func (r *Registry) FallbackRoutes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.fallback))
	for k, v := range r.fallback {
		out[k] = v
	}
	return out
}

// Shutdown unloads every loaded agent, dependents before dependencies, and
// closes the event bus. Agents that refuse to unload after the sweeps settle
// are logged and left loaded.
func (r *Registry) Shutdown(ctx context.Context) {
	for {
		progress := false
		for _, st := range r.List() {
			if !st.State.Loaded() {
				continue
			}
			if ok, _ := r.Unload(ctx, st.ID); ok {
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	for _, st := range r.List() {
		if st.State.Loaded() {
			r.logger.Warn("agent still loaded at shutdown", "agent", st.ID)
		}
	}
	r.bus.Close()
}

// statusOf builds a status row. Caller holds r.mu.
func statusOf(e *entry) domain.AgentStatus {
	return domain.AgentStatus{
		AgentInfo:      e.desc.Info,
		Ref:            e.desc.Ref,
		State:          e.state,
		LoadError:      e.loadError,
		TasksProcessed: e.processed,
		TasksFailed:    e.failed,
	}
}

// loadedDependents returns the IDs of ACTIVE/DEGRADED agents that list id as
// a dependency, sorted for stable messages. Caller holds r.mu.
func (r *Registry) loadedDependents(id string) []string {
	var deps []string
	for otherID, e := range r.entries {
		if !e.state.Loaded() {
			continue
		}
		for _, d := range e.desc.Info.Dependencies {
			if d == id {
				deps = append(deps, otherID)
				break
			}
		}
	}
	sort.Strings(deps)
	return deps
}

// generateULID returns a sortable unique ID for dispatches.
func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
