package kernel

import (
	"context"
	"fmt"
	"time"

	"slate-core/internal/domain"
	"slate-core/internal/infra/tracer"
)

// Load brings a registered agent to ACTIVE. Loading an agent that is already
// ACTIVE or DEGRADED returns true immediately with no duplicate events and no
// second OnLoad call. The returned bool mirrors whether the agent ended up
// loaded; the error carries the reason when it did not.
//
// The sequence is: state → LOADING (event), dependency check, driver
// instantiation, OnLoad hook, then state → ACTIVE (event) or ERROR. Hook and
// driver calls run with the store lock released; every state change happens
// in its own critical section.
func (r *Registry) Load(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.StartSpan(ctx, "kernel.load")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent.id", id))

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	if e.state.Loaded() {
		r.mu.Unlock()
		return true, nil
	}
	if e.state.Transient() {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s is %s", domain.ErrAgentBusy, id, e.state)
	}

	desc := e.desc
	drv, hasDriver := r.drivers[desc.Ref.Driver]

	// Missing dependencies are determined here, under the same lock that
	// flips the state to LOADING, so a concurrent unload of a dependency
	// cannot slip between the check and the transition.
	var missing string
	for _, dep := range desc.Info.Dependencies {
		de, found := r.entries[dep]
		if !found || !de.state.Loaded() {
			missing = dep
			break
		}
	}

	ev := r.transition(e, domain.StateLoading, "")
	r.mu.Unlock()
	r.bus.Publish(ev)

	fail := func(reason string) (bool, error) {
		r.mu.Lock()
		e.loadError = reason
		ev := r.transition(e, domain.StateError, reason)
		r.mu.Unlock()
		r.bus.Publish(ev)
		r.logger.Error("agent load failed", "agent", id, "reason", reason)
		err := fmt.Errorf("load %s: %s", id, reason)
		tracer.RecordError(span, err)
		return false, err
	}

	if missing != "" {
		return fail(fmt.Sprintf("missing dependency: %s", missing))
	}
	if !hasDriver {
		return fail(fmt.Sprintf("driver %q not registered", desc.Ref.Driver))
	}

	inst, err := instantiate(ctx, drv, desc.Ref)
	if err != nil {
		return fail(err.Error())
	}

	ok, err = safeOnLoad(ctx, inst)
	if err != nil {
		return fail(fmt.Sprintf("on_load: %v", err))
	}
	if !ok {
		return fail("on_load refused")
	}

	r.mu.Lock()
	e.instance = inst
	e.loadError = ""
	ev = r.transition(e, domain.StateActive, "")
	r.mu.Unlock()
	r.bus.Publish(ev)

	r.logger.Info("agent loaded",
		"agent", id,
		"name", desc.Info.Name,
		"version", desc.Info.Version,
	)
	tracer.SetOK(span)
	return true, nil
}

// Unload removes a loaded agent, running its OnUnload hook first. It refuses
// while any ACTIVE or DEGRADED agent lists id as a dependency: dependents
// must be unloaded first. Unloading an agent that is not loaded returns
// false without events.
func (r *Registry) Unload(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.StartSpan(ctx, "kernel.unload")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent.id", id))

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	if e.state.Transient() {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s is %s", domain.ErrAgentBusy, id, e.state)
	}
	if !e.state.Loaded() {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s is %s", domain.ErrNotLoaded, id, e.state)
	}
	if deps := r.loadedDependents(id); len(deps) > 0 {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s is required by %v", domain.ErrHasDependents, id, deps)
		tracer.RecordError(span, err)
		return false, err
	}

	// The instance moves to a local for the duration of UNLOADING so the
	// instance/state invariant holds at every observable point.
	inst := e.instance
	e.instance = nil
	ev := r.transition(e, domain.StateUnloading, "")
	r.mu.Unlock()
	r.bus.Publish(ev)

	if err := safeOnUnload(ctx, inst); err != nil {
		r.logger.Warn("on_unload error", "agent", id, "error", err)
	}

	r.mu.Lock()
	ev = r.transition(e, domain.StateUnloaded, "")
	r.mu.Unlock()
	r.bus.Publish(ev)

	r.logger.Info("agent unloaded", "agent", id)
	tracer.SetOK(span)
	return true, nil
}

// Reload hot-reloads an agent: unload (ignored when not loaded), invalidate
// the driver's cached module so the next instantiation observes on-disk
// edits, then load.
func (r *Registry) Reload(ctx context.Context, id string) (bool, error) {
	// A never-loaded agent reloads into its first load; unload errors other
	// than that surface through the Load below if they matter.
	_, _ = r.Unload(ctx, id)

	r.mu.Lock()
	var drv domain.Driver
	var ref domain.ModuleRef
	if e, ok := r.entries[id]; ok {
		drv = r.drivers[e.desc.Ref.Driver]
		ref = e.desc.Ref
	}
	r.mu.Unlock()

	if drv != nil {
		drv.Invalidate(ref)
	}
	return r.Load(ctx, id)
}

// LoadAll attempts Load on every registered agent in registration order.
// There is no topological sort: a dependent registered before its dependency
// fails on the first pass. Operators order agents by manifest file naming.
func (r *Registry) LoadAll(ctx context.Context) map[string]bool {
	r.mu.Lock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.Unlock()

	results := make(map[string]bool, len(ids))
	for _, id := range ids {
		ok, _ := r.Load(ctx, id)
		results[id] = ok
	}
	return results
}

// transition mutates the entry state and builds the event to publish once
// the lock is released. Caller holds r.mu.
func (r *Registry) transition(e *entry, to domain.AgentState, reason string) domain.LifecycleEvent {
	from := e.state
	e.state = to
	return domain.LifecycleEvent{
		AgentID: e.desc.Info.ID,
		From:    from,
		To:      to,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
}

// instantiate calls the driver with panic recovery; a panicking driver is a
// load failure, never a crash.
func instantiate(ctx context.Context, drv domain.Driver, ref domain.ModuleRef) (inst domain.Agent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst, err = nil, fmt.Errorf("instantiate panic: %v", rec)
		}
	}()
	return drv.Instantiate(ctx, ref)
}

// safeOnLoad invokes the OnLoad hook with panic recovery.
func safeOnLoad(ctx context.Context, a domain.Agent) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("panic: %v", rec)
		}
	}()
	return a.OnLoad(ctx)
}

// safeOnUnload invokes the OnUnload hook with panic recovery.
func safeOnUnload(ctx context.Context, a domain.Agent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return a.OnUnload(ctx)
}
