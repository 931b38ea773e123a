package kernel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
)

// eventRecorder collects lifecycle events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func recordEvents(r *Registry) *eventRecorder {
	rec := &eventRecorder{}
	r.OnLifecycle(func(ev domain.LifecycleEvent) {
		rec.mu.Lock()
		rec.events = append(rec.events, ev)
		rec.mu.Unlock()
	})
	return rec
}

func (rec *eventRecorder) all() []domain.LifecycleEvent {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]domain.LifecycleEvent, len(rec.events))
	copy(out, rec.events)
	return out
}

func (rec *eventRecorder) transitions() []string {
	var out []string
	for _, ev := range rec.all() {
		out = append(out, ev.AgentID+":"+string(ev.From)+"->"+string(ev.To))
	}
	return out
}

func TestLoadSuccess(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	register(t, r, d, a)
	rec := recordEvents(r)

	ok, err := r.Load(context.Background(), "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, a.loadCalls)

	st, err := r.Get("ALPHA")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, st.State)
	assert.Empty(t, st.LoadError)

	assert.Equal(t, []string{
		"ALPHA:unloaded->loading",
		"ALPHA:loading->active",
	}, rec.transitions())
}

func TestLoadIdempotent(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	register(t, r, d, a)

	ctx := context.Background()
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)

	rec := recordEvents(r)
	ok, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, a.loadCalls, "second load must not re-run the hook")
	assert.Empty(t, rec.all(), "second load must not emit events")
}

func TestLoadUnknownAgent(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestLoadWhileTransient(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("ALPHA"))

	r.mu.Lock()
	r.entries["ALPHA"].state = domain.StateLoading
	r.mu.Unlock()

	_, err := r.Load(context.Background(), "ALPHA")
	assert.ErrorIs(t, err, domain.ErrAgentBusy)

	_, err = r.Unload(context.Background(), "ALPHA")
	assert.ErrorIs(t, err, domain.ErrAgentBusy)
}

func TestLoadMissingDependency(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("BETA"), "ALPHA")

	ok, err := r.Load(context.Background(), "BETA")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependency: ALPHA")

	st, _ := r.Get("BETA")
	assert.Equal(t, domain.StateError, st.State)
	assert.Contains(t, st.LoadError, "ALPHA")
}

func TestLoadDependencyMustBeLoaded(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("ALPHA"))
	register(t, r, d, newStubAgent("BETA"), "ALPHA")

	ctx := context.Background()
	// Registered but unloaded does not satisfy the gate.
	_, err := r.Load(ctx, "BETA")
	assert.Contains(t, err.Error(), "missing dependency: ALPHA")

	_, err = r.Load(ctx, "ALPHA")
	require.NoError(t, err)
	ok, err := r.Load(ctx, "BETA")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadRefusedByHook(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	a.refuseLoad = true
	register(t, r, d, a)
	rec := recordEvents(r)

	ok, err := r.Load(context.Background(), "ALPHA")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_load refused")

	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateError, st.State)
	assert.Equal(t, []string{
		"ALPHA:unloaded->loading",
		"ALPHA:loading->error",
	}, rec.transitions())
}

func TestLoadHookPanicIsContained(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	a.loadPanics = true
	register(t, r, d, a)

	ok, err := r.Load(context.Background(), "ALPHA")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateError, st.State)
}

func TestLoadAfterErrorRetries(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	a.refuseLoad = true
	register(t, r, d, a)

	ctx := context.Background()
	_, _ = r.Load(ctx, "ALPHA")
	st, _ := r.Get("ALPHA")
	require.Equal(t, domain.StateError, st.State)

	a.refuseLoad = false
	ok, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)

	st, _ = r.Get("ALPHA")
	assert.Equal(t, domain.StateActive, st.State)
	assert.Empty(t, st.LoadError, "load error must clear on a successful retry")
}

func TestUnloadSuccess(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	register(t, r, d, a)

	ctx := context.Background()
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)

	rec := recordEvents(r)
	ok, err := r.Unload(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, a.unloadCalls)

	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateUnloaded, st.State)
	assert.Equal(t, []string{
		"ALPHA:active->unloading",
		"ALPHA:unloading->unloaded",
	}, rec.transitions())
}

func TestUnloadNotLoaded(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("ALPHA"))

	ok, err := r.Unload(context.Background(), "ALPHA")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNotLoaded)
}

func TestUnloadRefusedWithLoadedDependents(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("ALPHA"))
	register(t, r, d, newStubAgent("BETA"), "ALPHA")

	ctx := context.Background()
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)
	_, err = r.Load(ctx, "BETA")
	require.NoError(t, err)

	ok, err := r.Unload(ctx, "ALPHA")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrHasDependents)
	assert.Contains(t, err.Error(), "BETA")

	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateActive, st.State, "refused unload must not change state")

	// Once the dependent is gone the unload proceeds.
	_, err = r.Unload(ctx, "BETA")
	require.NoError(t, err)
	ok, err = r.Unload(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnloadHookErrorStillUnloads(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	a.unloadErr = assert.AnError
	register(t, r, d, a)

	ctx := context.Background()
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)

	ok, err := r.Unload(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateUnloaded, st.State)
}

func TestReloadInvalidatesModuleSlot(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	register(t, r, d, a)

	ctx := context.Background()
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)

	ok, err := r.Reload(ctx, "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"ALPHA"}, d.invalidated)
	assert.Equal(t, 1, a.unloadCalls)
	assert.Equal(t, 2, a.loadCalls)

	st, _ := r.Get("ALPHA")
	assert.Equal(t, domain.StateActive, st.State)
}

func TestReloadNeverLoadedActsAsLoad(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	register(t, r, d, a)

	ok, err := r.Reload(context.Background(), "ALPHA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, a.unloadCalls)
	assert.Equal(t, 1, a.loadCalls)
}

func TestLoadAllRegistrationOrderNoTopoSort(t *testing.T) {
	r, d := newTestRegistry(t)
	// Dependent registered before its dependency: the first pass fails it.
	register(t, r, d, newStubAgent("TOP"), "BASE")
	register(t, r, d, newStubAgent("BASE"))

	results := r.LoadAll(context.Background())
	assert.False(t, results["TOP"])
	assert.True(t, results["BASE"])

	st, _ := r.Get("TOP")
	assert.Equal(t, domain.StateError, st.State)
	assert.Contains(t, st.LoadError, "BASE")
}

func TestLoadAllOrderedCorrectly(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("BASE"))
	register(t, r, d, newStubAgent("TOP"), "BASE")

	results := r.LoadAll(context.Background())
	assert.True(t, results["BASE"])
	assert.True(t, results["TOP"])
}

func TestInstanceStateInvariant(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("ALPHA")
	a.refuseLoad = true
	register(t, r, d, a)

	checkInvariant := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, e := range r.entries {
			if e.state.Loaded() {
				assert.NotNil(t, e.instance, id)
			} else {
				assert.Nil(t, e.instance, id)
			}
		}
	}

	ctx := context.Background()
	checkInvariant()
	_, _ = r.Load(ctx, "ALPHA") // fails in ERROR
	checkInvariant()

	a.refuseLoad = false
	_, err := r.Load(ctx, "ALPHA")
	require.NoError(t, err)
	checkInvariant()

	_, err = r.Unload(ctx, "ALPHA")
	require.NoError(t, err)
	checkInvariant()
}

func TestLifecycleCallbackMayReenter(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("ALPHA"))

	// A subscriber that re-enters the registry must not deadlock.
	var states []domain.AgentState
	r.OnLifecycle(func(ev domain.LifecycleEvent) {
		st, err := r.Get(ev.AgentID)
		require.NoError(t, err)
		states = append(states, st.State)
	})

	_, err := r.Load(context.Background(), "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentState{domain.StateLoading, domain.StateActive}, states)
}
