package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
)

func TestDispatchSuccess(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("CODER", capability("code", 50, "implement"))
	a.execResult = domain.Result{Success: true, Payload: map[string]any{"answer": 42}}
	register(t, r, d, a)
	loadAgents(t, r, "CODER")

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.True(t, res.Success)
	assert.Equal(t, "CODER", res.AgentID)
	assert.NotEmpty(t, res.DispatchID)
	assert.Equal(t, 42, res.Payload["answer"])
	assert.Equal(t, 1, a.execCalls)

	st, _ := r.Get("CODER")
	assert.Equal(t, uint64(1), st.TasksProcessed)
	assert.Equal(t, uint64(0), st.TasksFailed)
}

func TestDispatchNoRoute(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "anything"})
	assert.False(t, res.Success)
	assert.Equal(t, NoAgentError, res.Error)
	assert.Empty(t, res.AgentID)
}

func TestDispatchExecuteErrorCountsFailed(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("CODER", capability("code", 50, "implement"))
	a.execErr = assert.AnError
	register(t, r, d, a)
	loadAgents(t, r, "CODER")

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, assert.AnError.Error())

	st, _ := r.Get("CODER")
	assert.Equal(t, uint64(0), st.TasksProcessed)
	assert.Equal(t, uint64(1), st.TasksFailed)
}

func TestDispatchExecutePanicIsContained(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("CODER", capability("code", 50, "implement"))
	a.execPanics = true
	register(t, r, d, a)
	loadAgents(t, r, "CODER")

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic")

	st, _ := r.Get("CODER")
	assert.Equal(t, uint64(1), st.TasksFailed)

	// The agent stays loaded; a panic is a failed dispatch, not a crash.
	assert.Equal(t, domain.StateActive, st.State)
}

func TestDispatchUnsuccessfulResultStillCountsProcessed(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("CODER", capability("code", 50, "implement"))
	a.execResult = domain.Result{Success: false, Error: "model said no"}
	register(t, r, d, a)
	loadAgents(t, r, "CODER")

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.False(t, res.Success)

	st, _ := r.Get("CODER")
	assert.Equal(t, uint64(1), st.TasksProcessed,
		"a normal return counts as processed even when the agent reports failure")
	assert.Equal(t, uint64(0), st.TasksFailed)
}

func TestDispatchFallbackOnDegradedAgent(t *testing.T) {
	r, d := newTestRegistry(t)
	primary := newStubAgent("PRIMARY", capability("code", 50, "implement"))
	backup := newStubAgent("BACKUP", capability("other", 50, "unrelated"))
	register(t, r, d, primary)
	register(t, r, d, backup)
	loadAgents(t, r, "PRIMARY", "BACKUP")
	require.NoError(t, r.SetFallback("PRIMARY", "BACKUP"))

	primary.setHealthy(false)
	r.CheckAll(context.Background())
	st, _ := r.Get("PRIMARY")
	require.Equal(t, domain.StateDegraded, st.State)

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.Equal(t, "BACKUP", res.AgentID, "degraded primary must be substituted")
	assert.Equal(t, 0, primary.execCalls)
	assert.Equal(t, 1, backup.execCalls)

	bst, _ := r.Get("BACKUP")
	assert.Equal(t, uint64(1), bst.TasksProcessed, "the executing agent takes the counter")
}

func TestDispatchNoFallbackWhileHealthy(t *testing.T) {
	r, d := newTestRegistry(t)
	primary := newStubAgent("PRIMARY", capability("code", 50, "implement"))
	backup := newStubAgent("BACKUP", capability("other", 50, "unrelated"))
	register(t, r, d, primary)
	register(t, r, d, backup)
	loadAgents(t, r, "PRIMARY", "BACKUP")
	require.NoError(t, r.SetFallback("PRIMARY", "BACKUP"))

	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.Equal(t, "PRIMARY", res.AgentID, "fallback never applies to a healthy agent")
}

func TestDispatchDegradedWithoutViableFallbackKeepsAgent(t *testing.T) {
	r, d := newTestRegistry(t)
	primary := newStubAgent("PRIMARY", capability("code", 50, "implement"))
	backup := newStubAgent("BACKUP")
	register(t, r, d, primary)
	register(t, r, d, backup)
	loadAgents(t, r, "PRIMARY")
	require.NoError(t, r.SetFallback("PRIMARY", "BACKUP"))

	primary.setHealthy(false)
	r.CheckAll(context.Background())

	// BACKUP is registered but not loaded: the degraded primary still works.
	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.Equal(t, "PRIMARY", res.AgentID)
	assert.Equal(t, 1, primary.execCalls)
}

func TestDispatchFallbackRequiresActiveSubstitute(t *testing.T) {
	r, d := newTestRegistry(t)
	primary := newStubAgent("PRIMARY", capability("code", 50, "implement"))
	backup := newStubAgent("BACKUP", capability("other", 50, "unrelated"))
	register(t, r, d, primary)
	register(t, r, d, backup)
	loadAgents(t, r, "PRIMARY", "BACKUP")
	require.NoError(t, r.SetFallback("PRIMARY", "BACKUP"))

	primary.setHealthy(false)
	backup.setHealthy(false)
	r.CheckAll(context.Background())

	// Both degraded: a degraded substitute is not viable.
	res := r.Dispatch(context.Background(), domain.WorkItem{Title: "implement it"})
	assert.Equal(t, "PRIMARY", res.AgentID)
}
