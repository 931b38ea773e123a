package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
)

func capability(name string, priority int, patterns ...string) domain.Capability {
	return domain.Capability{Name: name, Priority: priority, Patterns: patterns}
}

func loadAgents(t *testing.T, r *Registry, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		ok, err := r.Load(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestRouteConfidenceWins(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("CODER", capability("code", 50, "implement", "fix")))
	register(t, r, d, newStubAgent("PLANNER", capability("plan", 50, "implement", "plan", "design", "doc")))
	loadAgents(t, r, "CODER", "PLANNER")

	// CODER matches 2/2 = 1.0; PLANNER matches 1/4 = 0.25.
	dec, ok := r.Route(domain.WorkItem{Title: "implement and fix the parser"})
	require.True(t, ok)
	assert.Equal(t, "CODER", dec.AgentID)
	assert.InDelta(t, 1.0, dec.Confidence, 1e-9)
}

func TestRoutePriorityBreaksConfidenceTie(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("LOW", capability("a", 50, "test")))
	register(t, r, d, newStubAgent("HIGH", capability("b", 10, "test")))
	loadAgents(t, r, "LOW", "HIGH")

	dec, ok := r.Route(domain.WorkItem{Title: "test the build"})
	require.True(t, ok)
	assert.Equal(t, "HIGH", dec.AgentID, "equal confidence: lower priority number wins")
}

func TestRouteRegistrationOrderBreaksFullTie(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("FIRST", capability("a", 50, "test")))
	register(t, r, d, newStubAgent("SECOND", capability("b", 50, "test")))
	loadAgents(t, r, "FIRST", "SECOND")

	dec, ok := r.Route(domain.WorkItem{Title: "test it"})
	require.True(t, ok)
	assert.Equal(t, "FIRST", dec.AgentID)
}

func TestRouteNoMatch(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("CODER", capability("code", 50, "implement")))
	loadAgents(t, r, "CODER")

	_, ok := r.Route(domain.WorkItem{Title: "water the plants"})
	assert.False(t, ok, "zero pattern matches must never route")
}

func TestRouteCaseInsensitiveOverTitleAndDescription(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("CODER", capability("code", 50, "Implement")))
	loadAgents(t, r, "CODER")

	dec, ok := r.Route(domain.WorkItem{Title: "misc", Description: "please IMPLEMENT this"})
	require.True(t, ok)
	assert.Equal(t, "CODER", dec.AgentID)
}

func TestRouteSkipsUnloadedAgents(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("CODER", capability("code", 50, "implement")))

	_, ok := r.Route(domain.WorkItem{Title: "implement it"})
	assert.False(t, ok, "registered but unloaded agents take no work")
}

func TestRouteIncludesDegradedAgents(t *testing.T) {
	r, d := newTestRegistry(t)
	a := newStubAgent("CODER", capability("code", 50, "implement"))
	register(t, r, d, a)
	loadAgents(t, r, "CODER")

	a.setHealthy(false)
	r.CheckAll(context.Background())
	st, _ := r.Get("CODER")
	require.Equal(t, domain.StateDegraded, st.State)

	_, ok := r.Route(domain.WorkItem{Title: "implement it"})
	assert.True(t, ok, "degraded agents still participate in routing")
}

func TestRouteOnMockPatterns(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("MOCKER", capability("mocking", 50, "mock", "test", "fake")))
	loadAgents(t, r, "MOCKER")

	dec, ok := r.Route(domain.WorkItem{Title: "add a mock for the fake test backend"})
	require.True(t, ok)
	assert.Equal(t, "MOCKER", dec.AgentID)
	assert.InDelta(t, 1.0, dec.Confidence, 1e-9)
}

func TestCandidatesSortedBestFirst(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("A", capability("a", 50, "test", "verify")))
	register(t, r, d, newStubAgent("B", capability("b", 10, "test")))
	loadAgents(t, r, "A", "B")

	cands := r.Candidates(domain.WorkItem{Title: "test and verify"})
	require.Len(t, cands, 2)
	// Both score 1.0; B's priority 10 beats A's 50.
	assert.Equal(t, "B", cands[0].AgentID)
	assert.Equal(t, "A", cands[1].AgentID)
}

func TestCandidatesMultipleCapabilitiesPerAgent(t *testing.T) {
	r, d := newTestRegistry(t)
	register(t, r, d, newStubAgent("MULTI",
		capability("bench", 25, "benchmark"),
		capability("hw", 35, "gpu", "memory"),
	))
	loadAgents(t, r, "MULTI")

	// bench matches 1/1 = 1.0, hw matches 1/2 = 0.5.
	cands := r.Candidates(domain.WorkItem{Title: "benchmark the gpu"})
	require.Len(t, cands, 2)
	assert.Equal(t, "bench", cands[0].Capability)
	assert.Equal(t, "hw", cands[1].Capability)
}
