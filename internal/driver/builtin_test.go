package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
	"slate-core/pkg/agentsdk"
)

func echoFactory(id string) Factory {
	return func() domain.Agent {
		base := agentsdk.NewBaseAgent(domain.AgentInfo{ID: id, Version: "1.0.0"}, nil)
		return &echoAgent{BaseAgent: base}
	}
}

type echoAgent struct {
	agentsdk.BaseAgent
}

func (a *echoAgent) Execute(_ context.Context, item domain.WorkItem) (domain.Result, error) {
	return domain.Result{Success: true, Payload: map[string]any{"echo": item.Title}}, nil
}

func TestBuiltinResolve(t *testing.T) {
	b := NewBuiltin()
	b.Add("echo", echoFactory("ECHO"))

	assert.NoError(t, b.Resolve(domain.ModuleRef{Driver: domain.DriverBuiltin, Source: "echo"}))
	assert.Error(t, b.Resolve(domain.ModuleRef{Driver: domain.DriverBuiltin, Source: "ghost"}))
}

func TestBuiltinInstantiateFreshPerLoad(t *testing.T) {
	b := NewBuiltin()
	b.Add("echo", echoFactory("ECHO"))
	ref := domain.ModuleRef{Driver: domain.DriverBuiltin, Source: "echo"}

	first, err := b.Instantiate(context.Background(), ref)
	require.NoError(t, err)
	second, err := b.Instantiate(context.Background(), ref)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "restart-and-reattach: every load is a fresh value")
	assert.Equal(t, "ECHO", first.Info().ID)
}

func TestBuiltinInstantiateUnknownKey(t *testing.T) {
	b := NewBuiltin()
	_, err := b.Instantiate(context.Background(), domain.ModuleRef{Source: "ghost"})
	assert.Error(t, err)
}

func TestBuiltinKeysSorted(t *testing.T) {
	b := NewBuiltin()
	b.Add("zeta", echoFactory("Z"))
	b.Add("alpha", echoFactory("A"))
	b.Add("mu", echoFactory("M"))
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, b.Keys())
}

func TestBuiltinInvalidateIsNoOp(t *testing.T) {
	b := NewBuiltin()
	b.Add("echo", echoFactory("ECHO"))
	ref := domain.ModuleRef{Driver: domain.DriverBuiltin, Source: "echo"}

	b.Invalidate(ref)
	assert.NoError(t, b.Resolve(ref), "builtins have no cached module to drop")
}

func TestBuiltinName(t *testing.T) {
	assert.Equal(t, domain.DriverBuiltin, NewBuiltin().Name())
}
