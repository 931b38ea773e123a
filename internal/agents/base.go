// Package agents holds the builtin agent set. Each agent shells out to the
// shared model-runner client; the kernel treats them like any other handler.
package agents

import (
	"context"
	"fmt"

	"slate-core/internal/adapter/runner"
	"slate-core/internal/domain"
)

// modelAgent is the shared shape of every builtin: static identity and
// capabilities, a model name, and a prompt builder. Execution is one runner
// invocation; health is model availability.
type modelAgent struct {
	info   domain.AgentInfo
	caps   []domain.Capability
	model  string
	prompt func(item domain.WorkItem) string
	client *runner.Client
}

// Compile-time check: modelAgent implements domain.Agent.
var _ domain.Agent = (*modelAgent)(nil)

func (a *modelAgent) Info() domain.AgentInfo            { return a.info }
func (a *modelAgent) Capabilities() []domain.Capability { return a.caps }

func (a *modelAgent) OnLoad(context.Context) (bool, error) { return true, nil }
func (a *modelAgent) OnUnload(context.Context) error       { return nil }

func (a *modelAgent) Execute(ctx context.Context, item domain.WorkItem) (domain.Result, error) {
	out, err := a.client.Invoke(ctx, a.model, a.prompt(item))
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{
		Success: true,
		Payload: map[string]any{"result": out, "model": a.model},
	}, nil
}

// HealthCheck reports healthy while the agent's model is installed.
func (a *modelAgent) HealthCheck(ctx context.Context) domain.Health {
	available := a.client.HasModel(ctx, a.model)
	return domain.Health{
		Healthy: available,
		Detail: map[string]any{
			"model":           a.model,
			"model_available": available,
		},
	}
}

// taskPrompt is the default prompt shape: title, description, then an
// agent-specific instruction.
func taskPrompt(item domain.WorkItem, instruction string) string {
	return fmt.Sprintf("Task: %s\nDescription: %s\n\n%s", item.Title, item.Description, instruction)
}
