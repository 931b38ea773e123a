package agents

import (
	"context"

	"slate-core/internal/adapter/runner"
	"slate-core/internal/domain"
)

// Models served by the local runner.
const (
	ModelCoder   = "slate-coder"
	ModelPlanner = "slate-planner"
	ModelFast    = "slate-fast"
)

// NewAlpha builds the coding agent.
func NewAlpha(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "ALPHA",
			Name:        "Alpha Coder",
			Version:     "1.0.0",
			Description: "Code generation, implementation, refactoring, and bug fixes",
			RequiresGPU: true,
		},
		caps: []domain.Capability{{
			Name: "code_generation",
			Patterns: []string{"implement", "code", "build", "fix", "create", "add",
				"refactor", "write", "function", "class", "method"},
			RequiresGPU: true,
			GPUMemoryMB: 4096,
			CPUCores:    2,
			Priority:    10,
			Description: "Generate, refactor, or fix code",
		}},
		model: ModelCoder,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Provide the implementation.")
		},
		client: client,
	}
}

// NewBeta builds the testing agent.
func NewBeta(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "BETA",
			Name:        "Beta Tester",
			Version:     "1.0.0",
			Description: "Test generation, validation, linting, and coverage analysis",
			RequiresGPU: true,
		},
		caps: []domain.Capability{{
			Name: "testing",
			Patterns: []string{"test", "validate", "verify", "coverage", "check",
				"lint", "format", "pytest", "unittest", "assert"},
			RequiresGPU: true,
			GPUMemoryMB: 2048,
			CPUCores:    2,
			Priority:    20,
			Description: "Generate and run tests, lint, validate code quality",
		}},
		model: ModelCoder,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Provide thorough tests covering the described behavior.")
		},
		client: client,
	}
}

// NewGamma builds the planning agent.
func NewGamma(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "GAMMA",
			Name:        "Gamma Planner",
			Version:     "1.0.0",
			Description: "Analysis, planning, research, documentation, and architecture design",
		},
		caps: []domain.Capability{{
			Name: "planning",
			Patterns: []string{"analyze", "plan", "research", "document", "review",
				"design", "architecture", "spec", "strategy", "roadmap"},
			CPUCores:    1,
			Priority:    30,
			Description: "Analyze codebases, create plans, write documentation",
		}},
		model: ModelPlanner,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Provide a structured analysis with:\n"+
				"1. Current state assessment\n"+
				"2. Recommended approach\n"+
				"3. Implementation steps\n"+
				"4. Risk factors")
		},
		client: client,
	}
}

// NewDelta builds the integration agent.
func NewDelta(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "DELTA",
			Name:        "Delta Integrator",
			Version:     "1.0.0",
			Description: "External integration: MCP, SDK, APIs, plugins",
		},
		caps: []domain.Capability{{
			Name: "integration",
			Patterns: []string{"claude", "mcp", "sdk", "integration", "api",
				"plugin", "extension", "bridge", "webhook"},
			CPUCores:    1,
			Priority:    40,
			Description: "Manage external integrations, API bridges, SDK packaging",
		}},
		model: ModelPlanner,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Describe the integration steps and provide the glue code.")
		},
		client: client,
	}
}

// NewEpsilon builds the spec-weaver agent.
func NewEpsilon(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "EPSILON",
			Name:        "Epsilon Spec-Weaver",
			Version:     "1.0.0",
			Description: "Generate structured specs, architecture docs, and capacity plans",
		},
		caps: []domain.Capability{
			{
				Name: "spec_generation",
				Patterns: []string{"spec", "specification", "architecture", "capacity",
					"blueprint", "schema", "diagram", "rfc"},
				CPUCores:    1,
				Priority:    35,
				Description: "Generate structured specifications and architecture documents",
			},
			{
				Name: "documentation",
				Patterns: []string{"doc", "documentation", "api-doc", "wiki", "readme",
					"changelog", "guide"},
				CPUCores:    1,
				Priority:    45,
				Description: "Create and update project documentation",
			},
		},
		model: ModelPlanner,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Produce a structured specification document.")
		},
		client: client,
	}
}

// NewZeta builds the benchmark oracle.
func NewZeta(client *runner.Client) domain.Agent {
	return &modelAgent{
		info: domain.AgentInfo{
			ID:          "ZETA",
			Name:        "Zeta Benchmark Oracle",
			Version:     "1.0.0",
			Description: "System benchmarking, GPU profiling, capacity analysis, optimization",
			RequiresGPU: true,
		},
		caps: []domain.Capability{
			{
				Name: "benchmarking",
				Patterns: []string{"benchmark", "performance", "profile", "speed",
					"throughput", "latency", "optimize", "capacity"},
				RequiresGPU: true,
				GPUMemoryMB: 1024,
				CPUCores:    2,
				Priority:    25,
				Description: "Run system benchmarks, GPU profiling, capacity analysis",
			},
			{
				Name: "hardware_analysis",
				Patterns: []string{"gpu", "cuda", "memory", "disk", "cpu", "hardware",
					"resource", "utilization"},
				CPUCores:    1,
				Priority:    35,
				Description: "Analyze hardware resources and utilization patterns",
			},
		},
		model: ModelFast,
		prompt: func(item domain.WorkItem) string {
			return taskPrompt(item, "Classify the benchmark scenario and suggest measurements.")
		},
		client: client,
	}
}

// NewCopilot builds the orchestration agent.
func NewCopilot(client *runner.Client) domain.Agent {
	return &copilotAgent{modelAgent{
		info: domain.AgentInfo{
			ID:          "COPILOT",
			Name:        "Copilot Orchestrator",
			Version:     "1.0.0",
			Description: "Full orchestration: complex tasks, deployment, release management",
			RequiresGPU: true,
		},
		caps: []domain.Capability{{
			Name: "orchestration",
			Patterns: []string{"complex", "multi-step", "orchestrate", "deploy",
				"release", "pipeline", "workflow", "coordinate"},
			RequiresGPU: true,
			GPUMemoryMB: 8192,
			CPUCores:    4,
			Priority:    5,
			Description: "Handle compound multi-step tasks, deployments, and releases",
		}},
		model: ModelCoder,
		prompt: func(item domain.WorkItem) string {
			return "Complex orchestration task: " + item.Title + "\nDetails: " + item.Description +
				"\n\nBreak this into atomic steps and provide implementation for each."
		},
		client: client,
	}}
}

// copilotAgent widens the health probe: orchestration depends on the whole
// model fleet, not just its own.
type copilotAgent struct {
	modelAgent
}

func (a *copilotAgent) HealthCheck(ctx context.Context) domain.Health {
	detail := make(map[string]any, 3)
	healthy := true
	for _, m := range []string{ModelCoder, ModelPlanner, ModelFast} {
		available := a.client.HasModel(ctx, m)
		detail[m] = available
		healthy = healthy && available
	}
	return domain.Health{Healthy: healthy, Detail: detail}
}

// Factories maps builtin driver source keys to constructors. Keys are the
// lowercase agent IDs.
func Factories(client *runner.Client) map[string]func() domain.Agent {
	return map[string]func() domain.Agent{
		"alpha":   func() domain.Agent { return NewAlpha(client) },
		"beta":    func() domain.Agent { return NewBeta(client) },
		"gamma":   func() domain.Agent { return NewGamma(client) },
		"delta":   func() domain.Agent { return NewDelta(client) },
		"epsilon": func() domain.Agent { return NewEpsilon(client) },
		"zeta":    func() domain.Agent { return NewZeta(client) },
		"copilot": func() domain.Agent { return NewCopilot(client) },
	}
}
