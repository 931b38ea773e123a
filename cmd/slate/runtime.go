package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"slate-core/internal/adapter/journal"
	"slate-core/internal/adapter/runner"
	"slate-core/internal/agents"
	"slate-core/internal/domain"
	"slate-core/internal/driver"
	"slate-core/internal/driver/wasm"
	"slate-core/internal/infra/config"
	"slate-core/internal/infra/logger"
	"slate-core/internal/infra/tracer"
	"slate-core/internal/kernel"
)

// app is the assembled kernel: config, registry with drivers and builtin
// agents wired, journal subscription, and the teardown chain.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	reg     *kernel.Registry
	wasmDrv *wasm.Driver
	journal *journal.Journal
	runner  *runner.Client

	// discovered holds the manifest-registered agent IDs from this start.
	discovered []string

	logClose      func() error
	traceShutdown func(context.Context) error
	unsubJournal  func()
}

// buildApp wires the kernel from config: logger, tracer, drivers, builtin
// agent descriptors, manifest discovery, journal, and the persisted fallback
// table. One-shot commands and the long-running server both start here.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var log *slog.Logger
	logClose := func() error { return nil }
	if flagJSON {
		// Machine output mode: diagnostics must not pollute stdout.
		log = logger.Discard()
	} else {
		log, logClose, err = logger.New(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	traceShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logClose()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	a := &app{
		cfg:           cfg,
		logger:        log,
		logClose:      logClose,
		traceShutdown: traceShutdown,
	}

	a.reg = kernel.New(log)

	a.runner = runner.New(runner.Options{
		Command:            cfg.Runner.Command,
		Timeout:            config.ParseDurationOr(cfg.Runner.Timeout, 120*time.Second),
		MaxPromptTokens:    cfg.Runner.MaxPromptTokens,
		RatePerSecond:      cfg.Runner.RatePerSecond,
		RateBurst:          cfg.Runner.RateBurst,
		BreakerMaxFailures: cfg.Runner.BreakerMaxFailures,
		BreakerCooldown:    config.ParseDurationOr(cfg.Runner.BreakerCooldown, 30*time.Second),
	}, log)

	builtins := driver.NewBuiltin()
	for key, factory := range agents.Factories(a.runner) {
		builtins.Add(key, driver.Factory(factory))
	}
	a.reg.RegisterDriver(builtins)

	a.wasmDrv = wasm.New(ctx, wasm.Config{
		MaxMemoryPages: cfg.WASM.MaxMemoryPages,
		ExecTimeout:    config.ParseDurationOr(cfg.WASM.ExecTimeout, 30*time.Second),
	}, log)
	a.reg.RegisterDriver(a.wasmDrv)

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			log.Warn("lifecycle journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			a.journal = j
			a.unsubJournal = a.reg.OnLifecycle(j.Record)
		}
	}

	// Builtin descriptors register before discovery so manifests cannot
	// shadow a builtin ID.
	if err := registerBuiltins(a.reg, builtins, a.runner); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if ids, err := a.reg.Discover(ctx, cfg.Agents.Dir); err != nil {
		log.Warn("agent discovery failed", "dir", cfg.Agents.Dir, "error", err)
	} else {
		a.discovered = ids
	}

	a.reg.LoadState(cfg.Agents.StateFile)
	return a, nil
}

// registerBuiltins creates one descriptor per compiled-in agent factory. The
// descriptor identity comes from a throwaway instance; construction is cheap
// and side-effect free for builtins.
func registerBuiltins(reg *kernel.Registry, builtins *driver.Builtin, client *runner.Client) error {
	for _, key := range builtins.Keys() {
		inst, err := builtins.Instantiate(context.Background(), domain.ModuleRef{
			Driver: domain.DriverBuiltin, Source: key,
		})
		if err != nil {
			return fmt.Errorf("builtin %s: %w", key, err)
		}
		if _, err := reg.Register(domain.Descriptor{
			Info: inst.Info(),
			Ref:  domain.ModuleRef{Driver: domain.DriverBuiltin, Source: key},
		}); err != nil {
			return fmt.Errorf("register builtin %s: %w", key, err)
		}
	}
	return nil
}

// saveState snapshots the registry to the configured state file.
func (a *app) saveState() {
	if err := a.reg.SaveState(a.cfg.Agents.StateFile); err != nil {
		a.logger.Warn("state save failed", "path", a.cfg.Agents.StateFile, "error", err)
	}
}

// Close tears the app down in reverse construction order.
func (a *app) Close(ctx context.Context) {
	if a.unsubJournal != nil {
		a.unsubJournal()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.wasmDrv != nil {
		a.wasmDrv.Close(ctx)
	}
	if a.traceShutdown != nil {
		a.traceShutdown(ctx)
	}
	if a.logClose != nil {
		a.logClose()
	}
}
