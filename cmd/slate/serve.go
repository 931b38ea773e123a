package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slate-core/internal/infra/config"
	"slate-core/internal/kernel"
	"slate-core/internal/schedule"
)

// runServe runs the kernel as a long-lived process: manifests discovered,
// every agent loaded, health monitor and autosave on the scheduler, state
// saved on the way out.
func runServe(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	results := a.reg.LoadAll(ctx)
	loaded := 0
	for _, ok := range results {
		if ok {
			loaded++
		}
	}
	a.logger.Info("kernel started",
		"agents", len(results),
		"loaded", loaded,
		"agents_dir", a.cfg.Agents.Dir,
	)

	sched := schedule.New(a.logger)

	if interval := a.cfg.Health.Interval; interval != "" {
		warnEvery := config.ParseDurationOr(a.cfg.Health.WarnEvery, time.Minute)
		monitor := kernel.NewMonitor(a.reg, a.logger, warnEvery)
		if err := sched.AddJob("health-sweep", interval, monitor.Sweep); err != nil {
			return fmt.Errorf("health monitor: %w", err)
		}
	}

	if a.cfg.Autosave.Enabled {
		interval := a.cfg.Autosave.Interval
		if interval == "" {
			interval = "5m"
		}
		statePath := a.cfg.Agents.StateFile
		if err := sched.AddJob("registry-autosave", interval, func(context.Context) error {
			return a.reg.SaveState(statePath)
		}); err != nil {
			return fmt.Errorf("autosave: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
	stop()

	// Teardown runs on a fresh context; the signal context is already dead.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	a.saveState()
	a.reg.Shutdown(shutdownCtx)

	fmt.Fprintln(os.Stderr, "slate: stopped")
	return nil
}
