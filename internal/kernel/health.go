package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"slate-core/internal/domain"
	"slate-core/internal/infra/tracer"
)

// CheckAll probes every ACTIVE or DEGRADED agent and flips its state on the
// outcome: unhealthy demotes ACTIVE to DEGRADED, healthy promotes DEGRADED
// back to ACTIVE, each with a lifecycle event. Degradation is purely a
// routing signal — the instance stays loaded and keeps receiving direct
// calls. A panic inside a probe counts as unhealthy and is captured in the
// report instead of propagating.
func (r *Registry) CheckAll(ctx context.Context) map[string]domain.HealthReport {
	ctx, span := tracer.StartSpan(ctx, "kernel.health_check_all")
	defer span.End()

	type probe struct {
		id   string
		inst domain.Agent
	}
	r.mu.Lock()
	probes := make([]probe, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e.state.Loaded() && e.instance != nil {
			probes = append(probes, probe{id: id, inst: e.instance})
		}
	}
	r.mu.Unlock()

	reports := make(map[string]domain.HealthReport, len(probes))
	var events []domain.LifecycleEvent

	for _, p := range probes {
		health, perr := safeHealthCheck(ctx, p.inst)
		healthy := perr == nil && health.Healthy

		report := domain.HealthReport{Healthy: healthy, Detail: health.Detail}
		if perr != nil {
			report.Error = perr.Error()
		}

		r.mu.Lock()
		e, ok := r.entries[p.id]
		if !ok || !e.state.Loaded() {
			// Unloaded mid-sweep; report what the probe saw, no transition.
			r.mu.Unlock()
			reports[p.id] = report
			continue
		}
		switch {
		case !healthy && e.state == domain.StateActive:
			events = append(events, r.transition(e, domain.StateDegraded, "health check failed"))
		case healthy && e.state == domain.StateDegraded:
			events = append(events, r.transition(e, domain.StateActive, "health restored"))
		}
		report.State = e.state
		r.mu.Unlock()

		reports[p.id] = report
	}

	for _, ev := range events {
		r.bus.Publish(ev)
		r.logger.Info("health transition", "agent", ev.AgentID, "from", string(ev.From), "to", string(ev.To))
	}

	span.SetAttributes(tracer.IntAttr("health.checked", len(reports)))
	tracer.SetOK(span)
	return reports
}

// safeHealthCheck invokes the probe with panic recovery.
func safeHealthCheck(ctx context.Context, a domain.Agent) (h domain.Health, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h, err = domain.Health{}, fmt.Errorf("health_check panic: %v", rec)
		}
	}()
	return a.HealthCheck(ctx), nil
}

// Monitor is the periodic health sweeper. It owns no timer itself: Sweep is
// handed to the scheduler as a job, which keeps the kernel free of timing
// policy. Repeated unhealthy warnings for the same sweep cadence are sampled
// through rate.Sometimes so a flapping agent cannot flood the log.
type Monitor struct {
	reg    *Registry
	logger *slog.Logger
	warn   rate.Sometimes
}

// NewMonitor creates a health monitor. warnEvery bounds how often unhealthy
// summaries are logged; zero means every sweep.
func NewMonitor(reg *Registry, logger *slog.Logger, warnEvery time.Duration) *Monitor {
	return &Monitor{
		reg:    reg,
		logger: logger,
		warn:   rate.Sometimes{Interval: warnEvery},
	}
}

// Sweep runs one health pass. It matches the scheduler's job signature.
func (m *Monitor) Sweep(ctx context.Context) error {
	reports := m.reg.CheckAll(ctx)

	var unhealthy []string
	for id, rep := range reports {
		if !rep.Healthy {
			unhealthy = append(unhealthy, id)
		}
	}
	if len(unhealthy) > 0 {
		m.warn.Do(func() {
			m.logger.Warn("unhealthy agents", "count", len(unhealthy), "agents", unhealthy)
		})
	}
	return nil
}
