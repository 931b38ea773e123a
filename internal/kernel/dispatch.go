package kernel

import (
	"context"
	"fmt"
	"time"

	"slate-core/internal/domain"
	"slate-core/internal/infra/tracer"
)

// NoAgentError is the message on the structured result when the matcher
// finds no route. A routing miss is a normal outcome, not an error.
const NoAgentError = "no agent available for task"

// Dispatch routes a work item and executes it on the chosen agent.
//
// The routed agent is replaced by its fallback only when it is DEGRADED and
// the fallback exists and is itself ACTIVE; a degraded agent with no viable
// fallback still receives the work. Execute runs outside the store lock with
// panic isolation: a panic or error becomes a structured failure result and
// bumps the agent's failure counter; any normal return bumps the processed
// counter regardless of the result's own success flag. The result is
// annotated with the resolved agent, a dispatch ULID, and wall-clock
// duration.
func (r *Registry) Dispatch(ctx context.Context, item domain.WorkItem) domain.Result {
	ctx, span := tracer.StartSpan(ctx, "kernel.dispatch")
	defer span.End()

	decision, ok := r.Route(item)
	if !ok {
		span.SetAttributes(tracer.BoolAttr("dispatch.routed", false))
		return domain.Result{Success: false, Error: NoAgentError}
	}

	id, inst := r.resolve(decision.AgentID)
	if inst == nil {
		// The agent unloaded between routing and resolution.
		return domain.Result{Success: false, Error: NoAgentError}
	}
	span.SetAttributes(
		tracer.StringAttr("dispatch.agent", id),
		tracer.Float64Attr("dispatch.confidence", decision.Confidence),
	)

	start := time.Now()
	dispatchID := generateULID(start)

	res, err := safeExecute(ctx, inst, item)

	r.mu.Lock()
	if e := r.entries[id]; e != nil {
		if err != nil {
			e.failed++
		} else {
			e.processed++
		}
	}
	r.mu.Unlock()

	res.AgentID = id
	res.DispatchID = dispatchID
	res.DurationMS = float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		res.Success = false
		res.Error = err.Error()
		r.logger.Error("dispatch failed", "agent", id, "dispatch_id", dispatchID, "error", err)
		tracer.RecordError(span, err)
		return res
	}

	r.logger.Debug("dispatch complete",
		"agent", id,
		"dispatch_id", dispatchID,
		"success", res.Success,
		"duration_ms", res.DurationMS,
	)
	tracer.SetOK(span)
	return res
}

// resolve applies the fallback table to a routing decision and returns the
// final agent instance. Fallback never applies to a healthy agent.
func (r *Registry) resolve(id string) (string, domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !e.state.Loaded() {
		return id, nil
	}
	if e.state == domain.StateDegraded {
		if sub, found := r.fallback[id]; found {
			if se, exists := r.entries[sub]; exists && se.state == domain.StateActive {
				r.logger.Info("agent degraded, using fallback", "agent", id, "fallback", sub)
				return sub, se.instance
			}
		}
	}
	return id, e.instance
}

// safeExecute invokes Execute with panic recovery at the kernel boundary.
func safeExecute(ctx context.Context, a domain.Agent, item domain.WorkItem) (res domain.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = domain.Result{}, fmt.Errorf("execute panic: %v", rec)
		}
	}()
	return a.Execute(ctx, item)
}
