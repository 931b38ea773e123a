package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"slate-core/internal/adapter/mcpsrv"
	"slate-core/internal/adapter/tui"
	"slate-core/internal/domain"
	"slate-core/internal/kernel"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStatus(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	sum := a.reg.Status()
	if flagJSON {
		return printJSON(sum)
	}

	fmt.Printf("Agents: %d total", sum.TotalAgents)
	for _, st := range []domain.AgentState{
		domain.StateActive, domain.StateDegraded, domain.StateError, domain.StateUnloaded,
	} {
		if n := sum.AgentsByState[st]; n > 0 {
			fmt.Printf("  %d %s", n, st)
		}
	}
	fmt.Println()
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATE\tDRIVER\tVERSION\tPROCESSED\tFAILED\tDETAIL")
	for _, agent := range sum.Agents {
		detail := agent.LoadError
		if detail == "" {
			if fb, ok := sum.FallbackRoutes[agent.ID]; ok {
				detail = "fallback → " + fb
			} else {
				detail = "-"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			agent.ID, agent.State, agent.Ref.Driver, agent.Version,
			agent.TasksProcessed, agent.TasksFailed, detail)
	}
	return w.Flush()
}

func runDiscover(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if flagJSON {
		return printJSON(map[string]any{
			"dir":        a.cfg.Agents.Dir,
			"discovered": a.discovered,
		})
	}
	if len(a.discovered) == 0 {
		fmt.Printf("No new manifests in %s.\n", a.cfg.Agents.Dir)
		return nil
	}
	fmt.Printf("Discovered %d agent(s) in %s:\n", len(a.discovered), a.cfg.Agents.Dir)
	for _, id := range a.discovered {
		fmt.Println("  " + id)
	}
	return nil
}

// runLifecycleOp shares the shape of load/unload/reload: one agent argument,
// one registry call, state persisted afterwards.
func runLifecycleOp(args []string, verb string,
	op func(ctx context.Context, reg *kernel.Registry, id string) (bool, error)) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: slate %s <agent>", verb)
	}
	id := args[0]

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ok, opErr := op(ctx, a.reg, id)
	a.saveState()

	st, _ := a.reg.Get(id)
	if flagJSON {
		out := map[string]any{"agent": id, "ok": ok, "state": st.State}
		if opErr != nil {
			out["error"] = opErr.Error()
			out["code"] = string(domain.ErrorCodeOf(opErr))
		}
		return printJSON(out)
	}
	if opErr != nil {
		return opErr
	}
	fmt.Printf("%s: %s (%s)\n", verb, id, st.State)
	return nil
}

func runLoad(args []string) error {
	return runLifecycleOp(args, "load",
		func(ctx context.Context, reg *kernel.Registry, id string) (bool, error) {
			return reg.Load(ctx, id)
		})
}

func runUnload(args []string) error {
	return runLifecycleOp(args, "unload",
		func(ctx context.Context, reg *kernel.Registry, id string) (bool, error) {
			return reg.Unload(ctx, id)
		})
}

func runReload(args []string) error {
	return runLifecycleOp(args, "reload",
		func(ctx context.Context, reg *kernel.Registry, id string) (bool, error) {
			return reg.Reload(ctx, id)
		})
}

func runLoadAll(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	results := a.reg.LoadAll(ctx)
	a.saveState()

	if flagJSON {
		return printJSON(results)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tLOADED\tSTATE\tERROR")
	for _, st := range a.reg.List() {
		errMsg := st.LoadError
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", st.ID, results[st.ID], st.State, errMsg)
	}
	return w.Flush()
}

func runHealth(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	// A fresh process starts with nothing loaded; a sweep over zero agents
	// is not a useful report.
	a.reg.LoadAll(ctx)
	reports := a.reg.CheckAll(ctx)
	a.saveState()
	defer a.reg.Shutdown(ctx)

	if flagJSON {
		return printJSON(reports)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tHEALTHY\tSTATE\tDETAIL")
	for _, st := range a.reg.List() {
		rep, ok := reports[st.ID]
		if !ok {
			continue
		}
		detail := rep.Error
		if detail == "" && len(rep.Detail) > 0 {
			parts := make([]string, 0, len(rep.Detail))
			for k, v := range rep.Detail {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			detail = strings.Join(parts, " ")
		}
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", st.ID, rep.Healthy, rep.State, detail)
	}
	return w.Flush()
}

func runSetFallback(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: slate set-fallback <agent> [fallback]")
	}
	from := args[0]
	to := ""
	if len(args) > 1 {
		to = args[1]
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.reg.SetFallback(from, to); err != nil {
		return err
	}
	a.saveState()

	if flagJSON {
		return printJSON(map[string]string{"agent": from, "fallback": to})
	}
	if to == "" {
		fmt.Printf("fallback cleared: %s\n", from)
	} else {
		fmt.Printf("fallback set: %s → %s\n", from, to)
	}
	return nil
}

// workItemArgs builds a work item from positional CLI args.
func workItemArgs(args []string) (domain.WorkItem, error) {
	if len(args) < 1 {
		return domain.WorkItem{}, fmt.Errorf("a task title is required")
	}
	item := domain.WorkItem{Title: args[0]}
	if len(args) > 1 {
		item.Description = strings.Join(args[1:], " ")
	}
	return item, nil
}

func runRoute(args []string) error {
	item, err := workItemArgs(args)
	if err != nil {
		return fmt.Errorf("usage: slate route <title> [description]: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	// Routing consults live capabilities, so the preview loads everything
	// the way the serving kernel would.
	a.reg.LoadAll(ctx)
	defer a.reg.Shutdown(ctx)

	candidates := a.reg.Candidates(item)
	if flagJSON {
		return printJSON(map[string]any{
			"routed":     len(candidates) > 0,
			"candidates": candidates,
		})
	}
	if len(candidates) == 0 {
		fmt.Println("no agent matches this task")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tCAPABILITY\tCONFIDENCE\tPRIORITY")
	for _, c := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\n", c.AgentID, c.Capability, c.Confidence, c.Priority)
	}
	return w.Flush()
}

func runDispatch(args []string) error {
	item, err := workItemArgs(args)
	if err != nil {
		return fmt.Errorf("usage: slate dispatch <title> [description]: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	a.reg.LoadAll(ctx)
	res := a.reg.Dispatch(ctx, item)
	a.saveState()
	defer a.reg.Shutdown(ctx)

	if flagJSON {
		return printJSON(res)
	}
	if !res.Success {
		fmt.Printf("dispatch failed: %s\n", res.Error)
		if res.AgentID != "" {
			fmt.Printf("  agent: %s (dispatch %s, %.1fms)\n", res.AgentID, res.DispatchID, res.DurationMS)
		}
		return nil
	}
	fmt.Printf("dispatched to %s (dispatch %s, %.1fms)\n", res.AgentID, res.DispatchID, res.DurationMS)
	for k, v := range res.Payload {
		fmt.Printf("  %s: %v\n", k, v)
	}
	return nil
}

func runHistory(args []string) error {
	agentID := ""
	limit := 0
	if len(args) > 0 {
		agentID = args[0]
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("limit must be a number: %q", args[1])
		}
		limit = n
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if a.journal == nil {
		return fmt.Errorf("lifecycle journal is disabled (journal.enabled: false)")
	}
	entries, err := a.journal.Recent(agentID, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if flagJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no lifecycle history")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tAGENT\tTRANSITION\tREASON")
	for _, e := range entries {
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s → %s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.AgentID, e.From, e.To, reason)
	}
	return w.Flush()
}

func runMCP(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	a.reg.LoadAll(ctx)
	defer func() {
		a.saveState()
		a.reg.Shutdown(ctx)
	}()

	return mcpsrv.New(a.reg, Version, a.logger).ServeStdio()
}

func runTop(_ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	a.reg.LoadAll(ctx)
	defer func() {
		a.saveState()
		a.reg.Shutdown(ctx)
	}()

	return tui.Run(a.reg)
}
