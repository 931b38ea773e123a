// Package mcpsrv exposes kernel management operations as MCP tools over
// stdio, so MCP-speaking clients can drive the registry.
package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"slate-core/internal/domain"
	"slate-core/internal/kernel"
)

// Server wraps the MCP server with its registry handle.
type Server struct {
	reg    *kernel.Registry
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New builds the MCP server and registers the kernel management tools.
func New(reg *kernel.Registry, version string, logger *slog.Logger) *Server {
	s := &Server{
		reg: reg,
		mcp: server.NewMCPServer(
			"slate-kernel",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		logger: logger,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("agent_status",
		mcp.WithDescription("Registry summary: every agent with its lifecycle state, load error, counters, and the fallback table."),
	), s.handleStatus)

	s.mcp.AddTool(mcp.NewTool("agent_health",
		mcp.WithDescription("Run a health sweep over all loaded agents and return per-agent reports. May demote ACTIVE agents to DEGRADED or restore them."),
	), s.handleHealth)

	s.mcp.AddTool(mcp.NewTool("agent_route",
		mcp.WithDescription("Preview routing for a work item without executing anything."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Work item title")),
		mcp.WithString("description", mcp.Description("Work item description")),
	), s.handleRoute)

	s.mcp.AddTool(mcp.NewTool("agent_dispatch",
		mcp.WithDescription("Route and execute a work item on the best-matching agent."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Work item title")),
		mcp.WithString("description", mcp.Description("Work item description")),
	), s.handleDispatch)

	s.mcp.AddTool(mcp.NewTool("agent_load",
		mcp.WithDescription("Load a registered agent (idempotent)."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent ID")),
	), s.handleLoad)

	s.mcp.AddTool(mcp.NewTool("agent_unload",
		mcp.WithDescription("Unload a loaded agent. Refused while loaded agents depend on it."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent ID")),
	), s.handleUnload)

	s.mcp.AddTool(mcp.NewTool("agent_reload",
		mcp.WithDescription("Hot-reload an agent: unload, drop the cached module, load fresh from disk."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent ID")),
	), s.handleReload)

	s.mcp.AddTool(mcp.NewTool("agent_set_fallback",
		mcp.WithDescription("Declare a fallback route used only while the primary agent is DEGRADED. Empty fallback clears the route."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Primary agent ID")),
		mcp.WithString("fallback", mcp.Description("Substitute agent ID; empty clears")),
	), s.handleSetFallback)
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.Status())
}

func (s *Server) handleHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.CheckAll(ctx))
}

func (s *Server) handleRoute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item := workItemFrom(req)
	candidates := s.reg.Candidates(item)
	if len(candidates) == 0 {
		return mcp.NewToolResultText(`{"routed": false}`), nil
	}
	return jsonResult(map[string]any{
		"routed":     true,
		"agent":      candidates[0].AgentID,
		"candidates": candidates,
	})
}

func (s *Server) handleDispatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.Dispatch(ctx, workItemFrom(req)))
}

func (s *Server) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.lifecycleResult(req, func(id string) (bool, error) { return s.reg.Load(ctx, id) })
}

func (s *Server) handleUnload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.lifecycleResult(req, func(id string) (bool, error) { return s.reg.Unload(ctx, id) })
}

func (s *Server) handleReload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.lifecycleResult(req, func(id string) (bool, error) { return s.reg.Reload(ctx, id) })
}

func (s *Server) handleSetFallback(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent := req.GetString("agent", "")
	fallback := req.GetString("fallback", "")
	if err := s.reg.SetFallback(agent, fallback); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]string{"agent": agent, "fallback": fallback})
}

// lifecycleResult runs one load/unload/reload control operation and shapes
// the structured outcome.
func (s *Server) lifecycleResult(req mcp.CallToolRequest, op func(id string) (bool, error)) (*mcp.CallToolResult, error) {
	id := req.GetString("agent", "")
	if id == "" {
		return mcp.NewToolResultError("agent is required"), nil
	}

	ok, err := op(id)
	out := map[string]any{"agent": id, "ok": ok}
	if err != nil {
		out["error"] = err.Error()
		out["code"] = string(domain.ErrorCodeOf(err))
	}
	if st, serr := s.reg.Get(id); serr == nil {
		out["state"] = st.State
	}
	return jsonResult(out)
}

func workItemFrom(req mcp.CallToolRequest) domain.WorkItem {
	return domain.WorkItem{
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
