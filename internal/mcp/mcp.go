// Package mcp provides the itest MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/itest"
	"github.com/deixis/itest/internal/config"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/runner"
	"github.com/deixis/itest/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	// mu serialises runs across sessions and guards engine and runner.
	mu     sync.Mutex
	engine *workflow.Engine
	runner *runner.Runner
	store  report.Store

	overrides *config.Overrides // nil disables reloading from client roots
}

// NewServer creates an MCP server with all itest tools registered. The
// engine's Runner must be r.
func NewServer(eng *workflow.Engine, r *runner.Runner, store report.Store, opts ...ServerOption) *mcp.Server {
	h := &handler{
		engine: eng,
		runner: r,
		store:  store,
	}

	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	h.overrides = so.overrides

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "itest", Version: itest.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "itest_modules",
		Description: "List the registered test modules and the cases each one contributes.",
	}, h.modulesHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "itest_run",
		Description: `Run one or more test modules against the executable under test.

Cases run sequentially in module order. Each case runs the executable in a fresh scratch
directory and compares its output byte for byte with a golden file. Results are stored
for drill-down via itest_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "itest_inspect",
		Description: `Drill into one case of an itest_run result.

Returns the argv, exit code, stderr, a line diff and the full expected and actual texts.
Omit run_id to inspect the most recent run.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the itest MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	overrides *config.Overrides
}

// WithRootsReload makes the server reload its configuration from the
// first root the client reports, applying o on top of the file found there.
func WithRootsReload(o config.Overrides) ServerOption {
	return func(so *serverOptions) {
		so.overrides = &o
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and swaps in
// the configuration found there if it loads cleanly. This is called during
// session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	if h.overrides == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}
	cfg := loaded.Config
	o := *h.overrides
	o.WorkDir = workspace
	cfg.Apply(o)

	reg, err := workflow.NewRegistry(cfg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	cfg.HarnessDir = h.engine.Config.HarnessDir

	h.runner.Workspace = cfg.ScratchRoot()
	h.runner.Timeout = cfg.Timeout()
	h.runner.MaxOutput = cfg.MaxOutputBytes()

	h.engine.Config = cfg
	h.engine.Registry = reg
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
