// Package mcp provides the runserver MCP server, registering the launcher
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/runserver"
	"github.com/deixis/runserver/internal/config"
	"github.com/deixis/runserver/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// defaultTail is the number of transcript lines srv_run returns.
const defaultTail = 20

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store report.Store

	mu        sync.Mutex
	cfg       *config.Config
	workspace string
	root      string
}

// workspaceState is a consistent view of the handler's workspace fields.
type workspaceState struct {
	cfg       *config.Config
	workspace string
	root      string
}

// NewServer creates an MCP server with all runserver tools registered.
// workspace is where the command runs; root is the project root holding
// package.json.
func NewServer(cfg *config.Config, workspace, root string, store report.Store) *mcp.Server {
	h := &handler{
		store:     store,
		cfg:       cfg,
		workspace: workspace,
		root:      root,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "runserver", Version: runserver.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "srv_workspace",
		Description: "Summarise the project: root, package name, start script, and launcher settings.",
	}, h.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "srv_run",
		Description: `Run the project's start command (npm start by default) and collect its stdout.

The call returns when the command closes stdout or when the timeout expires, at which point
the whole process group is terminated. Results are stored for drill-down via srv_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "srv_inspect",
		Description: `Read stdout lines from a stored srv_run result.

Use the run_id from srv_run. Narrow the output with a 1-based from/to line range
and/or a regular expression in grep.`,
	}, h.inspectHandler)

	return s
}

func (h *handler) snapshot() workspaceState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return workspaceState{cfg: h.cfg, workspace: h.workspace, root: h.root}
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches the
// handler to the first file root, reloading its configuration.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
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

	h.mu.Lock()
	h.cfg = loaded.Config
	h.workspace = workspace
	h.root = loaded.ProjectRoot
	h.mu.Unlock()
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
