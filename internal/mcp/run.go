package mcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deixis/runserver/internal/report"
	"github.com/deixis/runserver/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"Stop the command after this many seconds. Defaults to the configured timeout (5m)."`
	Tail           int    `json:"tail,omitempty" jsonschema:"Number of trailing stdout lines to include in the result. Default: 20."`
	Cwd            string `json:"cwd,omitempty" jsonschema:"Directory to run in, relative to the workspace. Defaults to the workspace."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	ws := h.snapshot()
	cfg := ws.cfg

	timeout := cfg.Timeout()
	if params.TimeoutSeconds > 0 {
		timeout = time.Duration(params.TimeoutSeconds) * time.Second
	}
	tail := defaultTail
	if params.Tail > 0 {
		tail = params.Tail
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := &runner.Runner{
		Command:   cfg.Command(),
		Workspace: ws.workspace,
		Stderr:    runner.StderrMode(cfg.StderrMode()),
		Reap:      true, // a long-lived server must not accumulate zombies
		MaxOutput: cfg.MaxOutputBytes(),
		MaxStderr: cfg.MaxStderrBytes(),
		Group:     true,
	}
	res, err := r.Run(ctx, params.Cwd, io.Discard)
	rr := report.FromRun(res, err)
	if rr == nil {
		return errorResult(fmt.Sprintf("launch failed: %v", err))
	}

	// Save results for srv_inspect.
	_ = h.store.Save(rr)

	return textResult(formatRun(rr, tail))
}

func formatRun(rr *report.RunResult, tail int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status: %s\n", rr.Status)
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(rr.Command, " "))
	if rr.Truncated {
		fmt.Fprintf(&b, "Lines: %d (transcript truncated at %d)\n", rr.Lines, len(rr.Output))
	} else {
		fmt.Fprintf(&b, "Lines: %d\n", rr.Lines)
	}
	if rr.Reaped {
		fmt.Fprintf(&b, "Exit code: %d\n", rr.ExitCode)
	}
	if rr.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rr.Error)
	}
	fmt.Fprintln(&b)

	lines := report.Tail(rr, tail)
	if len(lines) > 0 {
		fmt.Fprintf(&b, "Last %d lines:\n", len(lines))
		writeLines(&b, lines)
		fmt.Fprintln(&b)
	}
	if rr.Stderr != "" {
		fmt.Fprintln(&b, "Stderr:")
		fmt.Fprintln(&b, strings.TrimRight(rr.Stderr, "\n"))
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "Inspect with srv_inspect(run_id=%q, from=<n>, to=<n>, grep=\"<regexp>\").\n", rr.ID)
	return b.String()
}

func writeLines(w io.Writer, lines []report.Line) {
	for _, l := range lines {
		fmt.Fprintf(w, "%6d  %s\n", l.Number, l.Text)
	}
}
