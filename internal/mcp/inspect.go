package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/runserver/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a srv_run result"`
	From  int    `json:"from,omitempty" jsonschema:"first line to return (1-based). Default: 1."`
	To    int    `json:"to,omitempty" jsonschema:"last line to return (inclusive). Default: last line."`
	Grep  string `json:"grep,omitempty" jsonschema:"regular expression; only matching lines in the range are returned"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	lines, err := report.Select(result, params.From, params.To, params.Grep)
	if err != nil {
		return errorResult(err.Error())
	}
	if len(lines) == 0 {
		return textResult(fmt.Sprintf("No lines matched in run %s (%s, %d lines).", params.RunID, result.Status, result.Lines))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (%s)\n", result.ID, result.Status)
	fmt.Fprintf(&b, "Showing %d of %d lines:\n", len(lines), len(result.Output))
	writeLines(&b, lines)
	return textResult(b.String())
}
