package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/runserver/internal/config"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ workspaceParams) (*sdkmcp.CallToolResult, any, error) {
	ws := h.snapshot()
	cfg := ws.cfg
	var b strings.Builder

	fmt.Fprintf(&b, "Workspace: %s\n", ws.workspace)
	fmt.Fprintf(&b, "Project root: %s\n", ws.root)

	pkg, err := readPackageJSON(ws.root)
	switch {
	case err == nil:
		if pkg.Name != "" {
			fmt.Fprintf(&b, "Package: %s", pkg.Name)
			if pkg.Version != "" {
				fmt.Fprintf(&b, "@%s", pkg.Version)
			}
			fmt.Fprintln(&b)
		}
		if start, ok := pkg.Scripts["start"]; ok {
			fmt.Fprintf(&b, "Start script: %s\n", start)
		} else {
			fmt.Fprintln(&b, "Start script: (none; npm falls back to node server.js)")
		}
	case os.IsNotExist(err):
		fmt.Fprintln(&b, "Package: (no package.json)")
	default:
		return errorResult(fmt.Sprintf("Failed to read package.json: %v", err))
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Command: %s\n", strings.Join(cfg.Command(), " "))
	fmt.Fprintf(&b, "Stderr: %s\n", cfg.StderrMode())
	fmt.Fprintf(&b, "Timeout: %s\n", cfg.Timeout())
	fmt.Fprintf(&b, "Runs: %s\n", cfg.RunsDir(ws.root))
	if cfg.Version == 0 {
		fmt.Fprintf(&b, "Config: defaults (no %s)\n", config.FileName)
	}

	return textResult(b.String())
}

// packageInfo holds the relevant fields from package.json.
type packageInfo struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Scripts map[string]string `json:"scripts"`
}

func readPackageJSON(root string) (*packageInfo, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg packageInfo
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	return &pkg, nil
}
