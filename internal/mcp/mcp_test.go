package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deixis/runserver/internal/config"
	"github.com/deixis/runserver/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setup creates a full runserver MCP server + client over in-memory transports.
func setup(t *testing.T, workspaceDir string, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	server := NewServer(cfg, workspaceDir, workspaceDir, store)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

// newProject writes a package.json into a temp dir.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pkg := `{"name":"text-adventure","version":"1.2.0","scripts":{"start":"node server.js"}}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkg), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func shellConfig(script string) *config.Config {
	return &config.Config{RawCommand: []string{"/bin/sh", "-c", script}}
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

// --- srv_workspace ---

func TestSrvWorkspace(t *testing.T) {
	dir := newProject(t)
	cs := setup(t, dir, &config.Config{})
	res := callTool(t, cs, "srv_workspace", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Package: text-adventure@1.2.0", "Start script: node server.js", "Command: npm start", "Stderr: capture"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestSrvWorkspace_NoPackageJSON(t *testing.T) {
	cs := setup(t, t.TempDir(), &config.Config{})
	res := callTool(t, cs, "srv_workspace", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "(no package.json)") {
		t.Errorf("expected no package.json note, got:\n%s", text)
	}
}

// --- srv_run ---

func TestSrvRun_Exited(t *testing.T) {
	dir := newProject(t)
	cs := setup(t, dir, shellConfig(`printf 'booting\nlistening on 3000  \n'`))
	res := callTool(t, cs, "srv_run", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Status: exited", "Lines: 2", "Exit code: 0", "listening on 3000\n", "srv_inspect"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestSrvRun_NonZeroExit(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig("exit 1"))
	res := callTool(t, cs, "srv_run", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: exited") || !strings.Contains(text, "Exit code: 1") {
		t.Errorf("expected exited with code 1, got:\n%s", text)
	}
}

func TestSrvRun_TimeoutStopsServer(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig("echo ready; sleep 60"))
	start := time.Now()
	res := callTool(t, cs, "srv_run", map[string]any{"timeout_seconds": 1})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: stopped") {
		t.Errorf("expected Status: stopped, got:\n%s", text)
	}
	if !strings.Contains(text, "ready") {
		t.Errorf("expected boot output, got:\n%s", text)
	}
	if elapsed := time.Since(start); elapsed > 15*time.Second {
		t.Errorf("srv_run took %v, want prompt stop after timeout", elapsed)
	}
}

func TestSrvRun_LaunchFailure(t *testing.T) {
	cfg := &config.Config{RawCommand: []string{"nonexistent-binary-xyz-123", "start"}}
	cs := setup(t, newProject(t), cfg)
	res := callTool(t, cs, "srv_run", nil)
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected IsError for missing binary, got:\n%s", text)
	}
	if !strings.Contains(text, "nonexistent-binary-xyz-123") {
		t.Errorf("expected binary name in error, got:\n%s", text)
	}
}

func TestSrvRun_DecodeFailure(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig(`printf 'ok\n\377\n'`))
	res := callTool(t, cs, "srv_run", nil)
	text := resultText(res)
	if !strings.Contains(text, "Status: failed") || !strings.Contains(text, "invalid UTF-8") {
		t.Errorf("expected failed status with decode error, got:\n%s", text)
	}
}

func TestSrvRun_Tail(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig(`for i in 1 2 3 4 5; do echo "line $i"; done`))
	res := callTool(t, cs, "srv_run", map[string]any{"tail": 2})
	text := resultText(res)
	if !strings.Contains(text, "Last 2 lines:") {
		t.Errorf("expected Last 2 lines, got:\n%s", text)
	}
	if strings.Contains(text, "line 3") || !strings.Contains(text, "line 5") {
		t.Errorf("expected only lines 4-5, got:\n%s", text)
	}
}

func TestSrvRun_CwdOutsideWorkspace(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig("true"))
	res := callTool(t, cs, "srv_run", map[string]any{"cwd": "../.."})
	if !res.IsError {
		t.Errorf("expected IsError for cwd outside workspace, got:\n%s", resultText(res))
	}
}

// --- srv_inspect ---

func TestSrvInspect_MissingRunID(t *testing.T) {
	cs := setup(t, newProject(t), &config.Config{})
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "srv_inspect",
		Arguments: map[string]any{"grep": "x"},
	})
	if err == nil {
		t.Error("expected error for missing run_id")
	}
}

func TestSrvInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, newProject(t), &config.Config{})
	res := callTool(t, cs, "srv_inspect", map[string]any{"run_id": "nonexistent-id"})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
}

func TestSrvInspect_AfterRun(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig(`printf 'GET / 200\nGET /api 500\nGET /health 200\nGET /x 500\n'`))
	id := runID(t, resultText(callTool(t, cs, "srv_run", nil)))

	res := callTool(t, cs, "srv_inspect", map[string]any{"run_id": id, "grep": " 500$"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Showing 2 of 4 lines") {
		t.Errorf("expected 2 matching lines, got:\n%s", text)
	}

	res = callTool(t, cs, "srv_inspect", map[string]any{"run_id": id, "from": 3, "grep": "500"})
	text = resultText(res)
	if !strings.Contains(text, "GET /x 500") || strings.Contains(text, "GET /api 500") {
		t.Errorf("expected only line 4 within range, got:\n%s", text)
	}
}

func TestSrvInspect_NoMatch(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig("echo hello"))
	id := runID(t, resultText(callTool(t, cs, "srv_run", nil)))
	res := callTool(t, cs, "srv_inspect", map[string]any{"run_id": id, "grep": "absent"})
	if !strings.Contains(resultText(res), "No lines matched") {
		t.Errorf("expected no-match message, got:\n%s", resultText(res))
	}
}

func TestSrvInspect_BadPattern(t *testing.T) {
	cs := setup(t, newProject(t), shellConfig("echo hello"))
	id := runID(t, resultText(callTool(t, cs, "srv_run", nil)))
	res := callTool(t, cs, "srv_inspect", map[string]any{"run_id": id, "grep": "("})
	if !res.IsError {
		t.Errorf("expected IsError for invalid pattern, got:\n%s", resultText(res))
	}
}
