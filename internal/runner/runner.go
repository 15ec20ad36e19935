// Package runner launches the project's start command and forwards its
// standard output to a writer line by line, with workspace bounds and
// optional transcript retention.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultCommand is the package manager start command.
var DefaultCommand = []string{"npm", "start"}

// ErrEmptyCommand is returned when the configured argv has no executable.
var ErrEmptyCommand = errors.New("empty command")

// StderrMode selects what happens to the child's standard error.
type StderrMode string

const (
	// StderrCapture redirects stderr into a pipe that is never read.
	StderrCapture StderrMode = "capture"
	// StderrDrain copies stderr into a bounded buffer returned in Result.Stderr.
	StderrDrain StderrMode = "drain"
	// StderrInherit connects the child's stderr to this process's stderr.
	StderrInherit StderrMode = "inherit"
)

// Runner launches a command and streams its stdout.
type Runner struct {
	Command   []string   // argv; DefaultCommand when empty
	Workspace string     // cwd must stay within it; "" inherits the process cwd
	Stderr    StderrMode // StderrCapture when empty
	Reap      bool       // wait for the child once stdout closes
	MaxOutput int        // transcript bytes kept in Result.Output; 0 keeps none
	MaxStderr int        // bytes kept in Result.Stderr when draining
	Group     bool       // own process group, terminated as a whole on cancel
	Logger    *log.Logger
}

// Run starts the command in cwd and copies each stdout line to out with
// trailing whitespace removed. It returns once the child closes stdout;
// the child's exit status does not end or fail the loop.
//
// Launch failures return a nil Result. Decode and read failures return the
// partial Result alongside the error. Cancelling ctx stops the read loop,
// terminates the child and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, cwd string, out io.Writer) (*Result, error) {
	argv := r.Command
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}
	logger := r.logger()
	mode := r.stderrMode()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if r.Group {
		setProcessGroup(cmd)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	var stderr io.ReadCloser
	if mode == StderrInherit {
		cmd.Stderr = os.Stderr
	} else {
		stderr, err = cmd.StderrPipe()
		if err != nil {
			_ = stdout.Close()
			return nil, fmt.Errorf("creating stderr pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching %s: %w", argv[0], err)
	}

	res := &Result{
		RunID:     uuid.New().String(),
		Command:   slices.Clone(argv),
		Dir:       dir,
		PID:       cmd.Process.Pid,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}
	logger.Printf("started %s (pid %d, run %s)", strings.Join(argv, " "), res.PID, res.RunID)

	// Closing the read ends is what unblocks the loop on cancel; grandchildren
	// may keep the write ends open after the child itself is gone.
	stop := context.AfterFunc(ctx, func() {
		_ = stdout.Close()
		if mode == StderrDrain {
			_ = stderr.Close()
		}
	})
	defer stop()

	var g errgroup.Group
	var errBuf bytes.Buffer
	if mode == StderrDrain {
		lw := &limitWriter{buf: &errBuf, limit: r.maxStderr()}
		g.Go(func() error {
			_, err := io.Copy(lw, stderr)
			return err
		})
	}

	readErr := r.forward(ctx, stdout, out, res)
	if readErr != nil {
		// A child still writing would block on a full pipe and never exit.
		_ = stdout.Close()
	}

	if mode == StderrDrain {
		if err := g.Wait(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Printf("draining stderr: %v", err)
		}
		res.Stderr = slices.Clone(errBuf.Bytes())
	}
	if r.Reap {
		waitErr := cmd.Wait()
		res.ExitCode = exitCodeFrom(waitErr, cmd.ProcessState)
		res.Reaped = true
	}
	res.EndedAt = time.Now()
	logger.Printf("stdout closed after %d lines (run %s)", res.Lines, res.RunID)

	// The captured stderr pipe stays open for as long as Run is executing.
	runtime.KeepAlive(stderr)
	return res, readErr
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary. Without a workspace, cwd is used as is.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if r.Workspace == "" {
		return cwd, nil
	}
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

func (r *Runner) stderrMode() StderrMode {
	if r.Stderr == "" {
		return StderrCapture
	}
	return r.Stderr
}

func (r *Runner) maxStderr() int {
	if r.MaxStderr > 0 {
		return r.MaxStderr
	}
	return 64 << 10
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.New(io.Discard, "", 0)
}

func exitCodeFrom(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return -1
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		// Report all bytes as consumed so io.Copy keeps draining the pipe.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
