// Package report persists launcher runs and answers line queries over
// their stored transcripts.
package report

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/deixis/runserver/internal/runner"
)

// Status describes how a run ended.
type Status string

const (
	// Exited means the child closed stdout.
	Exited Status = "exited"
	// Stopped means the run was cancelled or timed out.
	Stopped Status = "stopped"
	// Failed means a decode, read or write error ended the loop.
	Failed Status = "failed"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
	List() ([]*RunResult, error)
}

// RunResult is the stored form of one launch.
type RunResult struct {
	ID        string    `json:"id"`
	Command   []string  `json:"command"`
	Dir       string    `json:"dir,omitempty"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`

	Lines     int      `json:"lines"`
	Output    []string `json:"output,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`

	ExitCode int  `json:"exit_code"`
	Reaped   bool `json:"reaped,omitempty"`
}

// FromRun converts a runner result and the error Run returned into a
// RunResult. It returns nil when res is nil (the command never started).
func FromRun(res *runner.Result, runErr error) *RunResult {
	if res == nil {
		return nil
	}
	rr := &RunResult{
		ID:        res.RunID,
		Command:   res.Command,
		Dir:       res.Dir,
		PID:       res.PID,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
		Status:    Exited,
		Lines:     res.Lines,
		Output:    res.Output,
		Truncated: res.Truncated,
		Stderr:    string(res.Stderr),
		ExitCode:  res.ExitCode,
		Reaped:    res.Reaped,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		rr.Status = Stopped
	default:
		rr.Status = Failed
		rr.Error = runErr.Error()
	}
	return rr
}

// Line is a numbered transcript line.
type Line struct {
	Number int    // 1-based
	Text   string
}

// Slice returns the transcript lines numbered from..to inclusive.
// A zero from starts at the first line; a zero to runs to the end.
func Slice(result *RunResult, from, to int) []Line {
	if from < 1 {
		from = 1
	}
	if to < 1 || to > len(result.Output) {
		to = len(result.Output)
	}
	var out []Line
	for n := from; n <= to; n++ {
		out = append(out, Line{Number: n, Text: result.Output[n-1]})
	}
	return out
}

// Tail returns the last n transcript lines.
func Tail(result *RunResult, n int) []Line {
	from := len(result.Output) - n + 1
	if from < 1 {
		from = 1
	}
	return Slice(result, from, 0)
}

// Select returns the lines in the from..to range (see Slice) that match
// pattern. An empty pattern matches every line.
func Select(result *RunResult, from, to int, pattern string) ([]Line, error) {
	lines := Slice(result, from, to)
	if pattern == "" {
		return lines, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	out := lines[:0]
	for _, l := range lines {
		if re.MatchString(l.Text) {
			out = append(out, l)
		}
	}
	return out, nil
}
