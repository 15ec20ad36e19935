package runner

import "time"

// Result describes one launch of the command.
type Result struct {
	RunID     string    // unique identifier for this run
	Command   []string  // argv that was started
	Dir       string    // working directory; "" means inherited
	PID       int       // child process ID
	Lines     int       // stdout lines forwarded
	Output    []string  // retained transcript (bounded by Runner.MaxOutput)
	Truncated bool      // true if the transcript exceeded the size cap
	Stderr    []byte    // drained stderr (StderrDrain only, may be truncated)
	ExitCode  int       // child exit code; -1 unless reaped
	Reaped    bool      // true if the child was waited for
	StartedAt time.Time // when the child was started
	EndedAt   time.Time // when stdout closed (or the child was reaped)
}
