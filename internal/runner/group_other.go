//go:build !unix

package runner

import "os/exec"

// setProcessGroup is a no-op where process groups are unavailable;
// cancellation kills the direct child only.
func setProcessGroup(_ *exec.Cmd) {}
