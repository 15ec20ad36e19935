//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// groupWaitDelay bounds how long Wait lingers after the group was signalled.
const groupWaitDelay = 5 * time.Second

// setProcessGroup starts cmd as the leader of a new process group and makes
// context cancellation send SIGTERM to the whole group. npm runs the start
// script in a grandchild, so signalling only the direct child would leave
// the server running and holding the stdout pipe open.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = groupWaitDelay
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
