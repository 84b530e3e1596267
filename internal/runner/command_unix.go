//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// prepareCommand puts the child in its own process group so that a
// cancelled run also kills anything the executable started.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
