//go:build windows

package runner

import "os/exec"

// prepareCommand leaves the child as is; exec.CommandContext kills the
// direct child and WaitDelay bounds the wait for inherited pipes.
func prepareCommand(cmd *exec.Cmd) {}
