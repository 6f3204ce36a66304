//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// killGroup sends SIGKILL to the process group led by cmd's process so that
// helpers spawned by the server die with it.
func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
