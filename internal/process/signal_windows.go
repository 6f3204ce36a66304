//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// ERROR_NO_DATA is returned when writing to a pipe whose reader closed.
const errorNoData syscall.Errno = 232

// killGroup terminates the process. Windows has no process group signal;
// TerminateProcess on the leader is the closest equivalent.
func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.ERROR_BROKEN_PIPE) || errors.Is(err, errorNoData)
}
