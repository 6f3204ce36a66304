package process

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
)

// isNotFound reports launch errors caused by a missing executable or
// working directory.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// isClosedPipe reports write errors caused by the reader side going away.
func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || isBrokenPipe(err)
}
