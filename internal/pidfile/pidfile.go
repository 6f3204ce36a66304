// Package pidfile guards the daemon against running twice. The file holds
// the PID on the first line and {"start_unix":N} on the second, so a PID
// reused by an unrelated process is not mistaken for a live daemon.
package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrRunning is returned by Acquire when the file names a live process.
	ErrRunning = errors.New("already running")
	// ErrInvalid means the file does not start with a PID.
	ErrInvalid = errors.New("invalid pid file")
)

type meta struct {
	StartUnix int64 `json:"start_unix"`
}

// File is a PID file at Path.
type File struct {
	Path string
}

// Read returns the PID and recorded start time. A missing second line
// yields a zero start time.
func (f File) Read() (pid int, startUnix int64, err error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %s: %w", ErrInvalid, f.Path, err)
	}
	if len(lines) > 1 {
		var m meta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil {
			startUnix = m.StartUnix
		}
	}
	return pid, startUnix, nil
}

// Alive reports whether the file names a running process that is the one
// that wrote it. A missing file is not an error.
func (f File) Alive() (bool, int, error) {
	pid, start, err := f.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if start > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != start {
			return false, pid, nil
		}
	}
	return pidAlive(pid), pid, nil
}

// Write records pid and its start time.
func (f File) Write(pid int) error {
	b, err := json.Marshal(meta{StartUnix: procStartUnix(pid)})
	if err != nil {
		return err
	}
	// #nosec G306
	return os.WriteFile(f.Path, []byte(strconv.Itoa(pid)+"\n"+string(b)+"\n"), 0o644)
}

// Acquire writes pid unless the file names another live process. Stale
// files are overwritten.
func (f File) Acquire(pid int) error {
	alive, other, err := f.Alive()
	if err != nil && !errors.Is(err, ErrInvalid) {
		return err
	}
	if alive && other != pid {
		return fmt.Errorf("%w with pid %d (pidfile %s)", ErrRunning, other, f.Path)
	}
	return f.Write(pid)
}

// Remove deletes the file. An empty path or a missing file is not an error.
func (f File) Remove() error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
