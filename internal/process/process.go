package process

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Handle is a launched server process. A nil *Handle means no process was
// started; every method is safe to call on it and does nothing.
// Once the exit status has been observed the handle is inert.
type Handle struct {
	spec      Spec
	cmd       *exec.Cmd
	runID     string
	pid       int
	startedAt time.Time

	inMu  sync.Mutex
	stdin io.WriteCloser

	outMu sync.Mutex
	out   *os.File      // read end of the merged stdout/stderr pipe
	lines *bufio.Reader // nil once the pipe reached EOF

	done chan struct{} // closed by reap after cmd.Wait returns

	mu        sync.Mutex
	stoppedAt time.Time
	exitCode  int
	exitErr   error
}

// Start launches the server described by spec with stdin on a pipe and
// stdout/stderr merged into a second pipe.
//
// When the runtime executable or the working directory cannot be found, Start
// returns (nil, nil): that is the expected "no process" outcome, not an error.
// Any other launch failure is returned as an error.
func Start(spec Spec) (*Handle, error) {
	spec = spec.WithDefaults()
	cmd := spec.BuildCommand()
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	// A single *os.File for both streams keeps their interleaving as the OS delivers it.
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	h := &Handle{
		spec:      spec,
		cmd:       cmd,
		runID:     uuid.NewString(),
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		stdin:     stdin,
		out:       pr,
		lines:     bufio.NewReader(transform.NewReader(pr, unicode.UTF8.NewDecoder())),
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	go h.reap()
	return h, nil
}

// reap is the only caller of cmd.Wait for this handle.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.stoppedAt = time.Now()
	h.exitErr = err
	if ps := h.cmd.ProcessState; ps != nil {
		h.exitCode = ps.ExitCode()
	}
	h.mu.Unlock()
	close(h.done)
}

// Running reports whether the process has been started and its exit status
// has not been observed yet. It never blocks.
func (h *Handle) Running() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// IsRunning is Running for an optional handle.
func IsRunning(h *Handle) bool { return h.Running() }

// Done returns a channel closed once the process exit has been observed.
// For a nil handle the returned channel is already closed.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return h.done
}

// Spec returns the spec the handle was started with, defaults applied.
func (h *Handle) Spec() Spec {
	if h == nil {
		return Spec{}
	}
	return h.spec
}

// PID returns the OS process id, or 0 for a nil handle.
func (h *Handle) PID() int {
	if h == nil {
		return 0
	}
	return h.pid
}

// RunID identifies this particular launch.
func (h *Handle) RunID() string {
	if h == nil {
		return ""
	}
	return h.runID
}

// ExitErr returns the error reported by Wait once the process exited.
func (h *Handle) ExitErr() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Status returns a snapshot of the handle.
func (h *Handle) Status() Status {
	if h == nil {
		return Status{ExitCode: -1}
	}
	st := Status{
		Name:      h.spec.Name,
		RunID:     h.runID,
		PID:       h.pid,
		StartedAt: h.startedAt,
		Running:   h.Running(),
	}
	h.mu.Lock()
	st.StoppedAt = h.stoppedAt
	st.ExitCode = h.exitCode
	if h.exitErr != nil {
		st.ExitErr = h.exitErr.Error()
	}
	h.mu.Unlock()
	return st
}

// Send writes command plus a newline to the server's stdin and returns once
// the write has completed. Sending to a nil or exited handle does nothing.
// A pipe closed by the far end is not reported; the exit shows up in Running.
func (h *Handle) Send(command string) error {
	if h == nil || h.stdin == nil || !h.Running() {
		return nil
	}
	h.inMu.Lock()
	defer h.inMu.Unlock()
	if _, err := io.WriteString(h.stdin, command+"\n"); err != nil {
		if isClosedPipe(err) {
			return nil
		}
		return fmt.Errorf("write to %s: %w", h.spec.Name, err)
	}
	return nil
}

// Stop asks the server to shut down with the stop command and waits up to
// the spec's StopTimeout for it to exit. If it is still alive after that the
// process group is killed. When Stop returns the process is not running.
//
// The timeout covers the write of the stop command too: a server that no
// longer drains stdin cannot hold Stop past StopTimeout.
func (h *Handle) Stop() StopResult {
	if !h.Running() {
		return StopNotRunning
	}
	t := time.NewTimer(h.spec.StopTimeout)
	defer t.Stop()

	// buffered so the writer never outlives Stop waiting for a receiver
	sent := make(chan error, 1)
	go func() { sent <- h.Send(h.spec.StopCommand) }()

	select {
	case <-h.done:
		return StopGraceful
	case err := <-sent:
		if err != nil {
			// the command never reached the server; waiting would only delay the kill
			h.kill()
			return StopKilled
		}
	case <-t.C:
		return h.killUnlessExited()
	}

	select {
	case <-h.done:
		return StopGraceful
	case <-t.C:
	}
	return h.killUnlessExited()
}

func (h *Handle) killUnlessExited() StopResult {
	select {
	case <-h.done:
		return StopGraceful
	default:
	}
	// a write blocked on a full stdin pipe fails with EPIPE once the group is gone
	h.kill()
	return StopKilled
}

// kill terminates the process forcibly and blocks until reap observed the exit.
func (h *Handle) kill() {
	if err := killGroup(h.cmd); err != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	<-h.done
}

// Logs returns the server's merged stdout/stderr as a sequence of lines with
// surrounding whitespace removed. Invalid UTF-8 is replaced with U+FFFD.
// The sequence is single pass: it pulls one line at a time from the pipe and
// ends when the pipe is closed, i.e. when the process exited and all output
// has been read. Breaking out of the loop leaves the remaining output for the
// next call. Only one consumer reads at a time; a second one waits its turn.
func (h *Handle) Logs() iter.Seq[string] {
	return func(yield func(string) bool) {
		if h == nil {
			return
		}
		h.outMu.Lock()
		defer h.outMu.Unlock()
		for h.lines != nil {
			raw, err := h.lines.ReadString('\n')
			if raw != "" {
				if !yield(strings.TrimSpace(raw)) {
					return
				}
			}
			if err != nil {
				h.closeOutput()
				return
			}
		}
	}
}

// closeOutput must be called with outMu held.
func (h *Handle) closeOutput() {
	h.lines = nil
	if h.out != nil {
		_ = h.out.Close()
		h.out = nil
	}
}
