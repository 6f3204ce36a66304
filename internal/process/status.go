package process

import "time"

// Status is a point-in-time copy of a handle's state.
type Status struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  int       `json:"exit_code"` // -1 while running or when killed by a signal
	ExitErr   string    `json:"exit_error,omitempty"`
}

// StopResult tells which branch of the stop protocol was taken.
type StopResult int

const (
	StopNotRunning StopResult = iota // nothing to stop
	StopGraceful                     // exited on its own after the stop command
	StopKilled                       // did not exit in time and was killed
)

func (r StopResult) String() string {
	switch r {
	case StopGraceful:
		return "graceful"
	case StopKilled:
		return "killed"
	default:
		return "not_running"
	}
}
