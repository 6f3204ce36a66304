package supervisor

import (
	"time"

	"github.com/loykin/consolr/internal/metrics"
	"github.com/loykin/consolr/internal/process"
)

// Status is a snapshot of the supervised server.
type Status struct {
	Name       string             `json:"name"`
	State      string             `json:"state"`
	Running    bool               `json:"running"`
	PID        int                `json:"pid,omitempty"`
	RunID      string             `json:"run_id,omitempty"`
	StartedAt  time.Time          `json:"started_at,omitempty"`
	StoppedAt  time.Time          `json:"stopped_at,omitempty"`
	ExitCode   int                `json:"exit_code"`
	ExitErr    string             `json:"exit_error,omitempty"`
	LastStop   string             `json:"last_stop,omitempty"`
	Restarts   int                `json:"restarts"`
	LastLineAt time.Time          `json:"last_line_at,omitempty"`
	Resources  *metrics.Resources `json:"resources,omitempty"`
}

// Status returns the current state. While the server runs it includes a
// fresh resource sample.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	r := s.cur
	st := Status{
		Name:       s.spec.Name,
		State:      s.state.String(),
		Restarts:   max(s.starts-1, 0),
		LastLineAt: s.lastLineAt,
	}
	last := s.last
	if s.starts > 0 && s.lastStop != process.StopNotRunning {
		st.LastStop = s.lastStop.String()
	}
	s.mu.Unlock()

	ps := last
	if r != nil {
		ps = r.h.Status()
	}
	st.Running = ps.Running
	st.PID = ps.PID
	st.RunID = ps.RunID
	st.StartedAt = ps.StartedAt
	st.StoppedAt = ps.StoppedAt
	st.ExitCode = ps.ExitCode
	st.ExitErr = ps.ExitErr

	if ps.Running {
		if res, err := s.sample(ps.PID); err == nil {
			metrics.SetResources(s.spec.Name, res)
			st.Resources = &res
		} else {
			s.log.Debug("resource sample failed", "pid", ps.PID, "error", err)
		}
	}
	return st
}
