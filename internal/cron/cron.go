// Package cron fires console actions on a schedule: periodic commands such
// as "save-all", or a nightly restart.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/consolr/internal/process"
)

// Action is what a job does when it fires.
type Action string

const (
	ActionCommand Action = "command" // send Command to the console (default)
	ActionRestart Action = "restart" // restart a running server
	ActionStart   Action = "start"   // start the server unless running
	ActionStop    Action = "stop"    // run the stop protocol
)

// Job defines a scheduled action.
// Schedule is "@every <duration>" (e.g. "@every 10m") or "@daily HH:MM" in
// local time. A tick is skipped while the previous run of the same job is
// still in progress, and command jobs are skipped while the server is down.
type Job struct {
	Name     string `mapstructure:"name"`
	Schedule string `mapstructure:"schedule"`
	Action   Action `mapstructure:"action"`
	Command  string `mapstructure:"command"`
}

// Validate checks a job without adding it to a scheduler.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("schedule job requires a name")
	}
	if _, err := parseSchedule(j.Schedule); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	switch j.action() {
	case ActionCommand:
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("job %s: command is required", j.Name)
		}
		if strings.ContainsAny(j.Command, "\r\n") {
			return fmt.Errorf("job %s: command must be a single line", j.Name)
		}
	case ActionRestart, ActionStart, ActionStop:
	default:
		return fmt.Errorf("job %s: unknown action %q", j.Name, j.Action)
	}
	return nil
}

func (j Job) action() Action {
	if j.Action == "" {
		return ActionCommand
	}
	return Action(strings.ToLower(string(j.Action)))
}

// Target is the supervised server the jobs act on.
type Target interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (process.StopResult, error)
	Restart(ctx context.Context) error
	Send(command string) error
	Running() bool
}

type entry struct {
	job     Job
	next    nextFunc
	running atomic.Bool
	fired   atomic.Int64
}

// Scheduler runs jobs against one Target.
// Use Start to launch the background loops, and Stop to cancel them.
type Scheduler struct {
	target  Target
	log     *slog.Logger
	entries []*entry
	now     func() time.Time

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(target Target, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{target: target, log: log, now: time.Now}
}

func (s *Scheduler) Add(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	for _, e := range s.entries {
		if e.job.Name == job.Name {
			return fmt.Errorf("duplicate schedule job %s", job.Name)
		}
	}
	next, _ := parseSchedule(job.Schedule)
	job.Action = job.action()
	s.entries = append(s.entries, &entry{job: job, next: next})
	return nil
}

// Start launches all job loops. Call Stop to cancel.
func (s *Scheduler) Start() error {
	if s.quit != nil {
		return errors.New("scheduler already started")
	}
	s.quit = make(chan struct{})
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.runJob(e)
	}
	return nil
}

// Fired returns how many times the named job has run.
func (s *Scheduler) Fired(name string) int64 {
	for _, e := range s.entries {
		if e.job.Name == name {
			return e.fired.Load()
		}
	}
	return 0
}

func (s *Scheduler) runJob(e *entry) {
	defer s.wg.Done()
	for {
		now := s.now()
		t := time.NewTimer(e.next(now).Sub(now))
		select {
		case <-s.quit:
			t.Stop()
			return
		case <-t.C:
		}
		// attempt to mark running; if already true, skip this tick
		if !e.running.CompareAndSwap(false, true) {
			s.log.Debug("schedule tick skipped, previous run active", "job", e.job.Name)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer e.running.Store(false)
			s.fire(e)
		}()
	}
}

func (s *Scheduler) fire(e *entry) {
	j := e.job
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	var err error
	switch j.Action {
	case ActionCommand:
		if !s.target.Running() {
			s.log.Debug("schedule skipped, server not running", "job", j.Name)
			return
		}
		err = s.target.Send(j.Command)
	case ActionRestart:
		if !s.target.Running() {
			s.log.Debug("schedule skipped, server not running", "job", j.Name)
			return
		}
		err = s.target.Restart(ctx)
	case ActionStart:
		if s.target.Running() {
			return
		}
		err = s.target.Start(ctx)
	case ActionStop:
		var res process.StopResult
		res, err = s.target.Stop(ctx)
		if err == nil {
			s.log.Info("scheduled stop", "job", j.Name, "result", res.String())
		}
	}
	e.fired.Add(1)
	if err != nil {
		s.log.Warn("scheduled action failed", "job", j.Name, "action", string(j.Action), "error", err)
		return
	}
	s.log.Info("scheduled action", "job", j.Name, "action", string(j.Action))
}

// Stop cancels all jobs and waits for running actions to return.
func (s *Scheduler) Stop() {
	if s.quit == nil {
		return
	}
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	s.wg.Wait()
}
