// Package supervisor owns the single server process of a consolr instance.
//
// A Supervisor serializes lifecycle operations, is the only reader of the
// process output (fanning it out to subscribers), and records lifecycle
// events in metrics and the history sink.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/consolr/internal/history"
	"github.com/loykin/consolr/internal/metrics"
	"github.com/loykin/consolr/internal/process"
)

var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
	ErrNotStarted     = errors.New("server could not be started: runtime or work dir not found")
	ErrInvalidCommand = errors.New("command must be a single line")
	ErrClosed         = errors.New("supervisor is closed")
)

const (
	defaultTailSize       = 200
	defaultSampleInterval = 15 * time.Second
	historyTimeout        = 5 * time.Second
	historyQueueSize      = 64
)

type state int32

const (
	stateStopped state = iota
	stateStarting
	stateRunning
	stateStopping
)

func (s state) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// run tracks one launched process from Start until its exit was recorded.
type run struct {
	h        *process.Handle
	stopReq  chan struct{}           // closed when Stop takes over the run
	result   chan process.StopResult // Stop's outcome, sent once after stopReq is closed
	exited   chan struct{}           // closed after the exit was recorded
	pumpDone chan struct{}           // closed when the output reached EOF
	stopOnce sync.Once
}

func newRun(h *process.Handle) *run {
	return &run{
		h:        h,
		stopReq:  make(chan struct{}),
		result:   make(chan process.StopResult, 1),
		exited:   make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHistory sets the sink receiving lifecycle events.
func WithHistory(sink history.Sink) Option {
	return func(s *Supervisor) { s.sink = sink }
}

// WithConsoleLog mirrors every output line of the server into w.
func WithConsoleLog(w io.Writer) Option {
	return func(s *Supervisor) { s.console = w }
}

// WithTailSize sets how many recent lines Tail can return.
func WithTailSize(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.tail = newRing(n)
		}
	}
}

// WithSampleInterval sets how often resource gauges are refreshed while the
// server runs. Zero or negative disables periodic sampling.
func WithSampleInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.sampleEvery = d }
}

// Supervisor owns at most one live server process.
type Supervisor struct {
	spec        process.Spec
	log         *slog.Logger
	sink        history.Sink
	events      chan history.Event // drained by deliver; nil without a sink
	eventsDone  chan struct{}
	console     io.Writer
	sampleEvery time.Duration
	sample      func(pid int) (metrics.Resources, error)

	opMu sync.Mutex // serializes Start, Stop, Restart and Close

	mu         sync.Mutex
	state      state
	cur        *run
	last       process.Status // status of the most recent run once it exited
	lastStop   process.StopResult
	starts     int
	closed     bool
	lastLineAt time.Time

	histMu     sync.Mutex
	histClosed bool

	subMu  sync.Mutex
	subs   map[int]*subscriber
	nextID int
	tail   *ring
}

// New returns a Supervisor for spec. Nothing is launched until Start.
func New(spec process.Spec, opts ...Option) *Supervisor {
	s := &Supervisor{
		spec:        spec.WithDefaults(),
		log:         slog.Default(),
		sampleEvery: defaultSampleInterval,
		sample:      metrics.Sample,
		subs:        make(map[int]*subscriber),
		tail:        newRing(defaultTailSize),
		last:        process.Status{ExitCode: -1},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("name", s.spec.Name)
	if s.sink != nil {
		s.events = make(chan history.Event, historyQueueSize)
		s.eventsDone = make(chan struct{})
		go s.deliver()
	}
	return s
}

// Spec returns the launch description with defaults applied.
func (s *Supervisor) Spec() process.Spec { return s.spec }

func (s *Supervisor) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Supervisor) setState(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start launches the server. It returns ErrAlreadyRunning when a process is
// alive and ErrNotStarted when the runtime executable or working directory
// does not exist.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx)
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cur != nil && s.cur.h.Running() {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = stateStarting
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		s.setState(stateStopped)
		return err
	}

	name := s.spec.Name
	h, err := process.Start(s.spec)
	if err != nil || h == nil {
		s.setState(stateStopped)
		reason, ret := "not_found", ErrNotStarted
		if err != nil {
			reason, ret = "error", fmt.Errorf("failed to start server %q: %w", name, err)
		}
		metrics.IncLaunchFailure(name, reason)
		s.emit(history.EventLaunchFailed, history.Record{Name: name, ExitCode: -1, Error: ret.Error()})
		s.log.Error("server launch failed", "runtime", s.spec.Runtime, "work_dir", s.spec.WorkDir, "error", ret)
		return ret
	}

	r := newRun(h)
	s.mu.Lock()
	s.cur = r
	s.state = stateRunning
	s.starts++
	s.mu.Unlock()

	go s.pump(r)
	go s.watch(r)

	st := h.Status()
	metrics.IncStart(name)
	metrics.SetRunning(name, true)
	s.emit(history.EventStart, recordOf(st))
	s.log.Info("server started", "pid", st.PID, "run_id", st.RunID, "args", strings.Join(s.spec.Args(), " "))
	return nil
}

// Send writes one console command to the server.
func (s *Supervisor) Send(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return ErrInvalidCommand
	}
	r := s.current()
	if r == nil || !r.h.Running() {
		return ErrNotRunning
	}
	if err := r.h.Send(command); err != nil {
		return err
	}
	metrics.IncCommand(s.spec.Name)
	s.log.Debug("console command sent", "command", command)
	return nil
}

// Stop runs the stop protocol: the stop command, a bounded wait, then a kill.
// When ctx ends first Stop returns its error while the protocol completes in
// the background.
func (s *Supervisor) Stop(ctx context.Context) (process.StopResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) (process.StopResult, error) {
	r := s.current()
	if r == nil || !r.h.Running() {
		return process.StopNotRunning, nil
	}
	s.setState(stateStopping)
	s.log.Info("stopping server", "command", s.spec.StopCommand, "timeout", s.spec.StopTimeout)

	began := time.Now()
	done := make(chan process.StopResult, 1)
	launched := false
	r.stopOnce.Do(func() {
		launched = true
		close(r.stopReq)
		go func() {
			res := r.h.Stop()
			metrics.ObserveStop(s.spec.Name, res.String(), time.Since(began).Seconds())
			r.result <- res
			done <- res
		}()
	})

	if !launched {
		// an earlier Stop gave up waiting; its protocol is still running
		select {
		case <-r.exited:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.lastStop, nil
		case <-ctx.Done():
			return process.StopNotRunning, ctx.Err()
		}
	}

	select {
	case res := <-done:
		<-r.exited
		return res, nil
	case <-ctx.Done():
		return process.StopNotRunning, ctx.Err()
	}
}

// Restart stops the server if it runs and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if _, err := s.stopLocked(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return s.startLocked(ctx)
}

// Sync waits for an in-flight Start, Stop or Restart to finish. After Done
// fires, Sync followed by Running tells a restart from a final exit.
func (s *Supervisor) Sync() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
}

// Running reports whether the server process is alive.
func (s *Supervisor) Running() bool {
	r := s.current()
	return r != nil && r.h.Running()
}

// Done returns a channel closed once the current run's exit was recorded.
// Without a run it returns a closed channel.
func (s *Supervisor) Done() <-chan struct{} {
	if r := s.current(); r != nil {
		return r.exited
	}
	c := make(chan struct{})
	close(c)
	return c
}

// Close stops the server and waits for its output to drain. It then ends
// every subscription and flushes pending history events. Start fails with
// ErrClosed afterwards.
func (s *Supervisor) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, err := s.stopLocked(ctx)
	if r := s.current(); r != nil && err == nil {
		select {
		case <-r.pumpDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	s.closeSubscribers()
	if herr := s.closeHistory(ctx); err == nil {
		err = herr
	}
	return err
}

// watch records the exit of r and refreshes resource gauges while it runs.
func (s *Supervisor) watch(r *run) {
	name := s.spec.Name
	var tick <-chan time.Time
	if s.sampleEvery > 0 {
		t := time.NewTicker(s.sampleEvery)
		defer t.Stop()
		tick = t.C
	}
	for waiting := true; waiting; {
		select {
		case <-r.h.Done():
			waiting = false
		case <-tick:
			if res, err := s.sample(r.h.PID()); err == nil {
				metrics.SetResources(name, res)
			}
		}
	}

	res := process.StopNotRunning
	requested := false
	select {
	case <-r.stopReq:
		requested = true
		res = <-r.result
	default:
	}

	st := r.h.Status()
	s.mu.Lock()
	s.last = st
	s.lastStop = res
	s.state = stateStopped
	s.mu.Unlock()

	metrics.SetRunning(name, false)
	metrics.ClearResources(name)
	metrics.IncExit(name, requested)

	rec := recordOf(st)
	switch res {
	case process.StopGraceful:
		s.emit(history.EventStop, rec)
		s.log.Info("server stopped", "pid", st.PID, "exit_code", st.ExitCode)
	case process.StopKilled:
		s.emit(history.EventKill, rec)
		s.log.Warn("server did not stop in time and was killed", "pid", st.PID, "timeout", s.spec.StopTimeout)
	default:
		s.emit(history.EventExit, rec)
		s.log.Warn("server exited", "pid", st.PID, "exit_code", st.ExitCode, "error", st.ExitErr)
	}
	close(r.exited)
}

func recordOf(st process.Status) history.Record {
	return history.Record{
		Name:      st.Name,
		RunID:     st.RunID,
		PID:       st.PID,
		StartedAt: st.StartedAt,
		StoppedAt: st.StoppedAt,
		ExitCode:  st.ExitCode,
		Error:     st.ExitErr,
	}
}

// emit queues an event for the history sink. Delivery happens on its own
// goroutine so a slow sink never delays Start or Stop.
func (s *Supervisor) emit(t history.EventType, rec history.Record) {
	if s.events == nil {
		return
	}
	ev := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if s.histClosed {
		s.log.Warn("history event after close dropped", "event", t)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("history queue full, event dropped", "event", t)
	}
}

func (s *Supervisor) deliver() {
	defer close(s.eventsDone)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := s.sink.Send(ctx, ev); err != nil {
			s.log.Warn("history sink failed", "event", ev.Type, "error", err)
		}
		cancel()
	}
}

// closeHistory stops accepting events and waits until the queued ones were
// handed to the sink.
func (s *Supervisor) closeHistory(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	s.histMu.Lock()
	if !s.histClosed {
		s.histClosed = true
		close(s.events)
	}
	s.histMu.Unlock()
	select {
	case <-s.eventsDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
