package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/process"
)

type fakeTarget struct {
	mu       sync.Mutex
	running  bool
	sent     []string
	restarts int
	starts   int
	stops    int

	restartDelay time.Duration
	inflight     atomic.Int32
	maxInflight  atomic.Int32
	sendErr      error
}

func (f *fakeTarget) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = true
	return nil
}

func (f *fakeTarget) Stop(context.Context) (process.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.running {
		return process.StopNotRunning, nil
	}
	f.running = false
	return process.StopGraceful, nil
}

func (f *fakeTarget) Restart(ctx context.Context) error {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-time.After(f.restartDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
	return nil
}

func (f *fakeTarget) Send(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.sendErr
}

func (f *fakeTarget) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTarget) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestParseSchedule(t *testing.T) {
	for _, ok := range []string{"@every 100ms", "@every 10m", "@daily 04:00", " @daily 23:59 "} {
		_, err := parseSchedule(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"* * * * *", "@every", "@every -1s", "@every 0s", "@daily 25:00", "@daily 4am", ""} {
		_, err := parseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestNextDaily(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 10, 4, 0, 0, 0, loc), nextDaily(now, 4, 0))
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, loc), nextDaily(now, 3, 0))
	// exactly at the fire time schedules tomorrow
	assert.Equal(t, time.Date(2026, 3, 11, 3, 30, 0, 0, loc), nextDaily(now, 3, 30))
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		err  string
	}{
		{"ok command", Job{Name: "save", Schedule: "@every 5m", Command: "save-all"}, ""},
		{"ok restart", Job{Name: "nightly", Schedule: "@daily 04:00", Action: ActionRestart}, ""},
		{"case insensitive", Job{Name: "up", Schedule: "@every 1m", Action: "START"}, ""},
		{"no name", Job{Schedule: "@every 5m", Command: "x"}, "requires a name"},
		{"no command", Job{Name: "a", Schedule: "@every 5m"}, "command is required"},
		{"multi line", Job{Name: "a", Schedule: "@every 5m", Command: "say a\nstop"}, "single line"},
		{"bad action", Job{Name: "a", Schedule: "@every 5m", Action: "reboot"}, "unknown action"},
		{"bad schedule", Job{Name: "a", Schedule: "hourly", Command: "x"}, "unsupported schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSchedulerAddRejectsDuplicates(t *testing.T) {
	s := NewScheduler(&fakeTarget{}, nil)
	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@every 1s", Command: "x"}))
	assert.Error(t, s.Add(Job{Name: "a", Schedule: "@every 2s", Command: "y"}))
}

func TestSchedulerSendsCommandWhileRunning(t *testing.T) {
	target := &fakeTarget{running: true}
	s := NewScheduler(target, nil)
	require.NoError(t, s.Add(Job{Name: "save", Schedule: "@every 20ms", Command: "save-all"}))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return target.sentCount() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, s.Start())
	assert.GreaterOrEqual(t, s.Fired("save"), int64(3))
	assert.Zero(t, s.Fired("missing"))
}

func TestSchedulerSkipsCommandWhenStopped(t *testing.T) {
	target := &fakeTarget{}
	s := NewScheduler(target, nil)
	require.NoError(t, s.Add(Job{Name: "save", Schedule: "@every 10ms", Command: "save-all"}))
	require.NoError(t, s.Start())
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	assert.Zero(t, target.sentCount())
	assert.Zero(t, s.Fired("save"))
}

func TestSchedulerNonOverlap(t *testing.T) {
	target := &fakeTarget{running: true, restartDelay: 150 * time.Millisecond}
	s := NewScheduler(target, nil)
	require.NoError(t, s.Add(Job{Name: "restart", Schedule: "@every 10ms", Action: ActionRestart}))
	require.NoError(t, s.Start())
	time.Sleep(400 * time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(1), target.maxInflight.Load())
	assert.GreaterOrEqual(t, s.Fired("restart"), int64(1))
}

func TestSchedulerStopCancelsInflight(t *testing.T) {
	target := &fakeTarget{running: true, restartDelay: time.Hour}
	s := NewScheduler(target, nil)
	require.NoError(t, s.Add(Job{Name: "restart", Schedule: "@every 10ms", Action: ActionRestart}))
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return target.inflight.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the running restart")
	}
}

func TestSchedulerStartStopActions(t *testing.T) {
	target := &fakeTarget{sendErr: errors.New("unused")}
	s := NewScheduler(target, nil)
	require.NoError(t, s.Add(Job{Name: "up", Schedule: "@every 15ms", Action: ActionStart}))
	require.NoError(t, s.Start())
	require.Eventually(t, target.Running, time.Second, 5*time.Millisecond)
	s.Stop()

	target.mu.Lock()
	starts := target.starts
	target.mu.Unlock()
	assert.Equal(t, 1, starts, "start is skipped while running")

	s2 := NewScheduler(target, nil)
	require.NoError(t, s2.Add(Job{Name: "down", Schedule: "@every 15ms", Action: ActionStop}))
	require.NoError(t, s2.Start())
	require.Eventually(t, func() bool { return !target.Running() }, time.Second, 5*time.Millisecond)
	s2.Stop()
}
