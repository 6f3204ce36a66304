package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type sendOnly struct{}

func (sendOnly) Send(context.Context, Event) error { return nil }

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b down")}
	c := &recordingSink{err: errors.New("c down")}
	m := Multi{a, nil, b, sendOnly{}, c}

	err := m.Send(context.Background(), Event{Type: EventStart, Record: Record{Name: "lobby"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b down")
	assert.Contains(t, err.Error(), "c down")
	for _, s := range []*recordingSink{a, b, c} {
		require.Len(t, s.events, 1)
		assert.Equal(t, "lobby", s.events[0].Record.Name)
	}

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, c.closed)
}

func TestRecordRunning(t *testing.T) {
	r := Record{StartedAt: time.Now()}
	assert.True(t, r.Running())
	r.StoppedAt = time.Now()
	assert.False(t, r.Running())
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, NullTime(time.Time{}))
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	assert.Equal(t, ts.UTC(), NullTime(ts))
	assert.Nil(t, NullString(""))
	assert.Equal(t, "boom", NullString("boom"))
}
