package supervisor

import (
	"sync"
	"time"

	"github.com/loykin/consolr/internal/metrics"
)

const defaultSubscriberBuffer = 256

type subscriber struct {
	ch   chan string
	once sync.Once
}

func (sub *subscriber) close() { sub.once.Do(func() { close(sub.ch) }) }

// ring keeps the most recent lines.
type ring struct {
	buf   []string
	start int
	n     int
}

func newRing(size int) *ring { return &ring{buf: make([]string, size)} }

func (r *ring) add(line string) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = line
		r.n++
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % len(r.buf)
}

// last returns up to k lines, oldest first.
func (r *ring) last(k int) []string {
	if k <= 0 || r.n == 0 {
		return nil
	}
	k = min(k, r.n)
	out := make([]string, 0, k)
	for i := r.n - k; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// pump is the only consumer of the run's output.
func (s *Supervisor) pump(r *run) {
	defer close(r.pumpDone)
	for line := range r.h.Logs() {
		s.publish(line)
	}
}

func (s *Supervisor) publish(line string) {
	name := s.spec.Name
	if s.console != nil {
		if _, err := s.console.Write([]byte(line + "\n")); err != nil {
			s.log.Debug("console log write failed", "error", err)
		}
	}
	metrics.IncLogLine(name)

	s.mu.Lock()
	s.lastLineAt = time.Now()
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.tail.add(line)
	for _, sub := range s.subs {
		select {
		case sub.ch <- line:
		default:
			metrics.IncDropped(name)
		}
	}
}

// Subscribe returns a channel receiving every output line from now on,
// across restarts, until cancel is called or the supervisor is closed.
// A subscriber that does not keep up loses lines; the pump never waits.
func (s *Supervisor) Subscribe(buffer int) (<-chan string, func()) {
	_, ch, cancel := s.SubscribeWithTail(0, buffer)
	return ch, cancel
}

// SubscribeWithTail is Subscribe preceded by up to n recent lines. The tail
// is taken under the same lock publish holds, so no line is missed or
// delivered twice between the two.
func (s *Supervisor) SubscribeWithTail(n, buffer int) ([]string, <-chan string, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &subscriber{ch: make(chan string, buffer)}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	tail := s.tail.last(n)
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		sub.close()
		return tail, sub.ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	return tail, sub.ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
		sub.close()
	}
}

// Tail returns up to n of the most recent output lines, oldest first.
func (s *Supervisor) Tail(n int) []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.tail.last(n)
}

func (s *Supervisor) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, sub := range s.subs {
		sub.close()
		delete(s.subs, id)
	}
}
