package chat

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler runs delayed work. The returned func cancels it; a cancelled task
// never runs, even if its timer already fired.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
	Now() time.Time
}

// scheduler delivers expiries onto a loop and forgets every task on stop, so
// nothing fires against a torn-down session.
type scheduler struct {
	clock clockwork.Clock
	loop  *loop

	mu      sync.Mutex
	timers  map[uint64]clockwork.Timer
	next    uint64
	stopped bool
}

func newScheduler(clock clockwork.Clock, l *loop) *scheduler {
	return &scheduler{
		clock:  clock,
		loop:   l,
		timers: make(map[uint64]clockwork.Timer),
	}
}

func (s *scheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *scheduler) After(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}

	s.next++
	id := s.next
	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.loop.post(func() {
			if s.claim(id) {
				fn()
			}
		})
	})
	return func() { s.cancel(id) }
}

// claim removes a due task and reports whether it is still live.
func (s *scheduler) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

func (s *scheduler) cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// pending returns the number of live tasks.
func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
