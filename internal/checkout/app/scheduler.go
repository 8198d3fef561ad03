package app

import (
	"sync"
	"time"
)

// Scheduler runs one-shot deferred tasks bound to a checkout session.
type Scheduler interface {
	// AfterFunc runs fn once after d unless the task or the scheduler is
	// stopped first.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// Stop cancels every pending task. Later AfterFunc calls are no-ops.
	Stop()
}

type TimerScheduler struct {
	mu      sync.Mutex
	stopped bool
	nextID  int
	timers  map[int]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[int]*time.Timer)}
}

func (s *TimerScheduler) AfterFunc(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()

		if live {
			fn()
		}
	})

	return func() { s.cancel(id) }
}

func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending returns the number of tasks that have not fired or been cancelled.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}
