package manager

import (
	"sync"
	"time"
)

// timer is the handle of a scheduled retry task.
type timer interface {
	Stop() bool
}

// timerFactory builds a timer that runs fire after d. Injectable so tests can
// trigger retries deterministically.
type timerFactory func(d time.Duration, fire func()) timer

func realTimer(d time.Duration, fire func()) timer {
	return time.AfterFunc(d, fire)
}

// scheduler tracks at most one pending reconnect task per session. Scheduling
// a new task cancels and replaces any prior task for that session.
type scheduler struct {
	mu       sync.Mutex
	pending  map[string]timer
	newTimer timerFactory
}

func newScheduler(newTimer timerFactory) *scheduler {
	if newTimer == nil {
		newTimer = realTimer
	}
	return &scheduler{pending: make(map[string]timer), newTimer: newTimer}
}

// schedule arranges for fire to run after d. fire runs on the timer goroutine
// and must re-check whether the retry is still needed.
func (s *scheduler) schedule(sessionID string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[sessionID]; ok {
		old.Stop()
	}
	var t timer
	t = s.newTimer(d, func() {
		s.mu.Lock()
		if cur, ok := s.pending[sessionID]; ok && cur == t {
			delete(s.pending, sessionID)
		}
		s.mu.Unlock()
		fire()
	})
	s.pending[sessionID] = t
}

// cancel stops and forgets any pending task for sessionID.
func (s *scheduler) cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[sessionID]; ok {
		t.Stop()
		delete(s.pending, sessionID)
	}
}

func (s *scheduler) hasPending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[sessionID]
	return ok
}
