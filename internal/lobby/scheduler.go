package lobby

import (
	"sync"
	"time"
)

// Scheduler runs one fires-once callback per id.
type Scheduler interface {
	// Schedule arms fn to run at the given time, replacing any timer for id.
	Schedule(id string, at time.Time, fn func())
	// Cancel disarms the timer for id. Returns false if none was pending.
	Cancel(id string) bool
}

type timerEntry struct {
	timer *time.Timer
}

// TimerScheduler implements Scheduler with runtime timers.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*timerEntry
}

// NewTimerScheduler creates a TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*timerEntry)}
}

// Schedule implements Scheduler.
func (s *TimerScheduler) Schedule(id string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[id]; ok {
		old.timer.Stop()
	}

	entry := &timerEntry{}
	entry.timer = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		current := s.timers[id] == entry
		if current {
			delete(s.timers, id)
		}
		s.mu.Unlock()

		// A replaced timer that already fired must not run.
		if current {
			fn()
		}
	})
	s.timers[id] = entry
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	entry.timer.Stop()
	return true
}

// Pending returns the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}
