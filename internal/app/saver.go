package app

import (
	"sync"
	"time"
)

// SaveScheduler coalesces rapid session mutations into a single delayed write.
// The contract: at most one pending scheduled write at a time, and each new
// mutation cancels and reschedules it. Flush writes synchronously.
//
// Durability is at-least-once and best-effort; a crash inside the debounce
// window loses only the latest mutations, never the on-disk record.
type SaveScheduler struct {
	store  Store
	logger *Logger
	delay  time.Duration

	mu    sync.Mutex
	timer *time.Timer
	sess  *Session
}

func NewSaveScheduler(store Store, logger *Logger, delay time.Duration) *SaveScheduler {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &SaveScheduler{store: store, logger: logger, delay: delay}
}

// MarkDirty schedules an asynchronous save of sess after the debounce delay.
func (s *SaveScheduler) MarkDirty(sess *Session) {
	if s == nil || sess == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

func (s *SaveScheduler) fire() {
	s.mu.Lock()
	sess := s.sess
	s.timer = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := s.store.Save(sess); err != nil {
		s.logger.Warn("scheduled save failed", map[string]interface{}{"error": err.Error()})
	}
}

// Flush cancels any pending write and saves synchronously.
func (s *SaveScheduler) Flush(sess *Session) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if sess == nil {
		sess = s.sess
	}
	s.sess = sess
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return s.store.Save(sess)
}

// Stop cancels any pending write without saving.
func (s *SaveScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a scheduled write is waiting.
func (s *SaveScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
