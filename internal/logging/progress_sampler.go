package logging

import (
	"strings"
	"sync"
	"time"
)

// ProgressSampler throttles progress events to at most one per interval while
// always letting through the first event, stage changes, and completion.
type ProgressSampler struct {
	mu        sync.Mutex
	interval  time.Duration
	now       func() time.Time
	lastStage string
	lastEmit  time.Time
	completed bool
	emitted   bool
}

// NewProgressSampler constructs a sampler that emits at most once per
// interval (default 10s).
func NewProgressSampler(interval time.Duration) *ProgressSampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ProgressSampler{interval: interval, now: time.Now}
}

// WithClock overrides the time source; intended for tests.
func (s *ProgressSampler) WithClock(now func() time.Time) *ProgressSampler {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

// ShouldLog reports whether a progress event should be emitted. Percent can
// be negative to indicate "unknown"; stage is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stage = strings.TrimSpace(stage)
	emit := false
	switch {
	case !s.emitted:
		emit = true
	case stage != "" && stage != s.lastStage:
		emit = true
		s.completed = false
	case percent >= 100 && !s.completed:
		emit = true
	case now.Sub(s.lastEmit) >= s.interval:
		emit = true
	}
	if !emit {
		return false
	}
	if stage != "" {
		s.lastStage = stage
	}
	if percent >= 100 {
		s.completed = true
	}
	s.emitted = true
	s.lastEmit = now
	return true
}

// Reset clears the sampler state (e.g. when a new attempt starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStage = ""
	s.lastEmit = time.Time{}
	s.completed = false
	s.emitted = false
}
