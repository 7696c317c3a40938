package scheduler

import (
	"time"

	"github.com/okian/matchday/internal/domain/dedupe"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHorizon sets how far ahead ScheduleUpcoming looks.
func WithHorizon(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.horizon = d
		}
	}
}

// WithDeduper replaces the recently-scheduled ledger.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Scheduler) {
		if d != nil {
			s.seen = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}
