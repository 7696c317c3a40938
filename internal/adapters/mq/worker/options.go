package worker

import (
	"time"

	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/tracker"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithConcurrency bounds the jobs handled at once.
func WithConcurrency(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLock sets the lease and per-job timeout.
func WithLock(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.lock = d
		}
	}
}

// WithPollInterval sets how often an idle consumer looks for work.
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithQueueBreaker reports successes and rate limits.
func WithQueueBreaker(b QueueBreaker) Option {
	return func(c *Consumer) { c.breaker = b }
}

// WithDeadLetters parks exhausted and permanent failures.
func WithDeadLetters(d DeadLetters) Option {
	return func(c *Consumer) { c.deadLetters = d }
}

// WithTracker reports unexpected failures.
func WithTracker(t tracker.Tracker) Option {
	return func(c *Consumer) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithLogger sets a custom logger for the consumer.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}
