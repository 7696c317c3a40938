package queue

import "time"

type settings struct {
	capacity  int
	retention time.Duration
	prefix    string
	now       func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{
		capacity:  defaultQueueCapacity,
		retention: defaultRetention,
		prefix:    "matchday",
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a broker.
type Option func(*settings)

// WithCapacity bounds the pending jobs of each queue.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithRetention sets how long completed job ids keep rejecting re-enqueues.
func WithRetention(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithPrefix namespaces the Redis keys.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
