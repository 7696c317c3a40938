package repository

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// WithPool tunes the underlying connection pool.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(s *Store) {
		s.maxOpen, s.maxIdle, s.connLifetime = maxOpen, maxIdle, lifetime
	}
}

// WithSQLLogging enables gorm statement logging at warn level.
func WithSQLLogging(enabled bool) Option {
	return func(s *Store) {
		s.sqlLogging = enabled
	}
}
