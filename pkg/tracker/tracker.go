// Package tracker reports unexpected failures to an error-tracking collector.
package tracker

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// Tracker receives failures worth an operator's attention.
type Tracker interface {
	// Capture reports an unexpected error with searchable tags.
	Capture(ctx context.Context, err error, tags map[string]string)
	// Alert reports a systemic problem, such as bad credentials, at fatal level.
	Alert(ctx context.Context, msg string, err error, tags map[string]string)
	// Recover reports a recovered panic value.
	Recover(ctx context.Context, value any)
	// Flush waits for buffered reports to be sent.
	Flush(timeout time.Duration) bool
}

// Noop discards every report.
type Noop struct{}

func (Noop) Capture(context.Context, error, map[string]string)       {}
func (Noop) Alert(context.Context, string, error, map[string]string) {}
func (Noop) Recover(context.Context, any)                            {}
func (Noop) Flush(time.Duration) bool                                { return true }

// Sentry sends reports through the sentry-go hub.
type Sentry struct {
	hub *sentry.Hub
}

// New initializes Sentry for dsn. An empty dsn yields a Noop tracker.
func New(dsn, environment, release string) (Tracker, error) {
	if dsn == "" {
		return Noop{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return NewSentry(sentry.NewHub(client, sentry.NewScope())), nil
}

// NewSentry wraps an existing hub.
func NewSentry(hub *sentry.Hub) *Sentry {
	return &Sentry{hub: hub}
}

func (s *Sentry) scoped(ctx context.Context, level sentry.Level, tags map[string]string, fn func(*sentry.Hub)) {
	hub := s.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTags(tags)
		fn(hub)
	})
}

// Capture reports err at error level.
func (s *Sentry) Capture(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.scoped(ctx, sentry.LevelError, tags, func(h *sentry.Hub) { h.CaptureException(err) })
}

// Alert reports at fatal level with msg as the event message.
func (s *Sentry) Alert(ctx context.Context, msg string, err error, tags map[string]string) {
	s.scoped(ctx, sentry.LevelFatal, tags, func(h *sentry.Hub) {
		if err != nil {
			h.Scope().SetContext("failure", sentry.Context{"error": err.Error()})
		}
		h.CaptureMessage(msg)
	})
}

// Recover reports a panic value.
func (s *Sentry) Recover(ctx context.Context, value any) {
	s.scoped(ctx, sentry.LevelFatal, nil, func(h *sentry.Hub) { h.Recover(value) })
}

// Flush waits up to timeout for queued events.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
