package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Supervisor restart tuning.
const (
	failureThreshold = 5.0
	failureDecay     = 30.0
	failureBackoff   = 15 * time.Second
)

// Supervisor builds the process supervisor tree: one branch runs the stage
// consumers, another the cadences, and extra services such as the HTTP
// server sit on the root.
func (s *Service) Supervisor(extra ...suture.Service) *suture.Supervisor {
	hook := (&sutureslog.Handler{Logger: logger.Slog()}).MustHook()
	spec := suture.Spec{
		FailureThreshold: failureThreshold,
		FailureDecay:     failureDecay,
		FailureBackoff:   failureBackoff,
		Timeout:          s.cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = hook

	root := suture.New("matchday", rootSpec)
	workers := suture.New("workers", spec)
	cadences := suture.New("cadences", spec)
	root.Add(workers)
	root.Add(cadences)

	for _, c := range s.consumers {
		workers.Add(c)
	}
	cadences.Add(s.Cadences())
	for _, svc := range extra {
		root.Add(svc)
	}
	return root
}

// Cadences is the cron runner of the periodic jobs.
type Cadences struct {
	svc    *Service
	logger logger.Logger
}

// Cadences returns the periodic job runner.
func (s *Service) Cadences() *Cadences {
	return &Cadences{svc: s, logger: s.logger.Named("cron")}
}

func (c *Cadences) String() string { return "cadences" }

// Serve runs the cron schedule until ctx ends.
func (c *Cadences) Serve(ctx context.Context) error {
	cfg := c.svc.cfg
	runner := cron.New(cron.WithLocation(time.UTC))
	entries := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"ingest", cfg.IngestCron, c.svc.EnqueueIngest},
		{"schedule", cfg.ScheduleCron, c.svc.SweepSchedule},
		{"backfill", cfg.BackfillCron, func(ctx context.Context) error {
			_, err := c.svc.RequestBackfill(ctx, int(cfg.ReconcileLookback/(24*time.Hour)), "cron")
			return err
		}},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		name, fn := e.name, e.fn
		if _, err := runner.AddFunc(e.spec, func() {
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error(ctx, "cadence failed", logger.String("cadence", name), logger.Error(err))
			}
		}); err != nil {
			return suture.ErrDoNotRestart
		}
	}

	runner.Start()
	c.logger.Info(ctx, "cron started")
	<-ctx.Done()
	<-runner.Stop().Done()
	c.logger.Info(context.Background(), "cron stopped")
	return ctx.Err()
}

// EnqueueIngest enqueues one fixture ingest over the configured window.
// The id is per minute so replicas firing together collapse to one job.
func (s *Service) EnqueueIngest(ctx context.Context) error {
	now := s.now()
	p := model.IngestJob{From: now.Add(-6 * time.Hour), To: now.Add(s.cfg.IngestWindow)}
	id := fmt.Sprintf("ingest-%d", now.Truncate(time.Minute).Unix())
	_, err := s.producer.Add(ctx, p.Stage().Queue(), id, p, 0)
	return err
}

// SweepSchedule schedules fixtures kicking off within the horizon.
func (s *Service) SweepSchedule(ctx context.Context) error {
	sw, err := s.scheduler.ScheduleUpcoming(ctx)
	if err != nil {
		return err
	}
	if sw.Scheduled > 0 || len(sw.Errors) > 0 {
		s.logger.Info(ctx, "schedule sweep",
			logger.Int("fixtures", sw.Fixtures),
			logger.Int("scheduled", sw.Scheduled),
			logger.Int("enqueued", sw.Enqueued),
			logger.Int("errors", len(sw.Errors)))
	}
	return errors.Join(sw.Errors...)
}

// RequestBackfill enqueues a reconciler run over the last days and returns
// its job id.
func (s *Service) RequestBackfill(ctx context.Context, days int, reason string) (string, error) {
	p := model.BackfillJob{LookbackDays: days, Reason: reason}
	if err := p.Validate(); err != nil {
		return "", err
	}
	id := "backfill-" + reason + "-" + uuid.NewString()
	if _, err := s.producer.Add(ctx, p.Stage().Queue(), id, p, 0); err != nil {
		return "", err
	}
	return id, nil
}

// HTTPServer runs an http.Server under the supervisor.
type HTTPServer struct {
	server  *http.Server
	timeout time.Duration
}

// NewHTTPServer wraps srv. timeout bounds graceful shutdown.
func NewHTTPServer(srv *http.Server, timeout time.Duration) *HTTPServer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPServer{server: srv, timeout: timeout}
}

func (h *HTTPServer) String() string { return "http-server" }

// Serve listens until ctx ends, then shuts the server down.
func (h *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
