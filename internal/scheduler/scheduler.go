// Package scheduler plans the stage jobs of upcoming fixtures.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/domain/dedupe"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
)

const defaultHorizon = 24 * time.Hour

// Store lists fixtures to plan.
type Store interface {
	FixturesKickingOff(ctx context.Context, from, to time.Time) ([]model.Fixture, error)
}

// Result is the outcome of scheduling one fixture.
type Result struct {
	FixtureID  uint64
	Enqueued   int
	Duplicates int
}

// Sweep summarises one ScheduleUpcoming pass.
type Sweep struct {
	Fixtures   int
	Scheduled  int
	Skipped    int
	Enqueued   int
	Duplicates int
	Errors     []error
}

// Scheduler enqueues fixture calendars with deterministic job ids.
type Scheduler struct {
	store    Store
	producer *queue.Producer
	seen     dedupe.Deduper
	horizon  time.Duration
	now      func() time.Time
	logger   logger.Logger
}

// New creates a scheduler.
func New(store Store, producer *queue.Producer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		producer: producer,
		seen:     dedupe.NewInMemoryDeduper(),
		horizon:  defaultHorizon,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues every calendar slot of f. Enqueueing the same fixture
// again is a no-op: the queue rejects the known job ids.
func (s *Scheduler) Schedule(ctx context.Context, f model.Fixture) (Result, error) {
	res := Result{FixtureID: f.ID}
	now := s.now()
	switch {
	case f.External() == "":
		return res, fmt.Errorf("%w: fixture %d", ErrNoExternalID, f.ID)
	case f.Status != model.StatusScheduled:
		return res, fmt.Errorf("%w: fixture %d is %s", ErrNotScheduled, f.ID, f.Status)
	case f.KickoffAt.Before(now):
		return res, fmt.Errorf("%w: fixture %d kicked off at %s", ErrKickoffPassed, f.ID, f.KickoffAt.Format(time.RFC3339))
	}

	var errs []error
	for _, slot := range Calendar(f, now) {
		added, err := s.producer.Add(ctx, slot.Stage.Queue(), slot.JobID, slot.Payload, slot.Delay)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", slot.JobID, err))
		case added:
			res.Enqueued++
		default:
			res.Duplicates++
		}
	}
	return res, errors.Join(errs...)
}

// ScheduleUpcoming plans every scheduled fixture kicking off within the
// horizon. A failing fixture does not stop the sweep.
func (s *Scheduler) ScheduleUpcoming(ctx context.Context) (Sweep, error) {
	var sw Sweep
	now := s.now()
	fixtures, err := s.store.FixturesKickingOff(ctx, now, now.Add(s.horizon))
	if err != nil {
		return sw, fmt.Errorf("list upcoming fixtures: %w", err)
	}
	sw.Fixtures = len(fixtures)
	for _, f := range fixtures {
		if ctx.Err() != nil {
			return sw, ctx.Err()
		}
		key := dedupe.Key(f.ID, f.KickoffAt)
		if s.seen.SeenAndRecord(ctx, key) {
			sw.Skipped++
			continue
		}
		res, err := s.Schedule(ctx, f)
		sw.Enqueued += res.Enqueued
		sw.Duplicates += res.Duplicates
		switch {
		case errors.Is(err, ErrNoExternalID), errors.Is(err, ErrKickoffPassed), errors.Is(err, ErrNotScheduled):
			sw.Skipped++
			s.logger.Info(ctx, "fixture not schedulable", logger.Uint64("fixture_id", f.ID), logger.Error(err))
		case err != nil:
			s.seen.Unrecord(ctx, key)
			sw.Errors = append(sw.Errors, err)
			s.logger.Error(ctx, "schedule fixture failed", logger.Uint64("fixture_id", f.ID), logger.Error(err))
		default:
			sw.Scheduled++
		}
	}
	s.logger.Info(ctx, "schedule sweep finished",
		logger.Int("fixtures", sw.Fixtures),
		logger.Int("scheduled", sw.Scheduled),
		logger.Int("skipped", sw.Skipped),
		logger.Int("enqueued", sw.Enqueued),
		logger.Int("failed", len(sw.Errors)),
	)
	return sw, nil
}

// Unschedule drops the calendar of f so it can be planned again: pending
// jobs are removed and finished ones cleared. Running jobs are left alone.
// It returns the number of jobs dropped.
func (s *Scheduler) Unschedule(ctx context.Context, f model.Fixture) (int, error) {
	broker := s.producer.Broker()
	dropped := 0
	var errs []error
	for _, slot := range Calendar(f, s.now()) {
		q := slot.Stage.Queue()
		job, err := broker.Get(ctx, q, slot.JobID)
		if errors.Is(err, queue.ErrJobNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case job.State.Pending():
			err = broker.Remove(ctx, q, slot.JobID)
		case job.State.Terminal():
			err = broker.Clear(ctx, q, slot.JobID)
		default:
			continue
		}
		if err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", slot.JobID, err))
			continue
		}
		dropped++
	}
	s.seen.Unrecord(ctx, dedupe.Key(f.ID, f.KickoffAt))
	if dropped > 0 {
		s.logger.Info(ctx, "fixture unscheduled", logger.Uint64("fixture_id", f.ID), logger.Int("jobs", dropped))
	}
	return dropped, errors.Join(errs...)
}
