package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/scheduler"
	"github.com/okian/matchday/pkg/logger"
)

// IngestStore persists listed fixtures.
type IngestStore interface {
	UpsertFixture(ctx context.Context, in model.Fixture) (model.Fixture, repository.FixtureChange, error)
}

// Planner schedules and unschedules fixture calendars.
type Planner interface {
	Schedule(ctx context.Context, f model.Fixture) (scheduler.Result, error)
	Unschedule(ctx context.Context, f model.Fixture) (int, error)
}

// Ingest pulls the fixture list of a window and keeps calendars in step
// with kickoff moves and cancellations.
type Ingest struct {
	sports  upstream.SportsData
	store   IngestStore
	planner Planner
	guard   Guard
	now     Clock
	logger  logger.Logger
}

// NewIngest creates the ingest handler.
func NewIngest(sports upstream.SportsData, store IngestStore, planner Planner, guard Guard) *Ingest {
	return &Ingest{sports: sports, store: store, planner: planner, guard: guard, now: utcNow, logger: logger.Named("stage.ingest")}
}

func (h *Ingest) Queue() string { return model.StageIngest.Queue() }

func (h *Ingest) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.ingest"
	p, err := decode[model.IngestJob](op, job)
	if err != nil {
		return err
	}

	var listed []upstream.FixtureInfo
	err = h.guard.Do(ctx, SportsDataDependency, func(ctx context.Context) error {
		var ferr error
		listed, ferr = h.sports.Fixtures(ctx, p.From, p.To)
		return ferr
	})
	if err != nil {
		return failure.Classify(op, err)
	}

	var (
		errs               []error
		created, scheduled int
	)
	now := h.now()
	for _, info := range listed {
		f, change, err := h.store.UpsertFixture(ctx, info.Fixture())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", info.ExternalID, err))
			continue
		}
		if change.Created {
			created++
		}
		if change.KickoffChanged || (change.StatusChanged && f.Status.Void()) {
			if _, err := h.planner.Unschedule(ctx, change.Previous); err != nil {
				errs = append(errs, fmt.Errorf("unschedule %d: %w", f.ID, err))
				continue
			}
			h.logger.Info(ctx, "fixture calendar dropped",
				logger.Uint64("fixture_id", f.ID),
				logger.String("status", string(f.Status)),
				logger.Time("kickoff", f.KickoffAt))
		}
		if f.Status != model.StatusScheduled || !f.KickoffAt.After(now) || f.External() == "" {
			continue
		}
		res, err := h.planner.Schedule(ctx, f)
		if err != nil && !errors.Is(err, scheduler.ErrKickoffPassed) {
			errs = append(errs, fmt.Errorf("schedule %d: %w", f.ID, err))
			continue
		}
		if res.Enqueued > 0 {
			scheduled++
		}
	}

	h.logger.Info(ctx, "fixtures ingested",
		logger.String("job_id", job.ID),
		logger.Int("listed", len(listed)),
		logger.Int("created", created),
		logger.Int("scheduled", scheduled),
		logger.Int("failed", len(errs)))
	if len(errs) > 0 {
		return failure.Transient(op, errors.Join(errs...))
	}
	return nil
}
