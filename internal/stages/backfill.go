package stages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/mq/worker"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/reconcile"
	"github.com/okian/matchday/pkg/logger"
)

const busyReconcilerDelay = 5 * time.Minute

// Reconciler re-drives gaps of past fixtures.
type Reconciler interface {
	RunFrom(ctx context.Context, lookback time.Duration, cur *model.BackfillCursor) (reconcile.Report, error)
}

// Backfill runs the retroactive reconciler on demand or on its cadence.
// A run that stops at its budget queues a continuation from where it left
// off.
type Backfill struct {
	reconciler Reconciler
	producer   Enqueuer
	logger     logger.Logger
}

// NewBackfill creates the backfill handler.
func NewBackfill(r Reconciler, producer Enqueuer) *Backfill {
	return &Backfill{reconciler: r, producer: producer, logger: logger.Named("stage.backfill")}
}

func (h *Backfill) Queue() string { return model.StageBackfill.Queue() }

func (h *Backfill) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.backfill"
	p, err := decode[model.BackfillJob](op, job)
	if err != nil {
		return err
	}
	rep, err := h.reconciler.RunFrom(ctx, time.Duration(p.LookbackDays)*24*time.Hour, p.Resume)
	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		return worker.Snooze(busyReconcilerDelay)
	case err != nil:
		return failure.Classify(op, err)
	}
	if rep.Resume != nil {
		next := model.BackfillJob{LookbackDays: p.LookbackDays, Reason: p.Reason, Resume: rep.Resume}
		if _, err := h.producer.Add(ctx, h.Queue(), continuationID(job.ID, rep.Resume), next, 0); err != nil {
			return failure.Transient(op, fmt.Errorf("enqueue continuation: %w", err))
		}
		h.logger.Info(ctx, "backfill continues in a new run",
			logger.String("job_id", job.ID),
			logger.Uint64("resume_fixture_id", rep.Resume.FixtureID),
			logger.Bool("unsettled", rep.Resume.Unsettled))
	}
	h.logger.Info(ctx, "backfill finished",
		logger.String("job_id", job.ID),
		logger.String("reason", p.Reason),
		logger.Int("gaps", rep.Gaps),
		logger.Int("failed", rep.Failed+rep.TimedOut))
	return nil
}

// continuationID keys a follow-up run by the root job and its cursor so a
// retried run does not queue the same continuation twice.
func continuationID(id string, cur *model.BackfillCursor) string {
	id, _, _ = strings.Cut(id, "~")
	phase := "g"
	if cur.Unsettled {
		phase = "u"
	}
	return id + "~" + phase + strconv.FormatUint(cur.FixtureID, 10)
}
