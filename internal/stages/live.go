package stages

import (
	"context"
	"errors"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/mq/worker"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
)

// ErrMonitorWindowClosed means a fixture never reported a final result
// within the monitoring window.
var ErrMonitorWindowClosed = errors.New("fixture still unfinished after the monitoring window")

// LiveStore reads and transitions fixtures.
type LiveStore interface {
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	TransitionFixture(ctx context.Context, id uint64, status model.FixtureStatus, home, away *int) (model.Fixture, bool, error)
}

// LiveSettings tunes the live monitor.
type LiveSettings struct {
	// PollInterval is the snooze between status checks.
	PollInterval time.Duration
	// MaxDuration bounds monitoring after kickoff.
	MaxDuration time.Duration
}

// Live polls a fixture from kickoff until it finishes and then hands it to
// settlement.
type Live struct {
	sports   upstream.SportsData
	store    LiveStore
	enqueuer Enqueuer
	guard    Guard
	settings LiveSettings
	now      Clock
	logger   logger.Logger
}

// NewLive creates the live monitor handler.
func NewLive(sports upstream.SportsData, store LiveStore, enqueuer Enqueuer, guard Guard, s LiveSettings) *Live {
	if s.PollInterval <= 0 {
		s.PollInterval = 2 * time.Minute
	}
	if s.MaxDuration <= 0 {
		s.MaxDuration = 4 * time.Hour
	}
	return &Live{sports: sports, store: store, enqueuer: enqueuer, guard: guard, settings: s, now: utcNow, logger: logger.Named("stage.live")}
}

func (h *Live) Queue() string { return model.StageLive.Queue() }

func (h *Live) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.live"
	p, err := decode[model.LiveJob](op, job)
	if err != nil {
		return err
	}
	log := jobLogger(h.logger, job, p.FixtureRef)

	fx, err := h.store.GetFixture(ctx, p.FixtureID)
	if err != nil {
		return err
	}
	switch {
	case fx.HasResult():
		return h.settle(ctx, log, fx, p.AllowRetroactive)
	case fx.Status.Void():
		return nil
	}
	now := h.now()
	if wait := fx.KickoffAt.Sub(now); wait > 0 && !p.AllowRetroactive {
		return worker.Snooze(wait)
	}

	var st upstream.Status
	err = h.guard.Do(ctx, SportsDataDependency, func(ctx context.Context) error {
		var ferr error
		st, ferr = h.sports.Status(ctx, p.ExternalID)
		return ferr
	})
	if err != nil && !isNoData(err) {
		return failure.Classify(op, err)
	}

	if err == nil {
		switch {
		case st.Status == model.StatusFinished && st.HomeScore != nil && st.AwayScore != nil:
			fx, _, err = h.store.TransitionFixture(ctx, fx.ID, model.StatusFinished, st.HomeScore, st.AwayScore)
			if err != nil {
				return err
			}
			log.Info(ctx, "fixture finished", logger.Int("home", *st.HomeScore), logger.Int("away", *st.AwayScore))
			return h.settle(ctx, log, fx, p.AllowRetroactive)
		case st.Status.Void():
			if _, _, err := h.store.TransitionFixture(ctx, fx.ID, st.Status, nil, nil); err != nil {
				return err
			}
			log.Info(ctx, "fixture voided", logger.String("status", string(st.Status)))
			return nil
		case st.Status == model.StatusLive && fx.Status == model.StatusScheduled:
			if _, changed, err := h.store.TransitionFixture(ctx, fx.ID, model.StatusLive, nil, nil); err != nil {
				return err
			} else if changed {
				log.Info(ctx, "fixture live")
			}
		}
	}

	if now.Sub(fx.KickoffAt) > h.settings.MaxDuration {
		return failure.Permanent(op, ErrMonitorWindowClosed)
	}
	return worker.Snooze(h.settings.PollInterval)
}

func (h *Live) settle(ctx context.Context, log logger.Logger, fx model.Fixture, retro bool) error {
	ref := fx.Ref(retro)
	id := model.JobID(model.StageSettlement, fx.ID, "", retro)
	added, err := h.enqueuer.Add(ctx, model.StageSettlement.Queue(), id, model.SettlementJob{FixtureRef: ref}, 0)
	if err != nil {
		return failure.Classify("stages.live", err)
	}
	if added {
		log.Info(ctx, "settlement enqueued", logger.String("settlement_job", id))
	}
	return nil
}
