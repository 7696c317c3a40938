package stages

import (
	"context"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/scoring"
	"github.com/okian/matchday/pkg/logger"
)

// SettlementStore reads fixtures.
type SettlementStore interface {
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
}

// Settler scores a finished fixture.
type Settler interface {
	Settle(ctx context.Context, fixtureID uint64) (scoring.Summary, error)
}

// Settlement scores finished fixtures.
type Settlement struct {
	store   SettlementStore
	settler Settler
	logger  logger.Logger
}

// NewSettlement creates the settlement handler.
func NewSettlement(store SettlementStore, settler Settler) *Settlement {
	return &Settlement{store: store, settler: settler, logger: logger.Named("stage.settlement")}
}

func (h *Settlement) Queue() string { return model.StageSettlement.Queue() }

func (h *Settlement) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.settlement"
	p, err := decode[model.SettlementJob](op, job)
	if err != nil {
		return err
	}
	fx, err := h.store.GetFixture(ctx, p.FixtureID)
	if err != nil {
		return err
	}
	if !fx.HasResult() {
		return missing(op, p.AllowRetroactive, scoring.ErrNoResult)
	}
	sum, err := h.settler.Settle(ctx, p.FixtureID)
	if err != nil {
		return failure.Classify(op, err)
	}
	if sum.Scored == 0 {
		jobLogger(h.logger, job, p.FixtureRef).Debug(ctx, "nothing left to score")
	}
	return nil
}
