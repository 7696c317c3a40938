package stages

import (
	"context"
	"encoding/json"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AnalysisStore persists snapshots.
type AnalysisStore interface {
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	UpsertAnalysis(ctx context.Context, a *model.AnalysisSnapshot) error
	UpdateOdds(ctx context.Context, fixtureID uint64, home, draw, away decimal.NullDecimal) error
	UpdateLineups(ctx context.Context, fixtureID uint64, lineups datatypes.JSON, homeInjuries, awayInjuries int) error
}

type fetcher struct {
	sports upstream.SportsData
	store  AnalysisStore
	guard  Guard
	now    Clock
	logger logger.Logger
}

// live loads the fixture and reports whether it is still worth fetching.
// Void fixtures are acknowledged without work.
func (f *fetcher) live(ctx context.Context, log logger.Logger, id uint64) (bool, error) {
	fx, err := f.store.GetFixture(ctx, id)
	if err != nil {
		return false, err
	}
	if fx.Status.Void() {
		log.Info(ctx, "fixture is void, skipping", logger.String("status", string(fx.Status)))
		return false, nil
	}
	return true, nil
}

func (f *fetcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.guard.Do(ctx, SportsDataDependency, fn)
}

// Analysis fetches the pre-match analysis of a fixture.
type Analysis struct{ fetcher }

// NewAnalysis creates the analysis handler.
func NewAnalysis(sports upstream.SportsData, store AnalysisStore, guard Guard) *Analysis {
	return &Analysis{fetcher{sports: sports, store: store, guard: guard, now: utcNow, logger: logger.Named("stage.analysis")}}
}

func (h *Analysis) Queue() string { return model.StageAnalysis.Queue() }

func (h *Analysis) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.analysis"
	p, err := decode[model.AnalysisJob](op, job)
	if err != nil {
		return err
	}
	log := jobLogger(h.logger, job, p.FixtureRef)
	if ok, err := h.live(ctx, log, p.FixtureID); !ok {
		return err
	}

	var a upstream.Analysis
	err = h.call(ctx, func(ctx context.Context) error {
		var ferr error
		a, ferr = h.sports.Analysis(ctx, p.ExternalID)
		return ferr
	})
	switch {
	case isNoData(err):
		return missing(op, p.AllowRetroactive, err)
	case err != nil:
		return failure.Classify(op, err)
	}

	now := h.now()
	snap := &model.AnalysisSnapshot{
		FixtureID:     p.FixtureID,
		HomeOdds:      a.Odds.Home,
		DrawOdds:      a.Odds.Draw,
		AwayOdds:      a.Odds.Away,
		HomeForm:      a.HomeForm,
		AwayForm:      a.AwayForm,
		HomeInjuries:  a.HomeInjuries,
		AwayInjuries:  a.AwayInjuries,
		Favorite:      model.FavoriteFromOdds(a.Odds.Home, a.Odds.Away),
		DataFetchedAt: &now,
	}
	if !a.Odds.Empty() {
		snap.OddsUpdatedAt = &now
	}
	if err := h.store.UpsertAnalysis(ctx, snap); err != nil {
		return err
	}
	log.Info(ctx, "analysis stored")
	return nil
}

// Odds refreshes the odds columns of a snapshot.
type Odds struct{ fetcher }

// NewOdds creates the odds handler.
func NewOdds(sports upstream.SportsData, store AnalysisStore, guard Guard) *Odds {
	return &Odds{fetcher{sports: sports, store: store, guard: guard, now: utcNow, logger: logger.Named("stage.odds")}}
}

func (h *Odds) Queue() string { return model.StageOdds.Queue() }

func (h *Odds) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.odds"
	p, err := decode[model.OddsJob](op, job)
	if err != nil {
		return err
	}
	log := jobLogger(h.logger, job, p.FixtureRef).With(logger.String("slot", p.Slot))
	if ok, err := h.live(ctx, log, p.FixtureID); !ok {
		return err
	}

	var o upstream.Odds
	err = h.call(ctx, func(ctx context.Context) error {
		var ferr error
		o, ferr = h.sports.Odds(ctx, p.ExternalID)
		return ferr
	})
	switch {
	case isNoData(err) && !p.AllowRetroactive:
		log.Debug(ctx, "no odds yet")
		return nil
	case isNoData(err):
		return failure.NoData(op, err)
	case err != nil:
		return failure.Classify(op, err)
	}
	return h.store.UpdateOdds(ctx, p.FixtureID, o.Home, o.Draw, o.Away)
}

// Lineups stores announced lineups and injury counts.
type Lineups struct{ fetcher }

// NewLineups creates the lineups handler.
func NewLineups(sports upstream.SportsData, store AnalysisStore, guard Guard) *Lineups {
	return &Lineups{fetcher{sports: sports, store: store, guard: guard, now: utcNow, logger: logger.Named("stage.lineups")}}
}

func (h *Lineups) Queue() string { return model.StageLineups.Queue() }

func (h *Lineups) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.lineups"
	p, err := decode[model.LineupsJob](op, job)
	if err != nil {
		return err
	}
	log := jobLogger(h.logger, job, p.FixtureRef)
	if ok, err := h.live(ctx, log, p.FixtureID); !ok {
		return err
	}

	var l upstream.Lineups
	err = h.call(ctx, func(ctx context.Context) error {
		var ferr error
		l, ferr = h.sports.Lineups(ctx, p.ExternalID)
		return ferr
	})
	switch {
	case isNoData(err):
		return missing(op, p.AllowRetroactive, err)
	case err != nil:
		return failure.Classify(op, err)
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return failure.Permanent(op, err)
	}
	if err := h.store.UpdateLineups(ctx, p.FixtureID, datatypes.JSON(raw), l.HomeInjuries, l.AwayInjuries); err != nil {
		return err
	}
	log.Info(ctx, "lineups stored", logger.Int("home", len(l.Home)), logger.Int("away", len(l.Away)))
	return nil
}
