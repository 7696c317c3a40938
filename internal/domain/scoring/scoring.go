// Package scoring awards points to forecasts once a fixture has a result.
//
// Tendency points are population-relative: the fewer forecasters that picked
// the actual outcome, the more each correct pick is worth.
package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
)

// Bonus values.
const (
	GoalDiffBonus = 1
	ExactBonus    = 3
	MaxPoints     = 6 + GoalDiffBonus + ExactBonus
)

// ErrNoResult is returned when settling a fixture without a final score.
var ErrNoResult = errors.New("fixture has no final result")

// Points is the breakdown awarded to one forecast.
type Points struct {
	ForecastID   uint64 `json:"forecastId"`
	ForecasterID string `json:"forecasterId"`
	Tendency     int    `json:"tendency"`
	GoalDiff     int    `json:"goalDiff"`
	Exact        int    `json:"exact"`
	Total        int    `json:"total"`
}

// Correct reports whether the tendency was right.
func (p Points) Correct() bool { return p.Tendency > 0 }

// IsExact reports whether the exact score was hit.
func (p Points) IsExact() bool { return p.Exact > 0 }

// TendencyPoints maps the share of forecasters that agreed on the actual
// outcome to a rarity tier.
func TendencyPoints(share float64) int {
	switch {
	case share > 0.75:
		return 2
	case share > 0.50:
		return 3
	case share > 0.25:
		return 4
	case share > 0.10:
		return 5
	default:
		return 6
	}
}

// Score computes points for every forecast against the final score. The
// whole slice is the rarity population, scored rows included.
func Score(home, away int, forecasts []model.Forecast) []Points {
	if len(forecasts) == 0 {
		return nil
	}
	actual := model.OutcomeOf(home, away)
	agreeing := 0
	for i := range forecasts {
		if outcomeOf(forecasts[i]) == actual {
			agreeing++
		}
	}
	tier := TendencyPoints(float64(agreeing) / float64(len(forecasts)))

	out := make([]Points, len(forecasts))
	for i, f := range forecasts {
		p := Points{ForecastID: f.ID, ForecasterID: f.ForecasterID}
		if outcomeOf(f) == actual {
			p.Tendency = tier
		}
		if f.PredictedHome-f.PredictedAway == home-away {
			p.GoalDiff = GoalDiffBonus
		}
		if f.PredictedHome == home && f.PredictedAway == away {
			p.Exact = ExactBonus
		}
		p.Total = p.Tendency + p.GoalDiff + p.Exact
		out[i] = p
	}
	return out
}

func outcomeOf(f model.Forecast) model.Outcome {
	if f.PredictedOutcome != "" {
		return f.PredictedOutcome
	}
	return model.OutcomeOf(f.PredictedHome, f.PredictedAway)
}

// Advance moves a streak forward by one scored forecast. Current is positive
// while the forecaster keeps getting the tendency right and negative while
// it keeps getting it wrong.
func Advance(s model.Streak, p Points) model.Streak {
	if p.Correct() {
		if s.Current > 0 {
			s.Current++
		} else {
			s.Current = 1
		}
		s.Type = model.StreakPositive
		if p.IsExact() {
			s.Type = model.StreakExact
		}
		s.TendencyRun++
	} else {
		if s.Current < 0 {
			s.Current--
		} else {
			s.Current = -1
		}
		s.Type = model.StreakNegative
		s.TendencyRun = 0
	}

	if p.IsExact() {
		s.ExactRun++
	} else {
		s.ExactRun = 0
	}

	s.Best = max(s.Best, s.Current)
	s.Worst = min(s.Worst, s.Current)
	s.BestExact = max(s.BestExact, s.ExactRun)
	s.BestTendency = max(s.BestTendency, s.TendencyRun)
	return s
}

// Store is the persistence the settler needs. SettleFixture must run fn with
// the fixture's forecasts locked and persist only still-pending rows.
type Store interface {
	SettleFixture(ctx context.Context, fixtureID uint64, fn func(model.Fixture, []model.Forecast, map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error)) (int, error)
}

// Summary describes one settlement.
type Summary struct {
	FixtureID uint64        `json:"fixtureId"`
	Outcome   model.Outcome `json:"outcome,omitempty"`
	Scored    int           `json:"scored"`
	Points    []Points      `json:"points,omitempty"`
}

// Settler scores finished fixtures.
type Settler struct {
	store Store
	now   func() time.Time
	log   logger.Logger
}

// NewSettler creates a settler over store.
func NewSettler(store Store, log logger.Logger) *Settler {
	if log == nil {
		log = logger.Named("scoring")
	}
	return &Settler{store: store, now: func() time.Time { return time.Now().UTC() }, log: log}
}

// Settle scores the pending forecasts of a finished fixture. Zero forecasts
// or an already scored fixture is a no-op. A fixture without a final result
// yields ErrNoResult as a no-data failure.
func (s *Settler) Settle(ctx context.Context, fixtureID uint64) (Summary, error) {
	summary := Summary{FixtureID: fixtureID}
	scoredAt := s.now()

	n, err := s.store.SettleFixture(ctx, fixtureID, func(fx model.Fixture, forecasts []model.Forecast, streaks map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error) {
		home, away, ok := fx.Result()
		if !ok {
			return nil, nil, failure.NoData("scoring.settle", ErrNoResult)
		}
		summary.Outcome = model.OutcomeOf(home, away)
		summary.Points = summary.Points[:0]

		points := Score(home, away, forecasts)
		scored := make([]model.Forecast, 0, len(forecasts))
		for i, f := range forecasts {
			if f.Status != model.ForecastPending {
				continue
			}
			p := points[i]
			f.TendencyPoints = &p.Tendency
			f.GoalDiffBonus = &p.GoalDiff
			f.ExactBonus = &p.Exact
			f.TotalPoints = &p.Total
			f.ScoredAt = &scoredAt
			f.Status = model.ForecastScored
			scored = append(scored, f)
			summary.Points = append(summary.Points, p)
			streaks[f.ForecasterID] = Advance(streaks[f.ForecasterID], p)
		}
		return scored, streaks, nil
	})
	if err != nil {
		return Summary{FixtureID: fixtureID}, err
	}
	summary.Scored = n
	if n == 0 {
		summary.Points = nil
		return summary, nil
	}

	totals := make([]int, len(summary.Points))
	for i, p := range summary.Points {
		totals[i] = p.Total
	}
	metrics.RecordFixtureSettled(totals)
	s.log.Info(ctx, "fixture settled",
		logger.Uint64("fixture_id", fixtureID),
		logger.String("outcome", string(summary.Outcome)),
		logger.Int("scored", n))
	return summary, nil
}
