package scoring_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func population(correct, total int, home, away int) []model.Forecast {
	out := make([]model.Forecast, 0, total)
	for i := 0; i < total; i++ {
		h, a := home, away
		if i >= correct {
			h, a = away+1, away+1
			if model.OutcomeOf(home, away) == model.OutcomeDraw {
				h, a = 1, 0
			}
		}
		f := model.NewForecast(1, string(rune('a'+i)), h, a, 1)
		f.ID = uint64(i + 1)
		out = append(out, f)
	}
	return out
}

func TestTendencyPoints(t *testing.T) {
	Convey("Rarity tiers are strict lower bounds", t, func() {
		So(scoring.TendencyPoints(1.0), ShouldEqual, 2)
		So(scoring.TendencyPoints(0.76), ShouldEqual, 2)
		So(scoring.TendencyPoints(0.75), ShouldEqual, 3)
		So(scoring.TendencyPoints(0.51), ShouldEqual, 3)
		So(scoring.TendencyPoints(0.50), ShouldEqual, 4)
		So(scoring.TendencyPoints(0.26), ShouldEqual, 4)
		So(scoring.TendencyPoints(0.25), ShouldEqual, 5)
		So(scoring.TendencyPoints(0.11), ShouldEqual, 5)
		So(scoring.TendencyPoints(0.10), ShouldEqual, 6)
		So(scoring.TendencyPoints(0), ShouldEqual, 6)
	})
}

func TestScore(t *testing.T) {
	Convey("Given ten forecasters on a 3-0 home win", t, func() {
		Convey("Eight correct picks are common and earn 2 each", func() {
			points := scoring.Score(3, 0, population(8, 10, 3, 0))
			So(len(points), ShouldEqual, 10)
			So(points[0].Tendency, ShouldEqual, 2)
			So(points[7].Tendency, ShouldEqual, 2)
			So(points[8].Tendency, ShouldEqual, 0)
			So(points[8].Total, ShouldEqual, 0)
		})

		Convey("Two correct picks are very rare and earn 5 each", func() {
			points := scoring.Score(3, 0, population(2, 10, 3, 0))
			So(points[0].Tendency, ShouldEqual, 5)
			So(points[1].Tendency, ShouldEqual, 5)
		})

		Convey("A single correct pick earns the unique tier", func() {
			points := scoring.Score(3, 0, population(1, 10, 3, 0))
			So(points[0].Tendency, ShouldEqual, 6)
			So(points[0].Total, ShouldEqual, scoring.MaxPoints)
		})
	})

	Convey("An exact 2-1 earns tendency plus both bonuses", t, func() {
		forecasts := []model.Forecast{
			model.NewForecast(1, "exact", 2, 1, 1),
			model.NewForecast(1, "margin", 3, 2, 1),
			model.NewForecast(1, "wrong", 0, 1, 1),
			model.NewForecast(1, "winner", 4, 0, 1),
		}
		points := scoring.Score(2, 1, forecasts)
		tier := scoring.TendencyPoints(0.75)

		So(points[0].Tendency, ShouldEqual, tier)
		So(points[0].GoalDiff, ShouldEqual, 1)
		So(points[0].Exact, ShouldEqual, 3)
		So(points[0].Total, ShouldEqual, tier+4)

		So(points[1].GoalDiff, ShouldEqual, 1)
		So(points[1].Exact, ShouldEqual, 0)

		So(points[2].Total, ShouldEqual, 0)

		So(points[3].Tendency, ShouldEqual, tier)
		So(points[3].GoalDiff, ShouldEqual, 0)
	})

	Convey("A draw predicted with a different score still earns the margin bonus", t, func() {
		points := scoring.Score(1, 1, []model.Forecast{model.NewForecast(1, "x", 0, 0, 1)})
		So(points[0].Tendency, ShouldEqual, 2)
		So(points[0].GoalDiff, ShouldEqual, 1)
		So(points[0].Exact, ShouldEqual, 0)
	})

	Convey("An empty population scores nothing", t, func() {
		So(scoring.Score(1, 0, nil), ShouldBeEmpty)
	})
}

func TestAdvance(t *testing.T) {
	Convey("Given a fresh streak", t, func() {
		var s model.Streak
		hit := scoring.Points{Tendency: 3, Total: 3}
		exact := scoring.Points{Tendency: 3, GoalDiff: 1, Exact: 3, Total: 7}
		miss := scoring.Points{}

		Convey("Correct picks extend a positive streak", func() {
			s = scoring.Advance(s, hit)
			s = scoring.Advance(s, hit)
			So(s.Current, ShouldEqual, 2)
			So(s.Type, ShouldEqual, model.StreakPositive)
			So(s.Best, ShouldEqual, 2)
			So(s.TendencyRun, ShouldEqual, 2)
		})

		Convey("An exact hit upgrades the type", func() {
			s = scoring.Advance(s, hit)
			s = scoring.Advance(s, exact)
			So(s.Current, ShouldEqual, 2)
			So(s.Type, ShouldEqual, model.StreakExact)
			So(s.ExactRun, ShouldEqual, 1)
			So(s.BestExact, ShouldEqual, 1)
		})

		Convey("Misses reset into a negative streak", func() {
			s = scoring.Advance(s, exact)
			s = scoring.Advance(s, exact)
			s = scoring.Advance(s, miss)
			s = scoring.Advance(s, miss)
			So(s.Current, ShouldEqual, -2)
			So(s.Type, ShouldEqual, model.StreakNegative)
			So(s.Worst, ShouldEqual, -2)
			So(s.Best, ShouldEqual, 2)
			So(s.BestExact, ShouldEqual, 2)
			So(s.ExactRun, ShouldEqual, 0)
			So(s.TendencyRun, ShouldEqual, 0)
			So(s.BestTendency, ShouldEqual, 2)

			s = scoring.Advance(s, hit)
			So(s.Current, ShouldEqual, 1)
			So(s.Worst, ShouldEqual, -2)
		})
	})
}

type fakeStore struct {
	fixture   model.Fixture
	forecasts []model.Forecast
	streaks   map[string]model.Streak
}

func (f *fakeStore) SettleFixture(_ context.Context, _ uint64, fn func(model.Fixture, []model.Forecast, map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error)) (int, error) {
	pending := 0
	for _, fc := range f.forecasts {
		if fc.Status == model.ForecastPending {
			pending++
		}
	}
	if pending == 0 {
		return 0, nil
	}
	current := make([]model.Forecast, len(f.forecasts))
	copy(current, f.forecasts)
	scored, streaks, err := fn(f.fixture, current, f.streaks)
	if err != nil {
		return 0, err
	}
	byID := make(map[uint64]model.Forecast, len(scored))
	for _, s := range scored {
		byID[s.ID] = s
	}
	for i := range f.forecasts {
		if s, ok := byID[f.forecasts[i].ID]; ok {
			f.forecasts[i] = s
		}
	}
	f.streaks = streaks
	return len(scored), nil
}

func TestSettler(t *testing.T) {
	Convey("Given a finished fixture with pending forecasts", t, func() {
		home, away := 2, 1
		store := &fakeStore{
			fixture: model.Fixture{ID: 1, Status: model.StatusFinished, HomeScore: &home, AwayScore: &away},
			forecasts: []model.Forecast{
				model.NewForecast(1, "alpha", 2, 1, 1),
				model.NewForecast(1, "beta", 0, 2, 1),
			},
			streaks: map[string]model.Streak{"alpha": {}, "beta": {}},
		}
		store.forecasts[0].ID, store.forecasts[1].ID = 1, 2
		settler := scoring.NewSettler(store, nil)

		Convey("Settle scores them once and is a no-op afterwards", func() {
			summary, err := settler.Settle(context.Background(), 1)
			So(err, ShouldBeNil)
			So(summary.Scored, ShouldEqual, 2)
			So(summary.Outcome, ShouldEqual, model.OutcomeHome)
			So(*store.forecasts[0].TotalPoints, ShouldEqual, 4+1+3)
			So(*store.forecasts[1].TotalPoints, ShouldEqual, 0)
			So(store.streaks["alpha"].Type, ShouldEqual, model.StreakExact)
			So(store.streaks["beta"].Current, ShouldEqual, -1)

			first := *store.forecasts[0].TotalPoints
			again, err := settler.Settle(context.Background(), 1)
			So(err, ShouldBeNil)
			So(again.Scored, ShouldEqual, 0)
			So(*store.forecasts[0].TotalPoints, ShouldEqual, first)
		})

		Convey("A fixture without a result is a no-data failure", func() {
			store.fixture.Status = model.StatusLive
			store.fixture.HomeScore, store.fixture.AwayScore = nil, nil
			_, err := settler.Settle(context.Background(), 1)
			So(errors.Is(err, scoring.ErrNoResult), ShouldBeTrue)
			So(failure.KindOf(err), ShouldEqual, failure.KindNoData)
		})
	})
}

func TestSettlerConcurrent(t *testing.T) {
	Convey("Given a finished fixture in the store with three pending forecasts", t, func() {
		ctx := context.Background()
		store, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithPool(1, 1, 0))
		So(err, ShouldBeNil)
		defer func() { _ = store.Close() }()
		So(store.Migrate(ctx), ShouldBeNil)

		ext := "m-concurrent"
		fx, _, err := store.UpsertFixture(ctx, model.Fixture{ExternalID: &ext, HomeTeam: "A", AwayTeam: "B", KickoffAt: time.Now().UTC().Add(-3 * time.Hour)})
		So(err, ShouldBeNil)
		picks := map[string][2]int{"alpha": {2, 1}, "beta": {1, 0}, "gamma": {0, 2}}
		for id, p := range picks {
			So(store.SaveForecaster(ctx, &model.Forecaster{ID: id, Name: id, Provider: "stub", Enabled: true}), ShouldBeNil)
			f := model.NewForecast(fx.ID, id, p[0], p[1], 1)
			So(store.UpsertForecast(ctx, &f), ShouldBeNil)
		}
		home, away := 2, 1
		_, _, err = store.TransitionFixture(ctx, fx.ID, model.StatusFinished, &home, &away)
		So(err, ShouldBeNil)

		Convey("Two settlements racing score every forecast exactly once", func() {
			settler := scoring.NewSettler(store, nil)
			var wg sync.WaitGroup
			results := make([]scoring.Summary, 2)
			errs := make([]error, 2)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = settler.Settle(ctx, fx.ID)
				}(i)
			}
			wg.Wait()

			So(errs[0], ShouldBeNil)
			So(errs[1], ShouldBeNil)
			So(results[0].Scored+results[1].Scored, ShouldEqual, 3)
			So(results[0].Scored == 0 || results[1].Scored == 0, ShouldBeTrue)

			list, err := store.ListForecasts(ctx, fx.ID)
			So(err, ShouldBeNil)
			points := map[string]int{}
			for _, f := range list {
				So(f.Status, ShouldEqual, model.ForecastScored)
				points[f.ForecasterID] = *f.TotalPoints
			}
			So(points, ShouldResemble, map[string]int{"alpha": 3 + 1 + 3, "beta": 3 + 1, "gamma": 0})

			alpha, err := store.GetForecaster(ctx, "alpha")
			So(err, ShouldBeNil)
			So(alpha.Streak.Current, ShouldEqual, 1)
			gamma, err := store.GetForecaster(ctx, "gamma")
			So(err, ShouldBeNil)
			So(gamma.Streak.Current, ShouldEqual, -1)
		})
	})
}
