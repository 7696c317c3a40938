package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	s, err := repository.Open(ctx, "sqlite", ":memory:",
		repository.WithPool(1, 1, 0),
		repository.WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strp(v string) *string { return &v }
func intp(v int) *int       { return &v }

func seedFixture(t *testing.T, s *repository.Store, ext string, kickoff time.Time) model.Fixture {
	t.Helper()
	f, _, err := s.UpsertFixture(context.Background(), model.Fixture{
		ExternalID: strp(ext),
		HomeTeam:   "Home " + ext,
		AwayTeam:   "Away " + ext,
		KickoffAt:  kickoff,
	})
	if err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	return f
}

func seedForecaster(t *testing.T, s *repository.Store, id string) {
	t.Helper()
	err := s.SaveForecaster(context.Background(), &model.Forecaster{ID: id, Name: id, Provider: "stub", Enabled: true})
	if err != nil {
		t.Fatalf("seed forecaster: %v", err)
	}
}

func TestFixtures(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := newStore(t)
		ctx := context.Background()
		kickoff := testNow.Add(3 * time.Hour)

		Convey("Upsert creates a scheduled fixture", func() {
			f, change, err := s.UpsertFixture(ctx, model.Fixture{
				ExternalID: strp("m1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: kickoff, Status: model.StatusFinished,
			})
			So(err, ShouldBeNil)
			So(change.Created, ShouldBeTrue)
			So(f.ID, ShouldBeGreaterThan, uint64(0))
			So(f.Status, ShouldEqual, model.StatusScheduled)

			Convey("A second upsert moves the kickoff", func() {
				moved := kickoff.Add(time.Hour)
				g, change, err := s.UpsertFixture(ctx, model.Fixture{
					ExternalID: strp("m1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: moved,
				})
				So(err, ShouldBeNil)
				So(change.Created, ShouldBeFalse)
				So(change.KickoffChanged, ShouldBeTrue)
				So(g.ID, ShouldEqual, f.ID)
				So(g.KickoffAt.Equal(moved), ShouldBeTrue)
			})

			Convey("A cancellation is applied", func() {
				g, change, err := s.UpsertFixture(ctx, model.Fixture{
					ExternalID: strp("m1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: kickoff, Status: model.StatusCancelled,
				})
				So(err, ShouldBeNil)
				So(change.StatusChanged, ShouldBeTrue)
				So(g.Status, ShouldEqual, model.StatusCancelled)
			})

			Convey("Finishing records the score", func() {
				_, changed, err := s.TransitionFixture(ctx, f.ID, model.StatusLive, nil, nil)
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)
				g, changed, err := s.TransitionFixture(ctx, f.ID, model.StatusFinished, intp(2), intp(1))
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)
				So(g.HasResult(), ShouldBeTrue)

				_, changed, err = s.TransitionFixture(ctx, f.ID, model.StatusFinished, intp(2), intp(1))
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)

				_, _, err = s.TransitionFixture(ctx, f.ID, model.StatusLive, nil, nil)
				So(failure.IsPermanent(err), ShouldBeTrue)
			})

			Convey("Finishing without a score is rejected", func() {
				_, _, err := s.TransitionFixture(ctx, f.ID, model.StatusFinished, intp(1), nil)
				So(errors.Is(err, repository.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("A fixture without an external id cannot be upserted", func() {
			_, _, err := s.UpsertFixture(ctx, model.Fixture{HomeTeam: "A", AwayTeam: "B", KickoffAt: kickoff})
			So(failure.IsPermanent(err), ShouldBeTrue)
		})

		Convey("A missing fixture is a not-found failure", func() {
			_, err := s.GetFixture(ctx, 404)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(failure.KindOf(err), ShouldEqual, failure.KindNotFound)
		})

		Convey("FixturesKickingOff only returns scheduled fixtures in the window", func() {
			seedFixture(t, s, "in", testNow.Add(time.Hour))
			seedFixture(t, s, "late", testNow.Add(48*time.Hour))
			out, err := s.FixturesKickingOff(ctx, testNow, testNow.Add(24*time.Hour))
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 1)
			So(out[0].External(), ShouldEqual, "in")
		})
	})
}

func TestForecastsAndForecasters(t *testing.T) {
	Convey("Given a fixture and two forecasters", t, func() {
		s := newStore(t)
		ctx := context.Background()
		f := seedFixture(t, s, "m1", testNow.Add(time.Hour))
		seedForecaster(t, s, "alpha")
		seedForecaster(t, s, "beta")

		Convey("One forecast per forecaster is kept", func() {
			So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: f.ID, ForecasterID: "alpha", PredictedHome: 1, PredictedAway: 0}), ShouldBeNil)
			So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: f.ID, ForecasterID: "alpha", PredictedHome: 0, PredictedAway: 2}), ShouldBeNil)

			n, err := s.CountForecasts(ctx, f.ID)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			list, err := s.ListForecasts(ctx, f.ID)
			So(err, ShouldBeNil)
			So(list[0].PredictedOutcome, ShouldEqual, model.OutcomeAway)

			missing, err := s.MissingForecasters(ctx, f.ID)
			So(err, ShouldBeNil)
			So(len(missing), ShouldEqual, 1)
			So(missing[0].ID, ShouldEqual, "beta")
		})

		Convey("Repeated failures auto-disable a forecaster", func() {
			cause := errors.New("boom")
			disabled, err := s.RecordForecasterFailure(ctx, "beta", cause, 2)
			So(err, ShouldBeNil)
			So(disabled, ShouldBeFalse)
			disabled, err = s.RecordForecasterFailure(ctx, "beta", cause, 2)
			So(err, ShouldBeNil)
			So(disabled, ShouldBeTrue)

			n, err := s.ActiveForecasterCount(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			So(s.ReenableForecaster(ctx, "beta"), ShouldBeNil)
			fc, err := s.GetForecaster(ctx, "beta")
			So(err, ShouldBeNil)
			So(fc.Active(), ShouldBeTrue)
			So(fc.ConsecutiveFailures, ShouldEqual, 0)
		})

		Convey("A success clears the failure counter", func() {
			_, err := s.RecordForecasterFailure(ctx, "alpha", errors.New("x"), 0)
			So(err, ShouldBeNil)
			So(s.RecordForecasterSuccess(ctx, "alpha"), ShouldBeNil)
			fc, err := s.GetForecaster(ctx, "alpha")
			So(err, ShouldBeNil)
			So(fc.ConsecutiveFailures, ShouldEqual, 0)
			So(fc.LastSuccessAt, ShouldNotBeNil)
		})
	})
}

func TestSettleFixture(t *testing.T) {
	Convey("Given a finished fixture with two pending forecasts", t, func() {
		s := newStore(t)
		ctx := context.Background()
		f := seedFixture(t, s, "m1", testNow.Add(-3*time.Hour))
		seedForecaster(t, s, "alpha")
		seedForecaster(t, s, "beta")
		So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: f.ID, ForecasterID: "alpha", PredictedHome: 2, PredictedAway: 1}), ShouldBeNil)
		So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: f.ID, ForecasterID: "beta", PredictedHome: 0, PredictedAway: 0}), ShouldBeNil)
		_, _, err := s.TransitionFixture(ctx, f.ID, model.StatusFinished, intp(2), intp(1))
		So(err, ShouldBeNil)

		award := func(_ model.Fixture, forecasts []model.Forecast, streaks map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error) {
			scoredAt := testNow
			for i := range forecasts {
				forecasts[i].TotalPoints = intp(3)
				forecasts[i].TendencyPoints = intp(3)
				forecasts[i].GoalDiffBonus = intp(0)
				forecasts[i].ExactBonus = intp(0)
				forecasts[i].ScoredAt = &scoredAt
				st := streaks[forecasts[i].ForecasterID]
				st.Current++
				st.Type = model.StreakPositive
				streaks[forecasts[i].ForecasterID] = st
			}
			return forecasts, streaks, nil
		}

		Convey("Settlement scores every pending forecast once", func() {
			n, err := s.SettleFixture(ctx, f.ID, award)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			n, err = s.SettleFixture(ctx, f.ID, award)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			fc, err := s.GetForecaster(ctx, "alpha")
			So(err, ShouldBeNil)
			So(fc.Streak.Current, ShouldEqual, 1)
			So(fc.Streak.Type, ShouldEqual, model.StreakPositive)

			standings, err := s.Standings(ctx, 10)
			So(err, ShouldBeNil)
			So(len(standings), ShouldEqual, 2)
			So(standings[0].Points, ShouldEqual, 3)
			So(standings[0].Rank, ShouldEqual, 1)
		})

		Convey("Scored forecasts are frozen against late upserts", func() {
			_, err := s.SettleFixture(ctx, f.ID, award)
			So(err, ShouldBeNil)
			So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: f.ID, ForecasterID: "alpha", PredictedHome: 5, PredictedAway: 5}), ShouldBeNil)
			list, err := s.ListForecasts(ctx, f.ID)
			So(err, ShouldBeNil)
			So(list[0].PredictedHome, ShouldEqual, 2)
			So(list[0].Status, ShouldEqual, model.ForecastScored)
		})

		Convey("A failing settle function rolls back", func() {
			boom := errors.New("boom")
			_, err := s.SettleFixture(ctx, f.ID, func(model.Fixture, []model.Forecast, map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error) {
				return nil, nil, boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)
			unsettled, err := s.UnsettledFixtures(ctx, testNow.Add(-24*time.Hour), testNow)
			So(err, ShouldBeNil)
			So(len(unsettled), ShouldEqual, 1)
		})
	})
}

func TestCoverage(t *testing.T) {
	Convey("Given fixtures with partial pipeline output", t, func() {
		s := newStore(t)
		ctx := context.Background()
		seedForecaster(t, s, "alpha")
		seedForecaster(t, s, "beta")
		full := seedFixture(t, s, "full", testNow.Add(time.Hour))
		partial := seedFixture(t, s, "partial", testNow.Add(2*time.Hour))
		for _, id := range []string{"alpha", "beta"} {
			So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: full.ID, ForecasterID: id}), ShouldBeNil)
		}
		So(s.UpsertForecast(ctx, &model.Forecast{FixtureID: partial.ID, ForecasterID: "alpha"}), ShouldBeNil)
		fetched := testNow
		So(s.UpsertAnalysis(ctx, &model.AnalysisSnapshot{FixtureID: full.ID, DataFetchedAt: &fetched}), ShouldBeNil)

		Convey("Incomplete fixtures are those below the expected population", func() {
			gaps, err := s.IncompleteFixtures(ctx, testNow, testNow.Add(6*time.Hour), 2, 100)
			So(err, ShouldBeNil)
			So(len(gaps), ShouldEqual, 1)
			So(gaps[0].Fixture.ID, ShouldEqual, partial.ID)
			So(gaps[0].Forecasts, ShouldEqual, 1)
			So(gaps[0].HasAnalysis, ShouldBeFalse)
		})

		Convey("Coverage reports analysis presence", func() {
			rows, err := s.Coverage(ctx, testNow, testNow.Add(6*time.Hour), 100)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].HasAnalysis, ShouldBeTrue)
		})

		Convey("An odds-only placeholder does not count as analysed", func() {
			price := decimal.NewNullDecimal(decimal.RequireFromString("2.10"))
			So(s.UpdateOdds(ctx, partial.ID, price, price, price), ShouldBeNil)
			present, err := s.AnalysisPresence(ctx, []uint64{partial.ID, full.ID})
			So(err, ShouldBeNil)
			So(present[partial.ID], ShouldBeFalse)
			So(present[full.ID], ShouldBeTrue)
		})
	})
}
