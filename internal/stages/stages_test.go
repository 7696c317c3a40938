package stages_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/mq/worker"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/deadletter"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/scoring"
	"github.com/okian/matchday/internal/reconcile"
	"github.com/okian/matchday/internal/scheduler"
	"github.com/okian/matchday/internal/stages"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	s, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithPool(1, 1, 0))
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

func create(t *testing.T, s *repository.Store, f model.Fixture) model.Fixture {
	t.Helper()
	if err := s.CreateFixture(context.Background(), &f); err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	return f
}

func job(t *testing.T, id string, p model.Payload) queue.Job {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return queue.Job{ID: id, Queue: p.Stage().Queue(), Payload: raw, MaxAttempts: 3}
}

// direct runs every call without a breaker.
type direct struct{}

func (direct) Do(ctx context.Context, _ string, fn func(context.Context) error) error { return fn(ctx) }

// refusing rejects calls to the named dependencies as an open breaker would.
type refusing map[string]bool

func (r refusing) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	if r[name] {
		return failure.BreakerOpen("test", errors.New(name+" open"))
	}
	return fn(ctx)
}

type fakeSports struct {
	mu       sync.Mutex
	calls    int
	fixtures []upstream.FixtureInfo
	analysis upstream.Analysis
	odds     upstream.Odds
	lineups  upstream.Lineups
	status   upstream.Status
	err      error
}

func (f *fakeSports) hit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSports) Fixtures(context.Context, time.Time, time.Time) ([]upstream.FixtureInfo, error) {
	return f.fixtures, f.hit()
}
func (f *fakeSports) Analysis(context.Context, string) (upstream.Analysis, error) {
	return f.analysis, f.hit()
}
func (f *fakeSports) Odds(context.Context, string) (upstream.Odds, error) { return f.odds, f.hit() }
func (f *fakeSports) Lineups(context.Context, string) (upstream.Lineups, error) {
	return f.lineups, f.hit()
}
func (f *fakeSports) Status(context.Context, string) (upstream.Status, error) {
	return f.status, f.hit()
}

func noData() error { return failure.NoData("upstream.analysis", upstream.ErrNoData) }

func TestAnalysisNoDataRouting(t *testing.T) {
	Convey("Given the analysis stage behind a consumer and a dead letter ledger", t, func() {
		ctx := context.Background()
		store := newStore(t)
		now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		broker := queue.NewInMemoryQueue(queue.WithClock(func() time.Time { return now }))
		producer := queue.NewProducer(broker, func(string) queue.Policy { return queue.Policy{Attempts: 3, Backoff: time.Second} })
		ledger := deadletter.New(store, producer)
		sports := &fakeSports{err: noData()}
		consumer := worker.NewConsumer(broker, stages.NewAnalysis(sports, store, direct{}), worker.WithDeadLetters(ledger))
		fx := create(t, store, model.Fixture{ExternalID: strp("e1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: now.Add(-24 * time.Hour)})

		drive := func() {
			for i := 0; i < 10; i++ {
				j, err := broker.Dequeue(ctx, "analysis", time.Minute)
				if err != nil || j == nil {
					now = now.Add(time.Hour)
					continue
				}
				consumer.Process(ctx, *j)
			}
		}

		Convey("A retroactive job fails at once and is dead-lettered as permanent", func() {
			_, err := producer.Add(ctx, "analysis", "analysis-retro-1", model.AnalysisJob{FixtureRef: fx.Ref(true)}, 0)
			So(err, ShouldBeNil)
			drive()

			So(sports.calls, ShouldEqual, 1)
			j, err := broker.Get(ctx, "analysis", "analysis-retro-1")
			So(err, ShouldBeNil)
			So(j.State, ShouldEqual, queue.StateFailed)
			letters, err := ledger.List(ctx, "analysis")
			So(err, ShouldBeNil)
			So(letters, ShouldHaveLength, 1)
			So(letters[0].Permanent, ShouldBeTrue)
		})

		Convey("A scheduled job retries up to its budget before dead-lettering", func() {
			_, err := producer.Add(ctx, "analysis", "analysis-1", model.AnalysisJob{FixtureRef: fx.Ref(false)}, 0)
			So(err, ShouldBeNil)
			drive()

			So(sports.calls, ShouldEqual, 3)
			letters, err := ledger.List(ctx, "analysis")
			So(err, ShouldBeNil)
			So(letters, ShouldHaveLength, 1)
			So(letters[0].Permanent, ShouldBeFalse)
			So(letters[0].Attempts, ShouldEqual, 3)
		})
	})
}

func TestDataStages(t *testing.T) {
	Convey("Given the analysis, odds and lineups stages", t, func() {
		ctx := context.Background()
		store := newStore(t)
		fx := create(t, store, model.Fixture{ExternalID: strp("e1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: time.Now().UTC().Add(6 * time.Hour)})
		sports := &fakeSports{}

		Convey("Analysis stores an explicit data stamp and the favorite", func() {
			sports.analysis = upstream.Analysis{
				Odds:     upstream.Odds{Home: decimal.NewNullDecimal(decimal.RequireFromString("2.5")), Away: decimal.NewNullDecimal(decimal.RequireFromString("1.6"))},
				HomeForm: "WWLDW",
			}
			err := stages.NewAnalysis(sports, store, direct{}).Handle(ctx, job(t, "analysis-1", model.AnalysisJob{FixtureRef: fx.Ref(false)}))
			So(err, ShouldBeNil)
			snap, err := store.GetAnalysis(ctx, fx.ID)
			So(err, ShouldBeNil)
			So(snap.DataFetchedAt, ShouldNotBeNil)
			So(*snap.Favorite, ShouldEqual, model.FavoriteAway)
			So(snap.HasData(), ShouldBeTrue)
		})

		Convey("Missing odds are a no-op on the normal schedule", func() {
			sports.err = noData()
			h := stages.NewOdds(sports, store, direct{})
			So(h.Handle(ctx, job(t, "odds-t120-1", model.OddsJob{FixtureRef: fx.Ref(false), Slot: "t120"})), ShouldBeNil)
			err := h.Handle(ctx, job(t, "odds-retro-1", model.OddsJob{FixtureRef: fx.Ref(true)}))
			So(failure.IsExpected(err), ShouldBeTrue)
		})

		Convey("Odds create a placeholder that does not count as analysed", func() {
			sports.odds = upstream.Odds{Home: decimal.NewNullDecimal(decimal.RequireFromString("1.9"))}
			So(stages.NewOdds(sports, store, direct{}).Handle(ctx, job(t, "odds-t10-1", model.OddsJob{FixtureRef: fx.Ref(false), Slot: "t10"})), ShouldBeNil)
			snap, err := store.GetAnalysis(ctx, fx.ID)
			So(err, ShouldBeNil)
			So(snap.HomeOdds.Valid, ShouldBeTrue)
			So(snap.HasData(), ShouldBeFalse)
		})

		Convey("Lineups store the roster and injuries", func() {
			sports.lineups = upstream.Lineups{Home: []string{"a", "b"}, Away: []string{"c"}, AwayInjuries: 2}
			So(stages.NewLineups(sports, store, direct{}).Handle(ctx, job(t, "lineups-1", model.LineupsJob{FixtureRef: fx.Ref(false)})), ShouldBeNil)
			snap, err := store.GetAnalysis(ctx, fx.ID)
			So(err, ShouldBeNil)
			So(snap.AwayInjuries, ShouldEqual, 2)
			So(string(snap.Lineups), ShouldContainSubstring, `"home":["a","b"]`)
		})

		Convey("A payload on the wrong queue is permanent", func() {
			j := job(t, "analysis-1", model.AnalysisJob{FixtureRef: fx.Ref(false)})
			j.Queue = "odds"
			err := stages.NewAnalysis(sports, store, direct{}).Handle(ctx, j)
			So(failure.IsPermanent(err), ShouldBeTrue)
			So(sports.calls, ShouldEqual, 0)
		})

		Convey("Void fixtures are skipped", func() {
			_, _, err := store.TransitionFixture(ctx, fx.ID, model.StatusCancelled, nil, nil)
			So(err, ShouldBeNil)
			So(stages.NewAnalysis(sports, store, direct{}).Handle(ctx, job(t, "analysis-1", model.AnalysisJob{FixtureRef: fx.Ref(false)})), ShouldBeNil)
			So(sports.calls, ShouldEqual, 0)
		})
	})
}

type scripted map[string]func() (string, error)

func (s scripted) Lookup(provider string) (upstream.Predictor, error) {
	fn, ok := s[provider]
	if !ok {
		return nil, upstream.ErrUnknownProvider
	}
	return upstream.PredictorFunc(func(context.Context, upstream.PredictRequest) (string, error) { return fn() }), nil
}

func (s scripted) Fallback(provider string) (string, bool) {
	if provider == "primary" {
		return "backup", true
	}
	return "", false
}

func TestForecasts(t *testing.T) {
	Convey("Given three forecasters and a fixture with analysis", t, func() {
		ctx := context.Background()
		store := newStore(t)
		fx := create(t, store, model.Fixture{ExternalID: strp("e1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: time.Now().UTC().Add(time.Hour)})
		fetched := time.Now().UTC()
		So(store.UpsertAnalysis(ctx, &model.AnalysisSnapshot{FixtureID: fx.ID, DataFetchedAt: &fetched}), ShouldBeNil)
		for _, f := range []model.Forecaster{
			{ID: "good", Name: "good", Provider: "primary", Enabled: true},
			{ID: "chatty", Name: "chatty", Provider: "words", Enabled: true},
			{ID: "other", Name: "other", Provider: "third", Enabled: true},
		} {
			So(store.SaveForecaster(ctx, &f), ShouldBeNil)
		}
		preds := scripted{
			"primary": func() (string, error) { return "2-1", nil },
			"backup":  func() (string, error) { return "1-1", nil },
			"words":   func() (string, error) { return "the home side, comfortably", nil },
			"third":   func() (string, error) { return "0:0", nil },
		}
		settings := stages.ForecastSettings{Parallelism: 2, DisableAfter: 2}
		payload := model.ForecastJob{FixtureRef: fx.Ref(false), Attempt: 1}

		Convey("Parsed answers are stored and failures hit forecaster health", func() {
			h := stages.NewForecasts(store, preds, direct{}, settings)
			So(h.Handle(ctx, job(t, "forecasts-a1-1", payload)), ShouldBeNil)

			forecasts, err := store.ListForecasts(ctx, fx.ID)
			So(err, ShouldBeNil)
			So(forecasts, ShouldHaveLength, 2)
			chatty, err := store.GetForecaster(ctx, "chatty")
			So(err, ShouldBeNil)
			So(chatty.ConsecutiveFailures, ShouldEqual, 1)

			Convey("A second run only calls the missing forecaster and disables it", func() {
				So(h.Handle(ctx, job(t, "forecasts-a2-1", payload)), ShouldNotBeNil)
				chatty, err := store.GetForecaster(ctx, "chatty")
				So(err, ShouldBeNil)
				So(chatty.AutoDisabled, ShouldBeTrue)
				missing, err := store.MissingForecasters(ctx, fx.ID)
				So(err, ShouldBeNil)
				So(missing, ShouldBeEmpty)
			})
		})

		Convey("An open provider breaker falls back", func() {
			h := stages.NewForecasts(store, preds, refusing{stages.PredictorDependency("primary"): true}, settings)
			So(h.Handle(ctx, job(t, "forecasts-a1-1", payload)), ShouldBeNil)
			forecasts, err := store.ListForecasts(ctx, fx.ID)
			So(err, ShouldBeNil)
			var good model.Forecast
			for _, f := range forecasts {
				if f.ForecasterID == "good" {
					good = f
				}
			}
			So(good.PredictedHome, ShouldEqual, 1)
			So(good.PredictedOutcome, ShouldEqual, model.OutcomeDraw)
		})

		Convey("All providers rate limited is a rate-limited failure", func() {
			limited := func() (string, error) { return "", failure.RateLimited("test", errors.New("429")) }
			h := stages.NewForecasts(store, scripted{"primary": limited, "words": limited, "third": limited}, direct{}, settings)
			err := h.Handle(ctx, job(t, "forecasts-a1-1", payload))
			So(failure.IsRateLimited(err), ShouldBeTrue)
		})

		Convey("A partly throttled run stores what it got and still reports the limit", func() {
			var mu sync.Mutex
			throttled := true
			third := func() (string, error) {
				mu.Lock()
				defer mu.Unlock()
				if throttled {
					return "", failure.RateLimited("test", errors.New("429"))
				}
				return "0:0", nil
			}
			h := stages.NewForecasts(store, scripted{"primary": preds["primary"], "words": preds["primary"], "third": third}, direct{}, settings)
			err := h.Handle(ctx, job(t, "forecasts-a1-1", payload))
			So(failure.IsRateLimited(err), ShouldBeTrue)
			n, _ := store.CountForecasts(ctx, fx.ID)
			So(n, ShouldEqual, 2)
			other, err := store.GetForecaster(ctx, "other")
			So(err, ShouldBeNil)
			So(other.ConsecutiveFailures, ShouldEqual, 0)

			Convey("The retry asks only the throttled forecaster", func() {
				mu.Lock()
				throttled = false
				mu.Unlock()
				So(h.Handle(ctx, job(t, "forecasts-a1-1", payload)), ShouldBeNil)
				n, _ := store.CountForecasts(ctx, fx.ID)
				So(n, ShouldEqual, 3)
			})
		})

		Convey("Non-forced attempts wait for analysis data", func() {
			other := create(t, store, model.Fixture{ExternalID: strp("e2"), HomeTeam: "C", AwayTeam: "D", KickoffAt: time.Now().UTC().Add(time.Hour)})
			h := stages.NewForecasts(store, preds, direct{}, settings)
			So(h.Handle(ctx, job(t, "forecasts-a1-2", model.ForecastJob{FixtureRef: other.Ref(false), Attempt: 1})), ShouldBeNil)
			n, _ := store.CountForecasts(ctx, other.ID)
			So(n, ShouldEqual, 0)

			So(h.Handle(ctx, job(t, "forecasts-a3-2", model.ForecastJob{FixtureRef: other.Ref(false), Attempt: 3, Forced: true})), ShouldBeNil)
			n, _ = store.CountForecasts(ctx, other.ID)
			So(n, ShouldEqual, 2)
		})

		Convey("The timing gate closes at kickoff unless retroactive", func() {
			past := create(t, store, model.Fixture{ExternalID: strp("e3"), HomeTeam: "E", AwayTeam: "F", KickoffAt: time.Now().UTC().Add(-time.Hour)})
			h := stages.NewForecasts(store, preds, direct{}, settings)
			So(h.Handle(ctx, job(t, "forecasts-a3-3", model.ForecastJob{FixtureRef: past.Ref(false), Attempt: 3, Forced: true})), ShouldBeNil)
			n, _ := store.CountForecasts(ctx, past.ID)
			So(n, ShouldEqual, 0)

			So(h.Handle(ctx, job(t, "forecasts-retro-3", model.ForecastJob{FixtureRef: past.Ref(true)})), ShouldBeNil)
			n, _ = store.CountForecasts(ctx, past.ID)
			So(n, ShouldEqual, 2)
		})
	})
}

func TestLiveAndSettlement(t *testing.T) {
	Convey("Given a fixture that kicked off an hour ago", t, func() {
		ctx := context.Background()
		store := newStore(t)
		broker := queue.NewInMemoryQueue()
		producer := queue.NewProducer(broker, nil)
		fx := create(t, store, model.Fixture{ExternalID: strp("e1"), HomeTeam: "A", AwayTeam: "B", KickoffAt: time.Now().UTC().Add(-time.Hour)})
		for _, id := range []string{"x", "y"} {
			So(store.SaveForecaster(ctx, &model.Forecaster{ID: id, Name: id, Provider: "p", Enabled: true}), ShouldBeNil)
		}
		fa := model.NewForecast(fx.ID, "x", 2, 1, 1)
		fb := model.NewForecast(fx.ID, "y", 0, 1, 1)
		So(store.UpsertForecast(ctx, &fa), ShouldBeNil)
		So(store.UpsertForecast(ctx, &fb), ShouldBeNil)

		sports := &fakeSports{}
		live := stages.NewLive(sports, store, producer, direct{}, stages.LiveSettings{PollInterval: time.Minute, MaxDuration: 4 * time.Hour})
		settle := stages.NewSettlement(store, scoring.NewSettler(store, nil))
		liveJob := job(t, "live-1", model.LiveJob{FixtureRef: fx.Ref(false)})
		settleJob := job(t, "settlement-1", model.SettlementJob{FixtureRef: fx.Ref(false)})

		Convey("A running fixture goes live and snoozes", func() {
			sports.status = upstream.Status{Status: model.StatusLive}
			err := live.Handle(ctx, liveJob)
			So(errors.Is(err, worker.ErrSnooze), ShouldBeTrue)
			got, _ := store.GetFixture(ctx, fx.ID)
			So(got.Status, ShouldEqual, model.StatusLive)
		})

		Convey("Settlement before the result is retryable, or permanent when retroactive", func() {
			err := settle.Handle(ctx, settleJob)
			So(failure.IsRetryable(err), ShouldBeTrue)
			err = settle.Handle(ctx, job(t, "settlement-retro-1", model.SettlementJob{FixtureRef: fx.Ref(true)}))
			So(failure.IsPermanent(err), ShouldBeTrue)
		})

		Convey("A finished fixture is transitioned, settled and scored once", func() {
			sports.status = upstream.Status{Status: model.StatusFinished, HomeScore: intp(2), AwayScore: intp(1)}
			So(live.Handle(ctx, liveJob), ShouldBeNil)

			sj, err := broker.Get(ctx, "settlement", fmt.Sprintf("settlement-%d", fx.ID))
			So(err, ShouldBeNil)
			So(sj.State, ShouldEqual, queue.StateWaiting)

			So(settle.Handle(ctx, settleJob), ShouldBeNil)
			So(settle.Handle(ctx, settleJob), ShouldBeNil)
			forecasts, err := store.ListForecasts(ctx, fx.ID)
			So(err, ShouldBeNil)
			for _, f := range forecasts {
				So(f.Status, ShouldEqual, model.ForecastScored)
				So(f.TotalPoints, ShouldNotBeNil)
			}
			So(*forecasts[0].TotalPoints, ShouldEqual, 4+1+3)
			So(*forecasts[1].TotalPoints, ShouldEqual, 0)
		})

		Convey("Monitoring gives up after the window", func() {
			late := create(t, store, model.Fixture{ExternalID: strp("e2"), HomeTeam: "C", AwayTeam: "D", KickoffAt: time.Now().UTC().Add(-5 * time.Hour)})
			sports.status = upstream.Status{Status: model.StatusLive}
			err := live.Handle(ctx, job(t, "live-2", model.LiveJob{FixtureRef: late.Ref(false)}))
			So(errors.Is(err, stages.ErrMonitorWindowClosed), ShouldBeTrue)
			So(failure.IsPermanent(err), ShouldBeTrue)
		})
	})
}

type fakePlanner struct {
	scheduled   []uint64
	unscheduled []uint64
}

func (p *fakePlanner) Schedule(_ context.Context, f model.Fixture) (scheduler.Result, error) {
	p.scheduled = append(p.scheduled, f.ID)
	return scheduler.Result{FixtureID: f.ID, Enqueued: 1}, nil
}

func (p *fakePlanner) Unschedule(_ context.Context, f model.Fixture) (int, error) {
	p.unscheduled = append(p.unscheduled, f.ID)
	return 1, nil
}

func TestIngest(t *testing.T) {
	Convey("Given a provider listing fixtures", t, func() {
		ctx := context.Background()
		store := newStore(t)
		planner := &fakePlanner{}
		kickoff := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
		sports := &fakeSports{fixtures: []upstream.FixtureInfo{
			{ExternalID: "e1", HomeTeam: "A", AwayTeam: "B", KickoffAt: kickoff, Status: model.StatusScheduled},
			{ExternalID: "e2", HomeTeam: "C", AwayTeam: "D", KickoffAt: kickoff.Add(time.Hour), Status: model.StatusScheduled},
		}}
		h := stages.NewIngest(sports, store, planner, direct{})
		payload := model.IngestJob{From: kickoff.Add(-72 * time.Hour), To: kickoff.Add(72 * time.Hour)}

		So(h.Handle(ctx, job(t, "ingest-1", payload)), ShouldBeNil)
		So(planner.scheduled, ShouldHaveLength, 2)

		Convey("A moved kickoff drops the old calendar before replanning", func() {
			sports.fixtures[0].KickoffAt = kickoff.Add(24 * time.Hour)
			sports.fixtures[1].Status = model.StatusCancelled
			So(h.Handle(ctx, job(t, "ingest-2", payload)), ShouldBeNil)
			So(planner.unscheduled, ShouldHaveLength, 2)
			So(planner.scheduled, ShouldHaveLength, 3)
		})
	})
}

type fakeReconciler struct {
	reports []reconcile.Report
	err     error
	cursors []*model.BackfillCursor
}

func (f *fakeReconciler) RunFrom(_ context.Context, _ time.Duration, cur *model.BackfillCursor) (reconcile.Report, error) {
	f.cursors = append(f.cursors, cur)
	if f.err != nil {
		return reconcile.Report{}, f.err
	}
	rep := f.reports[0]
	f.reports = f.reports[1:]
	return rep, nil
}

func TestBackfill(t *testing.T) {
	Convey("Given the backfill stage over a budget-limited reconciler", t, func() {
		ctx := context.Background()
		broker := queue.NewInMemoryQueue()
		producer := queue.NewProducer(broker, nil)
		cursor := &model.BackfillCursor{KickoffAt: time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC), FixtureID: 42}
		rec := &fakeReconciler{reports: []reconcile.Report{{Gaps: 6, Resume: cursor}, {Gaps: 3}}}
		h := stages.NewBackfill(rec, producer)

		Convey("A truncated run queues a continuation from its cursor", func() {
			So(h.Handle(ctx, job(t, "backfill-deploy-1", model.BackfillJob{LookbackDays: 90, Reason: "deploy"})), ShouldBeNil)
			So(rec.cursors[0], ShouldBeNil)

			next, err := broker.Get(ctx, "backfill", "backfill-deploy-1~g42")
			So(err, ShouldBeNil)
			p, err := model.DecodePayload[model.BackfillJob]("backfill", next.Payload)
			So(err, ShouldBeNil)
			So(p.LookbackDays, ShouldEqual, 90)
			So(p.Resume.FixtureID, ShouldEqual, uint64(42))

			Convey("The continuation resumes there and stops when the window is done", func() {
				So(h.Handle(ctx, next), ShouldBeNil)
				So(rec.cursors[1].FixtureID, ShouldEqual, uint64(42))
				counts, err := broker.Counts(ctx, "backfill")
				So(err, ShouldBeNil)
				So(counts.Waiting, ShouldEqual, int64(1))
			})
		})

		Convey("A run already in flight snoozes the job", func() {
			rec.err = reconcile.ErrRunInProgress
			err := h.Handle(ctx, job(t, "backfill-cron-1", model.BackfillJob{LookbackDays: 7}))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, reconcile.ErrRunInProgress), ShouldBeFalse)
		})
	})
}
