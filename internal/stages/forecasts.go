package stages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultForecastParallelism = 4

// ForecastStore persists forecasts and forecaster health.
type ForecastStore interface {
	GetFixture(ctx context.Context, id uint64) (model.Fixture, error)
	GetAnalysis(ctx context.Context, fixtureID uint64) (*model.AnalysisSnapshot, error)
	MissingForecasters(ctx context.Context, fixtureID uint64) ([]model.Forecaster, error)
	UpsertForecast(ctx context.Context, f *model.Forecast) error
	RecordForecasterSuccess(ctx context.Context, id string) error
	RecordForecasterFailure(ctx context.Context, id string, cause error, disableAfter int) (bool, error)
}

// Predictors resolves forecaster providers.
type Predictors interface {
	Lookup(provider string) (upstream.Predictor, error)
	Fallback(provider string) (string, bool)
}

// ForecastSettings tunes the forecast stage.
type ForecastSettings struct {
	// Parallelism bounds concurrent forecaster calls per fixture.
	Parallelism int
	// DisableAfter auto-disables a forecaster after this many consecutive
	// failures. Zero never disables.
	DisableAfter int
}

// Forecasts collects one forecast per active forecaster.
type Forecasts struct {
	store      ForecastStore
	predictors Predictors
	guard      Guard
	settings   ForecastSettings
	now        Clock
	logger     logger.Logger
}

// NewForecasts creates the forecast handler.
func NewForecasts(store ForecastStore, predictors Predictors, guard Guard, s ForecastSettings) *Forecasts {
	if s.Parallelism < 1 {
		s.Parallelism = defaultForecastParallelism
	}
	return &Forecasts{store: store, predictors: predictors, guard: guard, settings: s, now: utcNow, logger: logger.Named("stage.forecasts")}
}

func (h *Forecasts) Queue() string { return model.StageForecasts.Queue() }

type tally struct {
	mu          sync.Mutex
	stored      int
	errs        []error
	rateLimited bool
	retryable   bool
}

func (t *tally) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, err)
	t.rateLimited = t.rateLimited || failure.IsRateLimited(err)
	t.retryable = t.retryable || failure.IsRetryable(err)
}

func (t *tally) ok() {
	t.mu.Lock()
	t.stored++
	t.mu.Unlock()
}

func (h *Forecasts) Handle(ctx context.Context, job queue.Job) error {
	const op = "stages.forecasts"
	p, err := decode[model.ForecastJob](op, job)
	if err != nil {
		return err
	}
	log := jobLogger(h.logger, job, p.FixtureRef).With(logger.Int("attempt", p.Attempt))

	fx, err := h.store.GetFixture(ctx, p.FixtureID)
	if err != nil {
		return err
	}
	if !p.AllowRetroactive && (fx.Status != model.StatusScheduled || !h.now().Before(fx.KickoffAt)) {
		log.Info(ctx, "forecast window closed", logger.String("status", string(fx.Status)))
		return nil
	}

	snap, err := h.store.GetAnalysis(ctx, p.FixtureID)
	if err != nil && failure.KindOf(err) != failure.KindNotFound {
		return err
	}
	if !p.AllowRetroactive && !p.Forced && !snap.HasData() {
		log.Info(ctx, "analysis not ready, leaving it to a later attempt")
		return nil
	}

	pending, err := h.store.MissingForecasters(ctx, p.FixtureID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	req := upstream.PredictRequest{Fixture: p.FixtureRef, Kickoff: fx.KickoffAt, Analysis: snap}
	var t tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.settings.Parallelism)
	for _, f := range pending {
		g.Go(func() error {
			if err := h.forecast(gctx, f, req, p.Attempt); err != nil {
				t.fail(fmt.Errorf("%s: %w", f.ID, err))
				h.recordFailure(gctx, log, f, err)
				return nil
			}
			t.ok()
			return nil
		})
	}
	_ = g.Wait()

	log.Info(ctx, "forecasts collected",
		logger.Int("pending", len(pending)),
		logger.Int("stored", t.stored),
		logger.Int("failed", len(t.errs)))

	if len(t.errs) == 0 {
		return nil
	}
	cause := errors.Join(t.errs...)
	// A throttled provider is reported even when others stored an answer:
	// the retry only asks the forecasters still missing, and the queue
	// breaker has to see the limit.
	if t.rateLimited {
		return failure.RateLimited(op, cause)
	}
	if t.stored > 0 {
		return nil
	}
	switch {
	case t.retryable:
		return failure.Transient(op, cause)
	default:
		return failure.Permanent(op, cause)
	}
}

// forecast asks one forecaster and stores its answer. A provider whose
// breaker is open is replaced by its fallback when one is configured.
func (h *Forecasts) forecast(ctx context.Context, f model.Forecaster, req upstream.PredictRequest, attempt int) error {
	req.Model = f.Model
	out, err := h.predict(ctx, f.Provider, req)
	if failure.IsBreakerOpen(err) {
		if fb, ok := h.predictors.Fallback(f.Provider); ok {
			out, err = h.predict(ctx, fb, req)
		}
	}
	if err != nil {
		return err
	}
	home, away, err := upstream.ParsePrediction(out)
	if err != nil {
		return err
	}
	row := model.NewForecast(req.Fixture.FixtureID, f.ID, home, away, attempt)
	row.RawOutput = out
	if err := h.store.UpsertForecast(ctx, &row); err != nil {
		return err
	}
	metrics.RecordForecastStored(f.ID)
	return h.store.RecordForecasterSuccess(ctx, f.ID)
}

func (h *Forecasts) predict(ctx context.Context, provider string, req upstream.PredictRequest) (string, error) {
	p, err := h.predictors.Lookup(provider)
	if err != nil {
		return "", failure.Config("stages.predict", err)
	}
	var out string
	err = h.guard.Do(ctx, PredictorDependency(provider), func(ctx context.Context) error {
		var perr error
		out, perr = p.Predict(ctx, req)
		return perr
	})
	return out, err
}

// recordFailure updates forecaster health. Calls refused by an open breaker
// or throttled by the provider are not the forecaster's fault and leave its
// counters alone.
func (h *Forecasts) recordFailure(ctx context.Context, log logger.Logger, f model.Forecaster, cause error) {
	metrics.RecordForecasterFailure(f.ID)
	if failure.IsBreakerOpen(cause) || failure.IsRateLimited(cause) || errors.Is(cause, context.Canceled) {
		return
	}
	disabled, err := h.store.RecordForecasterFailure(context.WithoutCancel(ctx), f.ID, cause, h.settings.DisableAfter)
	if err != nil {
		log.Error(ctx, "record forecaster failure", logger.String("forecaster", f.ID), logger.Error(err))
		return
	}
	if disabled {
		metrics.RecordForecasterDisabled(f.ID)
		log.Warn(ctx, "forecaster auto-disabled", logger.String("forecaster", f.ID), logger.Error(cause))
	}
}
