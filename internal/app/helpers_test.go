package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/adapters/upstream"
	service "github.com/okian/matchday/internal/app"
	"github.com/okian/matchday/internal/config"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/shopspring/decimal"
)

type fakeSports struct {
	mu       sync.Mutex
	fixtures []upstream.FixtureInfo
	status   upstream.Status
}

func (f *fakeSports) Fixtures(context.Context, time.Time, time.Time) ([]upstream.FixtureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fixtures, nil
}

func (f *fakeSports) Analysis(context.Context, string) (upstream.Analysis, error) {
	return upstream.Analysis{
		Odds: upstream.Odds{
			Home: decimal.NewNullDecimal(decimal.RequireFromString("1.8")),
			Draw: decimal.NewNullDecimal(decimal.RequireFromString("3.4")),
			Away: decimal.NewNullDecimal(decimal.RequireFromString("4.2")),
		},
		HomeForm: "WWDWL",
		AwayForm: "LLDWL",
	}, nil
}

func (f *fakeSports) Odds(context.Context, string) (upstream.Odds, error) {
	return upstream.Odds{Home: decimal.NewNullDecimal(decimal.RequireFromString("1.75"))}, nil
}

func (f *fakeSports) Lineups(context.Context, string) (upstream.Lineups, error) {
	return upstream.Lineups{Home: []string{"gk"}, Away: []string{"gk"}}, nil
}

func (f *fakeSports) Status(context.Context, string) (upstream.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

type harness struct {
	svc    *service.Service
	store  *repository.Store
	broker *queue.InMemoryQueue
	sports *fakeSports
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithPool(1, 1, 0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{store: store, sports: &fakeSports{}, now: time.Now().UTC()}
	h.broker = queue.NewInMemoryQueue(queue.WithClock(func() time.Time { return h.now }))

	preds := upstream.NewRegistry(nil, nil)
	preds.Register("alpha", upstream.PredictorFunc(func(context.Context, upstream.PredictRequest) (string, error) {
		return `{"home": 2, "away": 0}`, nil
	}))
	preds.Register("beta", upstream.PredictorFunc(func(context.Context, upstream.PredictRequest) (string, error) {
		return "I expect a 1-1 draw.", nil
	}))
	for _, f := range []model.Forecaster{
		{ID: "alpha-1", Name: "Alpha", Provider: "alpha", Enabled: true},
		{ID: "beta-1", Name: "Beta", Provider: "beta", Enabled: true},
	} {
		if err := store.SaveForecaster(ctx, &f); err != nil {
			t.Fatalf("forecaster: %v", err)
		}
	}

	cfg := config.New(ctx)
	svc, err := service.New(cfg, store,
		service.WithBroker(h.broker),
		service.WithSportsData(h.sports),
		service.WithPredictors(preds),
		service.WithClock(func() time.Time { return h.now }),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

// drain processes every due job of the named queues, in order.
func (h *harness) drain(names ...string) int {
	ctx := context.Background()
	n := 0
	for _, name := range names {
		c := h.svc.Consumer(name)
		for {
			j, err := h.broker.Dequeue(ctx, name, time.Minute)
			if err != nil || j == nil {
				break
			}
			c.Process(ctx, *j)
			n++
		}
	}
	return n
}
