// Package service is the composition root: it builds the stage pipeline,
// supervises its consumers and cadences, and exposes the operations the
// HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/mq/worker"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/adapters/upstream"
	"github.com/okian/matchday/internal/breaker"
	"github.com/okian/matchday/internal/config"
	"github.com/okian/matchday/internal/deadletter"
	"github.com/okian/matchday/internal/domain/dedupe"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/scoring"
	"github.com/okian/matchday/internal/reconcile"
	"github.com/okian/matchday/internal/scheduler"
	"github.com/okian/matchday/internal/stages"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/tracker"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when a required dependency is missing.
var ErrNotConfigured = errors.New("service dependency not configured")

// Service owns every pipeline component.
type Service struct {
	cfg   *config.Config
	store *repository.Store

	broker     queue.Broker
	producer   *queue.Producer
	services   *breaker.Services
	queues     *breaker.Queues
	ledger     *deadletter.Ledger
	scheduler  *scheduler.Scheduler
	reconciler *reconcile.Reconciler
	settler    *scoring.Settler

	sports     upstream.SportsData
	predictors stages.Predictors
	tracker    tracker.Tracker
	handlers   []worker.Handler
	consumers  []*worker.Consumer

	now     func() time.Time
	started time.Time
	logger  logger.Logger

	closeOnce sync.Once
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSportsData replaces the HTTP sports-data client.
func WithSportsData(s upstream.SportsData) Option {
	return func(svc *Service) { svc.sports = s }
}

// WithPredictors replaces the HTTP predictor registry.
func WithPredictors(p stages.Predictors) Option {
	return func(svc *Service) { svc.predictors = p }
}

// WithBroker replaces the broker selected by configuration.
func WithBroker(b queue.Broker) Option {
	return func(svc *Service) { svc.broker = b }
}

// WithTracker sets the error tracker.
func WithTracker(t tracker.Tracker) Option {
	return func(svc *Service) {
		if t != nil {
			svc.tracker = t
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithClock sets the clock used by the scheduler, the reconciler and the
// cadences.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// New wires the pipeline over an open store.
func New(cfg *config.Config, store *repository.Store, opts ...Option) (*Service, error) {
	if cfg == nil || store == nil {
		return nil, ErrNotConfigured
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		tracker: tracker.Noop{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.started = s.now()

	if s.broker == nil {
		b, err := openBroker(cfg)
		if err != nil {
			return nil, err
		}
		s.broker = b
	}
	if s.sports == nil {
		s.sports = upstream.NewSportsClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.UpstreamTimeout,
			upstream.WithRate(cfg.UpstreamRatePerSecond, cfg.UpstreamBurst))
	}
	if s.predictors == nil {
		s.predictors = upstream.NewRegistry(cfg.PredictorFallbacks, func(provider string) upstream.Predictor {
			return upstream.NewPredictorClient(provider, cfg.PredictorBaseURL, cfg.PredictorAPIKey, cfg.PredictorTimeout,
				upstream.WithRate(cfg.PredictorRatePerSecond, 1))
		})
	}

	s.producer = queue.NewProducer(s.broker, func(name string) queue.Policy {
		q := cfg.Queue(name)
		return queue.Policy{Attempts: q.Attempts, Backoff: q.Backoff}
	})
	s.services = breaker.NewServices(store, breaker.Settings{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Probes:           cfg.BreakerProbes,
		Interval:         cfg.BreakerInterval,
	})
	s.queues = breaker.NewQueues(s.broker, cfg.QueueBreakerThreshold, cfg.QueueBreakerCooldown)
	s.ledger = deadletter.New(store, s.producer)
	s.scheduler = scheduler.New(store, s.producer,
		scheduler.WithHorizon(cfg.SchedulerHorizon),
		scheduler.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize), dedupe.WithTTL(cfg.SchedulerHorizon))),
		scheduler.WithClock(s.now))
	s.reconciler = reconcile.New(store, s.producer,
		reconcile.WithPhaseTimeout(cfg.ReconcilePhaseTimeout),
		reconcile.WithPollInterval(cfg.ReconcilePollInterval),
		reconcile.WithBudget(cfg.BackfillBudget()),
		reconcile.WithClock(s.now))
	s.settler = scoring.NewSettler(store, nil)

	s.handlers = []worker.Handler{
		stages.NewIngest(s.sports, store, s.scheduler, s.services),
		stages.NewAnalysis(s.sports, store, s.services),
		stages.NewOdds(s.sports, store, s.services),
		stages.NewLineups(s.sports, store, s.services),
		stages.NewForecasts(store, s.predictors, s.services, stages.ForecastSettings{
			Parallelism:  cfg.ForecastParallelism,
			DisableAfter: cfg.ForecasterDisableAfter,
		}),
		stages.NewLive(s.sports, store, s.producer, s.services, stages.LiveSettings{
			PollInterval: cfg.LivePollInterval,
			MaxDuration:  cfg.LiveMaxDuration,
		}),
		stages.NewSettlement(store, s.settler),
		stages.NewBackfill(s.reconciler, s.producer),
	}
	for _, h := range s.handlers {
		q := cfg.Queue(h.Queue())
		s.consumers = append(s.consumers, worker.NewConsumer(s.broker, h,
			worker.WithConcurrency(q.Concurrency),
			worker.WithLock(q.Lock),
			worker.WithPollInterval(cfg.PollInterval),
			worker.WithQueueBreaker(s.queues),
			worker.WithDeadLetters(s.ledger),
			worker.WithTracker(s.tracker),
		))
	}
	return s, nil
}

func openBroker(cfg *config.Config) (queue.Broker, error) {
	switch cfg.BrokerBackend {
	case "memory", "":
		return queue.NewInMemoryQueue(
			queue.WithCapacity(cfg.QueueCapacity),
			queue.WithRetention(cfg.CompletedRetention),
		), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return queue.NewRedisBroker(client,
			queue.WithPrefix(cfg.RedisPrefix),
			queue.WithRetention(cfg.CompletedRetention),
		), nil
	}
	return nil, fmt.Errorf("%w: broker backend %q", config.ErrInvalidConfig, cfg.BrokerBackend)
}

// Producer returns the job producer.
func (s *Service) Producer() *queue.Producer { return s.producer }

// Broker returns the job broker.
func (s *Service) Broker() queue.Broker { return s.broker }

// Scheduler returns the fixture scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Consumers returns one consumer per stage queue.
func (s *Service) Consumers() []*worker.Consumer { return s.consumers }

// Consumer returns the consumer of queue, or nil.
func (s *Service) Consumer(queueName string) *worker.Consumer {
	for i, h := range s.handlers {
		if h.Queue() == queueName {
			return s.consumers[i]
		}
	}
	return nil
}

// Close stops breaker timers and closes the broker.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.queues.Close()
		err = s.broker.Close()
		s.logger.Info(context.Background(), "service stopped")
	})
	return err
}

func queueNames() []string {
	out := make([]string, 0, len(model.Stages()))
	for _, st := range model.Stages() {
		out = append(out, st.Queue())
	}
	return out
}
