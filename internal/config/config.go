// Package config defines service configuration and its loading.
//
// Conventions:
//   - New(ctx) returns a Config filled with defaults.
//   - Load(ctx) layers YAML, .env and environment variables on top.
//   - Keys are flat snake_case except the per-queue table.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/matchday/internal/domain/model"
)

// QueueConfig tunes one stage queue.
type QueueConfig struct {
	// Concurrency bounds the jobs handled at once.
	Concurrency int `koanf:"concurrency"`
	// Attempts is the retry budget, including the first run.
	Attempts int `koanf:"attempts"`
	// Backoff is the base delay of the exponential retry policy.
	Backoff time.Duration `koanf:"backoff"`
	// Lock is the lease after which an active job is considered stalled.
	Lock time.Duration `koanf:"lock"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// Environment tags error reports and metrics.
	Environment string `koanf:"environment"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// AdminToken, when set, is required as a bearer token on /admin routes.
	AdminToken string `koanf:"admin_token"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// DatabaseDriver is postgres or sqlite.
	DatabaseDriver       string        `koanf:"database_driver"`
	DatabaseDSN          string        `koanf:"database_dsn"`
	DatabaseMaxOpenConns int           `koanf:"database_max_open_conns"`
	DatabaseMaxIdleConns int           `koanf:"database_max_idle_conns"`
	DatabaseConnLifetime time.Duration `koanf:"database_conn_lifetime"`

	// BrokerBackend is memory or redis.
	BrokerBackend string `koanf:"broker_backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
	// QueueCapacity bounds each in-memory queue.
	QueueCapacity int `koanf:"queue_capacity"`
	// CompletedRetention keeps finished job ids so re-enqueues stay rejected.
	CompletedRetention time.Duration `koanf:"completed_retention"`
	// PollInterval is how often an idle consumer looks for work.
	PollInterval time.Duration `koanf:"poll_interval"`
	// Queues holds per-stage tuning keyed by queue name.
	Queues map[string]QueueConfig `koanf:"queues"`

	// Service breaker thresholds.
	BreakerFailureThreshold int           `koanf:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `koanf:"breaker_cooldown"`
	BreakerProbes           int           `koanf:"breaker_probes"`
	BreakerInterval         time.Duration `koanf:"breaker_interval"`

	// Queue breaker thresholds.
	QueueBreakerThreshold int           `koanf:"queue_breaker_threshold"`
	QueueBreakerCooldown  time.Duration `koanf:"queue_breaker_cooldown"`

	// Sports data provider.
	UpstreamBaseURL       string        `koanf:"upstream_base_url"`
	UpstreamAPIKey        string        `koanf:"upstream_api_key"`
	UpstreamTimeout       time.Duration `koanf:"upstream_timeout"`
	UpstreamRatePerSecond float64       `koanf:"upstream_rate_per_second"`
	UpstreamBurst         int           `koanf:"upstream_burst"`

	// Forecast inference provider.
	PredictorBaseURL       string        `koanf:"predictor_base_url"`
	PredictorAPIKey        string        `koanf:"predictor_api_key"`
	PredictorTimeout       time.Duration `koanf:"predictor_timeout"`
	PredictorRatePerSecond float64       `koanf:"predictor_rate_per_second"`
	// PredictorFallbacks maps a provider to the provider used when it is unavailable.
	PredictorFallbacks map[string]string `koanf:"predictor_fallbacks"`

	// Scheduling cadences (cron expressions, five fields).
	IngestCron   string `koanf:"ingest_cron"`
	ScheduleCron string `koanf:"schedule_cron"`
	BackfillCron string `koanf:"backfill_cron"`
	// IngestWindow is how far ahead fixture ingest looks.
	IngestWindow time.Duration `koanf:"ingest_window"`
	// SchedulerHorizon is how far ahead the sweep schedules fixtures.
	SchedulerHorizon time.Duration `koanf:"scheduler_horizon"`
	// DedupeSize bounds the sweep's recently-scheduled ledger.
	DedupeSize int `koanf:"dedupe_size"`

	// Reconciler.
	ReconcileLookback     time.Duration `koanf:"reconcile_lookback"`
	ReconcilePhaseTimeout time.Duration `koanf:"reconcile_phase_timeout"`
	ReconcilePollInterval time.Duration `koanf:"reconcile_poll_interval"`

	// Forecast stage.
	ForecasterDisableAfter int `koanf:"forecaster_disable_after"`
	ForecastParallelism    int `koanf:"forecast_parallelism"`

	// Live monitor.
	LivePollInterval time.Duration `koanf:"live_poll_interval"`
	LiveMaxDuration  time.Duration `koanf:"live_max_duration"`

	// SentryDSN enables error tracking when set.
	SentryDSN string `koanf:"sentry_dsn"`
}

// DefaultQueues returns the stage queue tuning used when nothing overrides it.
func DefaultQueues() map[string]QueueConfig {
	return map[string]QueueConfig{
		model.StageIngest.Queue():     {Concurrency: 1, Attempts: 3, Backoff: 30 * time.Second, Lock: 5 * time.Minute},
		model.StageAnalysis.Queue():   {Concurrency: 3, Attempts: 5, Backoff: time.Minute, Lock: 2 * time.Minute},
		model.StageOdds.Queue():       {Concurrency: 3, Attempts: 3, Backoff: 30 * time.Second, Lock: time.Minute},
		model.StageLineups.Queue():    {Concurrency: 3, Attempts: 3, Backoff: time.Minute, Lock: time.Minute},
		model.StageForecasts.Queue():  {Concurrency: 2, Attempts: 3, Backoff: 2 * time.Minute, Lock: 10 * time.Minute},
		model.StageLive.Queue():       {Concurrency: 10, Attempts: 5, Backoff: 15 * time.Second, Lock: time.Minute},
		model.StageSettlement.Queue(): {Concurrency: 2, Attempts: 5, Backoff: 30 * time.Second, Lock: 2 * time.Minute},
		model.StageBackfill.Queue():   {Concurrency: 1, Attempts: 3, Backoff: 5 * time.Minute, Lock: 3 * time.Hour},
	}
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Environment:         "development",
		Addr:                ":9080",
		MaxLeaderboardLimit: 100,
		ShutdownTimeout:     30 * time.Second,

		DatabaseDriver:       "sqlite",
		DatabaseDSN:          "file:matchday.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		DatabaseMaxOpenConns: 10,
		DatabaseMaxIdleConns: 5,
		DatabaseConnLifetime: 30 * time.Minute,

		BrokerBackend:      "memory",
		RedisAddr:          "localhost:6379",
		RedisPrefix:        "matchday",
		QueueCapacity:      50_000,
		CompletedRetention: 48 * time.Hour,
		PollInterval:       500 * time.Millisecond,
		Queues:             DefaultQueues(),

		BreakerFailureThreshold: 5,
		BreakerCooldown:         time.Minute,
		BreakerProbes:           1,
		BreakerInterval:         0,

		QueueBreakerThreshold: 5,
		QueueBreakerCooldown:  5 * time.Minute,

		UpstreamTimeout:       15 * time.Second,
		UpstreamRatePerSecond: 5,
		UpstreamBurst:         5,

		PredictorTimeout:       60 * time.Second,
		PredictorRatePerSecond: 2,
		PredictorFallbacks:     map[string]string{},

		IngestCron:       "*/30 * * * *",
		ScheduleCron:     "*/10 * * * *",
		BackfillCron:     "15 */6 * * *",
		IngestWindow:     7 * 24 * time.Hour,
		SchedulerHorizon: 24 * time.Hour,
		DedupeSize:       10_000,

		ReconcileLookback:     7 * 24 * time.Hour,
		ReconcilePhaseTimeout: 10 * time.Minute,
		ReconcilePollInterval: 5 * time.Second,

		ForecasterDisableAfter: 5,
		ForecastParallelism:    4,

		LivePollInterval: 2 * time.Minute,
		LiveMaxDuration:  4 * time.Hour,
	}
}

// Queue returns the tuning of one queue, falling back to defaults for unset fields.
func (c *Config) Queue(name string) QueueConfig {
	q := c.Queues[name]
	d, ok := DefaultQueues()[name]
	if !ok {
		d = QueueConfig{Concurrency: 1, Attempts: 3, Backoff: 30 * time.Second, Lock: time.Minute}
	}
	if q.Concurrency <= 0 {
		q.Concurrency = d.Concurrency
	}
	if q.Attempts <= 0 {
		q.Attempts = d.Attempts
	}
	if q.Backoff <= 0 {
		q.Backoff = d.Backoff
	}
	if q.Lock <= 0 {
		q.Lock = d.Lock
	}
	return q
}

// BackfillBudget is how long one reconciler run may keep starting fixtures.
// It stays inside the backfill queue lock so a long run hands the rest of
// its window to a continuation before the lease can go stale.
func (c *Config) BackfillBudget() time.Duration {
	lock := c.Queue(model.StageBackfill.Queue()).Lock
	return lock - lock/10
}

const (
	minLookback = 24 * time.Hour
	maxLookback = 365 * 24 * time.Hour
)

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite":
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.DatabaseDriver)
	case c.DatabaseDSN == "":
		return fmt.Errorf("%w: database dsn must not be empty", ErrInvalidConfig)
	case c.BrokerBackend != "memory" && c.BrokerBackend != "redis":
		return fmt.Errorf("%w: unknown broker backend %q", ErrInvalidConfig, c.BrokerBackend)
	case c.BrokerBackend == "redis" && c.RedisAddr == "":
		return fmt.Errorf("%w: redis backend needs redis_addr", ErrInvalidConfig)
	case c.ReconcileLookback < minLookback || c.ReconcileLookback > maxLookback:
		return fmt.Errorf("%w: reconcile lookback %s outside [%s, %s]", ErrInvalidConfig, c.ReconcileLookback, minLookback, maxLookback)
	case c.BreakerFailureThreshold < 1 || c.BreakerProbes < 1:
		return fmt.Errorf("%w: breaker threshold and probes must be positive", ErrInvalidConfig)
	case c.QueueBreakerThreshold < 1:
		return fmt.Errorf("%w: queue breaker threshold must be positive", ErrInvalidConfig)
	case c.BackfillBudget() < 3*c.ReconcilePhaseTimeout:
		return fmt.Errorf("%w: backfill lock must fit the three phases of one fixture (%s)", ErrInvalidConfig, 3*c.ReconcilePhaseTimeout)
	}
	for name, q := range c.Queues {
		if _, err := model.ParseStage(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if q.Concurrency > 50 || q.Attempts > 20 {
			return fmt.Errorf("%w: queue %s tuning out of range", ErrInvalidConfig, name)
		}
	}
	return nil
}
