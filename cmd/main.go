package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/matchday/internal/adapters/http/api"
	"github.com/okian/matchday/internal/adapters/repository"
	service "github.com/okian/matchday/internal/app"
	"github.com/okian/matchday/internal/config"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
	"github.com/okian/matchday/pkg/tracker"

	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	flushTimeout      = 2 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Use stderr since the logger may not be configured yet
		os.Stderr.WriteString("matchday: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Named("main")

	trk, err := tracker.New(cfg.SentryDSN, cfg.Environment, version)
	if err != nil {
		return err
	}
	defer trk.Flush(flushTimeout)

	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN,
		repository.WithPool(cfg.DatabaseMaxOpenConns, cfg.DatabaseMaxIdleConns, cfg.DatabaseConnLifetime))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	svc, err := service.New(cfg, store, service.WithTracker(trk))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	// A failed deploy task is released and retried on the next start.
	if _, err := svc.RunDeployTasks(ctx); err != nil {
		log.Error(ctx, "deploy tasks failed", logger.Error(err))
		trk.Capture(ctx, err, map[string]string{"component": "deploy"})
	}

	srv := newHTTPServer(cfg, svc)
	log.Info(ctx, "starting", logger.String("addr", cfg.Addr), logger.String("version", version),
		logger.String("broker", cfg.BrokerBackend), logger.String("database", cfg.DatabaseDriver))

	err = svc.Supervisor(service.NewHTTPServer(srv, cfg.ShutdownTimeout)).Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info(context.Background(), "stopped")
	return nil
}

// newHTTPServer builds the admin API server for svc.
func newHTTPServer(cfg *config.Config, deps api.Dependencies) *http.Server {
	router := api.NewServer(deps, api.Options{
		AdminToken:          cfg.AdminToken,
		MaxLeaderboardLimit: cfg.MaxLeaderboardLimit,
	})
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
