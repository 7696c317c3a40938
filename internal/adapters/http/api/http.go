// Package api exposes the health, metrics, leaderboard and admin routes.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	HealthChecker
	StatsProvider
	LeaderboardDependencies

	QueueCounts(ctx context.Context) ([]types.QueueCounts, error)
	DeadLetters(ctx context.Context, queue string) ([]model.DeadLetter, error)
	DeleteDeadLetter(ctx context.Context, queue, jobID string) error
	PurgeDeadLetters(ctx context.Context) (int64, error)
	ReplayDeadLetter(ctx context.Context, queue, jobID string) error
	Coverage(ctx context.Context) ([]types.CoverageGap, error)
	Breakers(ctx context.Context) (types.Breakers, error)
	ResumeQueue(ctx context.Context, queue string) error
	ResetQueueBreaker(ctx context.Context, queue string) error
	ResetServiceBreaker(ctx context.Context, name string) error
	RequestBackfill(ctx context.Context, days int, reason string) (string, error)
}

// Options tune the router.
type Options struct {
	// AdminToken guards /admin when non-empty.
	AdminToken string
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int
	Logger              logger.Logger
}

// Server wires HTTP routes for the admin API.
type Server struct {
	opts               Options
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Named("api")
	}
	return &Server{
		opts:               opts,
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, opts.MaxLeaderboardLimit),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.opts.Logger))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())
	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(s.opts.AdminToken))
		s.adminHandler.Register(r)
	})
	return r
}
