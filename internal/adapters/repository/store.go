// Package repository is the relational store of the pipeline: fixtures,
// analysis snapshots, forecasts, forecasters, breaker state, dead letters and
// deploy task records.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store implements persistence on top of gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	maxOpen      int
	maxIdle      int
	connLifetime time.Duration
	sqlLogging   bool
}

// Open connects to the database named by driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	s := newStore(opts...)
	level := gormlogger.Silent
	if s.sqlLogging {
		level = gormlogger.Warn
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: s.now,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if s.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(s.maxOpen)
	}
	if s.maxIdle > 0 {
		sqlDB.SetMaxIdleConns(s.maxIdle)
	}
	if s.connLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.connLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s.db = db
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) *Store {
	s := newStore(opts...)
	s.db = db
	return s
}

func newStore(opts ...Option) *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&model.Fixture{},
		&model.AnalysisSnapshot{},
		&model.Forecaster{},
		&model.Forecast{},
		&model.BreakerState{},
		&model.DeadLetter{},
		&model.DeployTask{},
	}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// DB exposes the gorm handle for maintenance tasks.
func (s *Store) DB() *gorm.DB { return s.db }

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
