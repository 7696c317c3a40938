package repository

import (
	"context"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveForecaster registers a forecaster or updates its descriptive fields.
// Health counters and streaks are left untouched on conflict.
func (s *Store) SaveForecaster(ctx context.Context, f *model.Forecaster) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "provider", "model", "enabled", "updated_at"}),
	}).Create(f).Error
	return wrap("repository.save_forecaster", err)
}

// GetForecaster loads one forecaster.
func (s *Store) GetForecaster(ctx context.Context, id string) (model.Forecaster, error) {
	var f model.Forecaster
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error
	return f, wrap("repository.get_forecaster", err)
}

// ListForecasters returns forecasters ordered by id.
func (s *Store) ListForecasters(ctx context.Context, activeOnly bool) ([]model.Forecaster, error) {
	var out []model.Forecaster
	q := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		q = q.Where("enabled = ? AND auto_disabled = ?", true, false)
	}
	err := q.Find(&out).Error
	return out, wrap("repository.list_forecasters", err)
}

// ActiveForecasterCount is the expected forecast population of a fixture.
func (s *Store) ActiveForecasterCount(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Forecaster{}).
		Where("enabled = ? AND auto_disabled = ?", true, false).
		Count(&n).Error
	return int(n), wrap("repository.active_forecaster_count", err)
}

// RecordForecasterSuccess resets the failure counter.
func (s *Store) RecordForecasterSuccess(ctx context.Context, id string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&model.Forecaster{}).Where("id = ?", id).Updates(map[string]any{
		"consecutive_failures": 0,
		"last_success_at":      now,
		"last_error":           "",
	}).Error
	return wrap("repository.record_forecaster_success", err)
}

// RecordForecasterFailure bumps the failure counter and auto-disables the
// forecaster once it reaches disableAfter (0 never disables). It reports
// whether this call disabled it.
func (s *Store) RecordForecasterFailure(ctx context.Context, id string, cause error, disableAfter int) (bool, error) {
	const op = "repository.record_forecaster_failure"
	now := s.now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var disabled bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.Forecaster
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&f).Error; err != nil {
			return err
		}
		failures := f.ConsecutiveFailures + 1
		updates := map[string]any{
			"consecutive_failures": failures,
			"last_failure_at":      now,
			"last_error":           msg,
		}
		if disableAfter > 0 && failures >= disableAfter && !f.AutoDisabled {
			updates["auto_disabled"] = true
			disabled = true
		}
		return tx.Model(&f).Updates(updates).Error
	})
	return disabled, wrap(op, err)
}

// ReenableForecaster clears the auto-disabled flag and the failure counter.
func (s *Store) ReenableForecaster(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&model.Forecaster{}).Where("id = ?", id).Updates(map[string]any{
		"auto_disabled":        false,
		"consecutive_failures": 0,
	})
	if res.Error == nil && res.RowsAffected == 0 {
		return wrap("repository.reenable_forecaster", ErrNotFound)
	}
	return wrap("repository.reenable_forecaster", res.Error)
}

// Standings ranks forecasters by scored points.
func (s *Store) Standings(ctx context.Context, limit int) ([]model.Standing, error) {
	const op = "repository.standings"
	if limit < 1 {
		return nil, wrap(op, ErrInvalidLimit)
	}
	var rows []struct {
		ForecasterID string
		Points       int
		Scored       int
		Exact        int
	}
	err := s.db.WithContext(ctx).Model(&model.Forecast{}).
		Select("forecaster_id, COALESCE(SUM(total_points), 0) AS points, COUNT(*) AS scored, "+
			"SUM(CASE WHEN exact_bonus > 0 THEN 1 ELSE 0 END) AS exact").
		Where("status = ?", model.ForecastScored).
		Group("forecaster_id").
		Order("points DESC, forecaster_id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(op, err)
	}
	out := make([]model.Standing, len(rows))
	for i, r := range rows {
		out[i] = model.Standing{Rank: i + 1, ForecasterID: r.ForecasterID, Points: r.Points, Scored: r.Scored, Exact: r.Exact}
	}
	return out, nil
}
