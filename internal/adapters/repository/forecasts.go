package repository

import (
	"context"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm/clause"
)

// UpsertForecast stores one forecast per (fixture, forecaster). A second
// write for the same pair updates the pending row; scored rows are frozen.
func (s *Store) UpsertForecast(ctx context.Context, f *model.Forecast) error {
	f.PredictedOutcome = model.OutcomeOf(f.PredictedHome, f.PredictedAway)
	f.Status = model.ForecastPending
	f.TendencyPoints, f.GoalDiffBonus, f.ExactBonus, f.TotalPoints, f.ScoredAt = nil, nil, nil, nil, nil
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fixture_id"}, {Name: "forecaster_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"predicted_home", "predicted_away", "predicted_outcome", "attempt", "raw_output", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "forecasts", Name: "status"}, Value: string(model.ForecastPending)},
		}},
	}).Create(f).Error
	return wrap("repository.upsert_forecast", err)
}

// ListForecasts returns every forecast of a fixture.
func (s *Store) ListForecasts(ctx context.Context, fixtureID uint64) ([]model.Forecast, error) {
	var out []model.Forecast
	err := s.db.WithContext(ctx).Where("fixture_id = ?", fixtureID).Order("forecaster_id").Find(&out).Error
	return out, wrap("repository.list_forecasts", err)
}

// CountForecasts returns the forecast population of a fixture.
func (s *Store) CountForecasts(ctx context.Context, fixtureID uint64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Forecast{}).Where("fixture_id = ?", fixtureID).Count(&n).Error
	return int(n), wrap("repository.count_forecasts", err)
}

// MissingForecasters lists active forecasters without a forecast for the fixture.
func (s *Store) MissingForecasters(ctx context.Context, fixtureID uint64) ([]model.Forecaster, error) {
	var out []model.Forecaster
	done := s.db.Model(&model.Forecast{}).Select("forecaster_id").Where("fixture_id = ?", fixtureID)
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND auto_disabled = ?", true, false).
		Where("id NOT IN (?)", done).
		Order("id").
		Find(&out).Error
	return out, wrap("repository.missing_forecasters", err)
}
