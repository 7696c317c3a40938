package repository

import (
	"context"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettleFunc computes points for the pending forecasts of a finished fixture.
// It receives every forecast of the fixture (the rarity population) and the
// current streaks of the forecasters that still have a pending forecast, and
// returns the scored forecasts and the advanced streaks.
type SettleFunc = func(fixture model.Fixture, forecasts []model.Forecast, streaks map[string]model.Streak) ([]model.Forecast, map[string]model.Streak, error)

// SettleFixture runs fn inside one transaction with the fixture's forecasts
// locked, then persists the points and streaks. It returns the number of
// forecasts scored; zero means there was nothing to do. Errors returned by fn
// are passed through unchanged.
func (s *Store) SettleFixture(ctx context.Context, fixtureID uint64, fn SettleFunc) (int, error) {
	const op = "repository.settle_fixture"
	var (
		scoredCount int
		fnErr       error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fixture model.Fixture
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&fixture, fixtureID).Error; err != nil {
			return err
		}

		var forecasts []model.Forecast
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("fixture_id = ?", fixtureID).
			Order("id").
			Find(&forecasts).Error
		if err != nil {
			return err
		}

		pendingIDs := make([]string, 0, len(forecasts))
		for _, f := range forecasts {
			if f.Status == model.ForecastPending {
				pendingIDs = append(pendingIDs, f.ForecasterID)
			}
		}
		if len(pendingIDs) == 0 {
			return nil
		}

		var forecasters []model.Forecaster
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", pendingIDs).
			Order("id").
			Find(&forecasters).Error
		if err != nil {
			return err
		}
		streaks := make(map[string]model.Streak, len(forecasters))
		for _, f := range forecasters {
			streaks[f.ID] = f.Streak
		}

		scored, next, err := fn(fixture, forecasts, streaks)
		if err != nil {
			fnErr = err
			return err
		}

		for i := range scored {
			f := &scored[i]
			res := tx.Model(&model.Forecast{}).
				Where("id = ? AND status = ?", f.ID, model.ForecastPending).
				Updates(map[string]any{
					"status":          model.ForecastScored,
					"tendency_points": f.TendencyPoints,
					"goal_diff_bonus": f.GoalDiffBonus,
					"exact_bonus":     f.ExactBonus,
					"total_points":    f.TotalPoints,
					"scored_at":       f.ScoredAt,
				})
			if res.Error != nil {
				return res.Error
			}
			scoredCount += int(res.RowsAffected)
		}

		for id, st := range next {
			err := tx.Model(&model.Forecaster{}).Where("id = ?", id).Updates(map[string]any{
				"streak_current":       st.Current,
				"streak_type":          st.Type,
				"streak_best":          st.Best,
				"streak_worst":         st.Worst,
				"streak_exact_run":     st.ExactRun,
				"streak_best_exact":    st.BestExact,
				"streak_tendency_run":  st.TendencyRun,
				"streak_best_tendency": st.BestTendency,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if fnErr != nil {
		return 0, fnErr
	}
	if err != nil {
		return 0, wrap(op, err)
	}
	return scoredCount, nil
}
