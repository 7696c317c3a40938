package repository

import (
	"context"

	"github.com/okian/matchday/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetAnalysis returns the snapshot of a fixture or a not-found failure.
func (s *Store) GetAnalysis(ctx context.Context, fixtureID uint64) (*model.AnalysisSnapshot, error) {
	var a model.AnalysisSnapshot
	err := s.db.WithContext(ctx).Where("fixture_id = ?", fixtureID).Take(&a).Error
	if err != nil {
		return nil, wrap("repository.get_analysis", err)
	}
	return &a, nil
}

// UpsertAnalysis creates or overwrites the analysis part of a snapshot.
// Lineup columns are left alone.
func (s *Store) UpsertAnalysis(ctx context.Context, a *model.AnalysisSnapshot) error {
	now := s.now()
	a.UpdatedAt = now
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fixture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"home_odds", "draw_odds", "away_odds",
			"home_form", "away_form",
			"home_injuries", "away_injuries",
			"favorite", "data_fetched_at", "odds_updated_at", "updated_at",
		}),
	}).Create(a).Error
	return wrap("repository.upsert_analysis", err)
}

// UpdateOdds refreshes the odds columns, creating a placeholder snapshot if
// the analysis stage has not written one yet. The placeholder carries no
// data_fetched_at, so it does not count as analysed.
func (s *Store) UpdateOdds(ctx context.Context, fixtureID uint64, home, draw, away decimal.NullDecimal) error {
	now := s.now()
	row := model.AnalysisSnapshot{
		FixtureID:     fixtureID,
		HomeOdds:      home,
		DrawOdds:      draw,
		AwayOdds:      away,
		OddsUpdatedAt: &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fixture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"home_odds", "draw_odds", "away_odds", "odds_updated_at", "updated_at"}),
	}).Create(&row).Error
	return wrap("repository.update_odds", err)
}

// UpdateLineups stores lineups and injury counts.
func (s *Store) UpdateLineups(ctx context.Context, fixtureID uint64, lineups datatypes.JSON, homeInjuries, awayInjuries int) error {
	now := s.now()
	row := model.AnalysisSnapshot{
		FixtureID:        fixtureID,
		Lineups:          lineups,
		HomeInjuries:     homeInjuries,
		AwayInjuries:     awayInjuries,
		LineupsUpdatedAt: &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fixture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"lineups", "home_injuries", "away_injuries", "lineups_updated_at", "updated_at"}),
	}).Create(&row).Error
	return wrap("repository.update_lineups", err)
}

// BackfillDataFetched stamps data_fetched_at on legacy rows whose only
// evidence of upstream data is the favorite indicator.
func (s *Store) BackfillDataFetched(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.AnalysisSnapshot{}).
		Where("data_fetched_at IS NULL AND favorite IS NOT NULL").
		Update("data_fetched_at", gorm.Expr("updated_at"))
	return res.RowsAffected, wrap("repository.backfill_data_fetched", res.Error)
}

// AnalysisPresence reports, per fixture id, whether a snapshot exists and
// whether it holds upstream data.
func (s *Store) AnalysisPresence(ctx context.Context, fixtureIDs []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, len(fixtureIDs))
	if len(fixtureIDs) == 0 {
		return out, nil
	}
	var rows []model.AnalysisSnapshot
	err := s.db.WithContext(ctx).
		Select("fixture_id", "favorite", "data_fetched_at").
		Where("fixture_id IN ?", fixtureIDs).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("repository.analysis_presence", err)
	}
	for i := range rows {
		out[rows[i].FixtureID] = rows[i].HasData()
	}
	return out, nil
}
