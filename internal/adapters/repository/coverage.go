package repository

import (
	"context"
	"time"

	"github.com/okian/matchday/internal/domain/model"
)

// FixtureCoverage is a fixture together with how much pipeline output it has.
type FixtureCoverage struct {
	Fixture     model.Fixture
	Forecasts   int
	HasAnalysis bool
}

// ListFixtures returns fixtures kicking off in [from, to), cancelled and
// postponed ones excluded unless includeVoid is set.
func (s *Store) ListFixtures(ctx context.Context, from, to time.Time, includeVoid bool, limit int) ([]model.Fixture, error) {
	const op = "repository.list_fixtures"
	if limit < 1 {
		return nil, wrap(op, ErrInvalidLimit)
	}
	q := s.db.WithContext(ctx).
		Where("kickoff_at >= ? AND kickoff_at < ?", from.UTC(), to.UTC()).
		Order("kickoff_at, id").
		Limit(limit)
	if !includeVoid {
		q = q.Where("status NOT IN ?", []model.FixtureStatus{model.StatusCancelled, model.StatusPostponed})
	}
	var out []model.Fixture
	err := q.Find(&out).Error
	return out, wrap(op, err)
}

// ForecastCounts returns the forecast population per fixture. Fixtures with
// no forecasts are absent from the map.
func (s *Store) ForecastCounts(ctx context.Context, fixtureIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(fixtureIDs))
	if len(fixtureIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		FixtureID uint64
		N         int
	}
	err := s.db.WithContext(ctx).Model(&model.Forecast{}).
		Select("fixture_id, COUNT(*) AS n").
		Where("fixture_id IN ?", fixtureIDs).
		Group("fixture_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("repository.forecast_counts", err)
	}
	for _, r := range rows {
		out[r.FixtureID] = r.N
	}
	return out, nil
}

// Coverage returns every non-void fixture in [from, to) with its forecast
// count and analysis presence.
func (s *Store) Coverage(ctx context.Context, from, to time.Time, limit int) ([]FixtureCoverage, error) {
	fixtures, err := s.ListFixtures(ctx, from, to, false, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(fixtures))
	for i, f := range fixtures {
		ids[i] = f.ID
	}
	counts, err := s.ForecastCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	present, err := s.AnalysisPresence(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]FixtureCoverage, len(fixtures))
	for i, f := range fixtures {
		out[i] = FixtureCoverage{Fixture: f, Forecasts: counts[f.ID], HasAnalysis: present[f.ID]}
	}
	return out, nil
}

// IncompleteFixtures returns non-void fixtures in [from, to) holding fewer
// than expected forecasts, oldest kickoff first.
func (s *Store) IncompleteFixtures(ctx context.Context, from, to time.Time, expected, limit int) ([]FixtureCoverage, error) {
	all, err := s.Coverage(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Forecasts < expected {
			out = append(out, c)
		}
	}
	return out, nil
}

// UnsettledFixtures returns finished fixtures in [from, to) that still hold
// pending forecasts.
func (s *Store) UnsettledFixtures(ctx context.Context, from, to time.Time) ([]model.Fixture, error) {
	pending := s.db.Model(&model.Forecast{}).Select("fixture_id").Where("status = ?", model.ForecastPending)
	var out []model.Fixture
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusFinished).
		Where("kickoff_at >= ? AND kickoff_at < ?", from.UTC(), to.UTC()).
		Where("id IN (?)", pending).
		Order("kickoff_at, id").
		Find(&out).Error
	return out, wrap("repository.unsettled_fixtures", err)
}
