package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FixtureChange describes what an ingest upsert changed.
type FixtureChange struct {
	Created        bool
	KickoffChanged bool
	StatusChanged  bool
	Previous       model.Fixture
}

// CreateFixture inserts a new fixture.
func (s *Store) CreateFixture(ctx context.Context, f *model.Fixture) error {
	const op = "repository.create_fixture"
	f.KickoffAt = f.KickoffAt.UTC()
	if f.Status == "" {
		f.Status = model.StatusScheduled
	}
	if err := f.Validate(); err != nil {
		return wrap(op, errors.Join(ErrInvalidTransition, err))
	}
	return wrap(op, s.db.WithContext(ctx).Create(f).Error)
}

// UpsertFixture inserts or refreshes a fixture keyed by its external id.
// Scores and terminal states owned by the live monitor are never regressed.
func (s *Store) UpsertFixture(ctx context.Context, in model.Fixture) (model.Fixture, FixtureChange, error) {
	const op = "repository.upsert_fixture"
	var (
		out    model.Fixture
		change FixtureChange
	)
	if in.External() == "" {
		return out, change, wrap(op, model.ErrMissingExternal)
	}
	in.KickoffAt = in.KickoffAt.UTC()
	if in.Status == "" {
		in.Status = model.StatusScheduled
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Fixture
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_id = ?", in.External()).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			in.ID = 0
			in.HomeScore, in.AwayScore = nil, nil
			if in.Status == model.StatusFinished || in.Status == model.StatusLive {
				in.Status = model.StatusScheduled
			}
			if err := tx.Create(&in).Error; err != nil {
				return err
			}
			out, change.Created = in, true
			return nil
		}
		if err != nil {
			return err
		}

		change.Previous = existing
		updates := map[string]any{
			"home_team":   in.HomeTeam,
			"away_team":   in.AwayTeam,
			"competition": in.Competition,
		}
		movable := existing.Status == model.StatusScheduled || existing.Status == model.StatusPostponed
		if movable && !existing.KickoffAt.Equal(in.KickoffAt) {
			updates["kickoff_at"] = in.KickoffAt
			change.KickoffChanged = true
		}
		if in.Status.Void() || (existing.Status == model.StatusPostponed && in.Status == model.StatusScheduled) {
			if existing.Status != in.Status && existing.Status.Transition(in.Status) {
				updates["status"] = in.Status
				change.StatusChanged = true
			}
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Take(&out, existing.ID).Error
	})
	return out, change, wrap(op, err)
}

// GetFixture loads one fixture.
func (s *Store) GetFixture(ctx context.Context, id uint64) (model.Fixture, error) {
	var f model.Fixture
	err := s.db.WithContext(ctx).Take(&f, id).Error
	return f, wrap("repository.get_fixture", err)
}

// FixturesKickingOff lists schedulable fixtures with kickoff in [from, to).
func (s *Store) FixturesKickingOff(ctx context.Context, from, to time.Time) ([]model.Fixture, error) {
	var out []model.Fixture
	err := s.db.WithContext(ctx).
		Where("kickoff_at >= ? AND kickoff_at < ?", from.UTC(), to.UTC()).
		Where("status = ?", model.StatusScheduled).
		Where("external_id IS NOT NULL").
		Order("kickoff_at, id").
		Find(&out).Error
	return out, wrap("repository.fixtures_kicking_off", err)
}

// TransitionFixture moves a fixture to status, setting the final scores when
// it finishes. changed is false when the fixture already had that status.
func (s *Store) TransitionFixture(ctx context.Context, id uint64, status model.FixtureStatus, home, away *int) (model.Fixture, bool, error) {
	const op = "repository.transition_fixture"
	var (
		out     model.Fixture
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&out, id).Error; err != nil {
			return err
		}
		if !out.Status.Transition(status) {
			return ErrInvalidTransition
		}
		next := out
		next.Status = status
		if status == model.StatusFinished {
			next.HomeScore, next.AwayScore = home, away
		} else {
			next.HomeScore, next.AwayScore = nil, nil
		}
		if err := next.Validate(); err != nil {
			return errors.Join(ErrInvalidTransition, err)
		}
		if out.Status == next.Status && sameScore(out.HomeScore, next.HomeScore) && sameScore(out.AwayScore, next.AwayScore) {
			return nil
		}
		if err := tx.Model(&out).Select("status", "home_score", "away_score").Updates(&next).Error; err != nil {
			return err
		}
		changed = true
		out = next
		return nil
	})
	return out, changed, wrap(op, err)
}

func sameScore(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
