package repository

import (
	"context"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm/clause"
)

// SaveDeadLetter records a failed job, replacing an older entry for the same
// (queue, job id).
func (s *Store) SaveDeadLetter(ctx context.Context, d *model.DeadLetter) error {
	if d.FailedAt.IsZero() {
		d.FailedAt = s.now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "queue"}, {Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "reason", "attempts", "permanent", "failed_at"}),
	}).Create(d).Error
	return wrap("repository.save_dead_letter", err)
}

// ListDeadLetters returns entries newest first, optionally for one queue.
func (s *Store) ListDeadLetters(ctx context.Context, queue string, limit int) ([]model.DeadLetter, error) {
	const op = "repository.list_dead_letters"
	if limit < 1 {
		return nil, wrap(op, ErrInvalidLimit)
	}
	var out []model.DeadLetter
	q := s.db.WithContext(ctx).Order("failed_at DESC, id DESC").Limit(limit)
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	err := q.Find(&out).Error
	return out, wrap(op, err)
}

// GetDeadLetter loads one entry.
func (s *Store) GetDeadLetter(ctx context.Context, queue, jobID string) (model.DeadLetter, error) {
	var d model.DeadLetter
	err := s.db.WithContext(ctx).Where("queue = ? AND job_id = ?", queue, jobID).Take(&d).Error
	return d, wrap("repository.get_dead_letter", err)
}

// DeleteDeadLetter removes one entry. A missing entry is a not-found failure.
func (s *Store) DeleteDeadLetter(ctx context.Context, queue, jobID string) error {
	res := s.db.WithContext(ctx).Where("queue = ? AND job_id = ?", queue, jobID).Delete(&model.DeadLetter{})
	if res.Error == nil && res.RowsAffected == 0 {
		return wrap("repository.delete_dead_letter", ErrNotFound)
	}
	return wrap("repository.delete_dead_letter", res.Error)
}

// PurgeDeadLetters removes every entry and returns how many were removed.
func (s *Store) PurgeDeadLetters(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&model.DeadLetter{})
	return res.RowsAffected, wrap("repository.purge_dead_letters", res.Error)
}

// CountDeadLetters returns the ledger size.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.DeadLetter{}).Count(&n).Error
	return n, wrap("repository.count_dead_letters", err)
}
