package repository

import (
	"context"
	"time"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm/clause"
)

// BreakerCounters mirrors the breaker's serialized counters into queryable columns.
type BreakerCounters struct {
	State               string
	ConsecutiveFailures uint32
	TotalFailures       uint32
	TotalSuccesses      uint32
}

func (s *Store) ensureBreaker(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.BreakerState{Name: name, State: "closed"}).Error
}

// AcquireBreakerLock takes the lease on a breaker row for owner. It returns
// ErrLocked while another owner holds an unexpired lease.
func (s *Store) AcquireBreakerLock(ctx context.Context, name, owner string, ttl time.Duration) error {
	const op = "repository.acquire_breaker_lock"
	if err := s.ensureBreaker(ctx, name); err != nil {
		return wrap(op, err)
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.BreakerState{}).
		Where("name = ?", name).
		Where("lock_owner IS NULL OR lock_owner = '' OR lock_owner = ? OR lock_expires_at IS NULL OR lock_expires_at < ?", owner, now).
		Updates(map[string]any{"lock_owner": owner, "lock_expires_at": now.Add(ttl)})
	if res.Error != nil {
		return wrap(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLocked
	}
	return nil
}

// ReleaseBreakerLock drops the lease if owner still holds it.
func (s *Store) ReleaseBreakerLock(ctx context.Context, name, owner string) error {
	err := s.db.WithContext(ctx).Model(&model.BreakerState{}).
		Where("name = ? AND lock_owner = ?", name, owner).
		Updates(map[string]any{"lock_owner": "", "lock_expires_at": nil}).Error
	return wrap("repository.release_breaker_lock", err)
}

// BreakerData returns the serialized breaker state, or nil when none was saved.
func (s *Store) BreakerData(ctx context.Context, name string) ([]byte, error) {
	var row model.BreakerState
	err := s.db.WithContext(ctx).Select("name", "data").Where("name = ?", name).Limit(1).Find(&row).Error
	if err != nil {
		return nil, wrap("repository.breaker_data", err)
	}
	return row.Data, nil
}

// SaveBreakerData stores the serialized state and its mirrored counters.
// lastFailure is stamped when the failure total grew.
func (s *Store) SaveBreakerData(ctx context.Context, name string, data []byte, c BreakerCounters) error {
	const op = "repository.save_breaker_data"
	if err := s.ensureBreaker(ctx, name); err != nil {
		return wrap(op, err)
	}
	var prev model.BreakerState
	if err := s.db.WithContext(ctx).Where("name = ?", name).Take(&prev).Error; err != nil {
		return wrap(op, err)
	}
	updates := map[string]any{
		"data":                 data,
		"state":                c.State,
		"consecutive_failures": c.ConsecutiveFailures,
		"total_failures":       c.TotalFailures,
		"total_successes":      c.TotalSuccesses,
	}
	if c.ConsecutiveFailures > prev.ConsecutiveFailures || c.TotalFailures > prev.TotalFailures {
		updates["last_failure_at"] = s.now()
	}
	err := s.db.WithContext(ctx).Model(&model.BreakerState{}).Where("name = ?", name).Updates(updates).Error
	return wrap(op, err)
}

// ListBreakers returns every persisted breaker.
func (s *Store) ListBreakers(ctx context.Context) ([]model.BreakerState, error) {
	var out []model.BreakerState
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, wrap("repository.list_breakers", err)
}
