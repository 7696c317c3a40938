package repository

import (
	"context"
	"time"

	"github.com/okian/matchday/internal/domain/model"
	"gorm.io/gorm/clause"
)

// ClaimDeployTask records that id is starting. It returns false when the task
// already completed or another process is running it. A running claim older
// than staleAfter is taken over.
func (s *Store) ClaimDeployTask(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	const op = "repository.claim_deploy_task"
	now := s.now()
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.DeployTask{ID: id, Status: model.DeployTaskRunning, StartedAt: now})
	if res.Error != nil {
		return false, wrap(op, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if staleAfter <= 0 {
		return false, nil
	}
	res = s.db.WithContext(ctx).Model(&model.DeployTask{}).
		Where("id = ? AND status = ? AND started_at < ?", id, model.DeployTaskRunning, now.Add(-staleAfter)).
		Update("started_at", now)
	if res.Error != nil {
		return false, wrap(op, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteDeployTask marks a claimed task as done.
func (s *Store) CompleteDeployTask(ctx context.Context, id, result string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&model.DeployTask{}).Where("id = ?", id).Updates(map[string]any{
		"status":       model.DeployTaskCompleted,
		"result":       result,
		"completed_at": now,
	}).Error
	return wrap("repository.complete_deploy_task", err)
}

// ReleaseDeployTask drops a running claim so the task runs again next deploy.
func (s *Store) ReleaseDeployTask(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.DeployTaskRunning).
		Delete(&model.DeployTask{}).Error
	return wrap("repository.release_deploy_task", err)
}

// ListDeployTasks returns every task record.
func (s *Store) ListDeployTasks(ctx context.Context) ([]model.DeployTask, error) {
	var out []model.DeployTask
	err := s.db.WithContext(ctx).Order("started_at").Find(&out).Error
	return out, wrap("repository.list_deploy_tasks", err)
}
