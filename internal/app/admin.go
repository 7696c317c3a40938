package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/matchday/internal/deploy"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/metrics"
)

// Health pings the database and the broker.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	_, err := s.broker.Paused(ctx, model.StageIngest.Queue())
	return err
}

// QueueCounts reports per-state counts for every stage queue and refreshes
// the depth gauges.
func (s *Service) QueueCounts(ctx context.Context) ([]types.QueueCounts, error) {
	names := queueNames()
	out := make([]types.QueueCounts, 0, len(names))
	for _, name := range names {
		c, err := s.broker.Counts(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("counts %s: %w", name, err)
		}
		c.Queue = name
		metrics.UpdateQueueDepth(name, "waiting", c.Waiting)
		metrics.UpdateQueueDepth(name, "active", c.Active)
		metrics.UpdateQueueDepth(name, "delayed", c.Delayed)
		metrics.UpdateQueueDepth(name, "failed", c.Failed)
		metrics.UpdateQueuePaused(name, c.Paused)
		out = append(out, c)
	}
	return out, nil
}

// DeadLetters lists parked jobs, optionally for one queue.
func (s *Service) DeadLetters(ctx context.Context, queueName string) ([]model.DeadLetter, error) {
	if queueName != "" {
		if _, err := model.ParseStage(queueName); err != nil {
			return nil, err
		}
	}
	return s.ledger.List(ctx, queueName)
}

// DeleteDeadLetter drops one entry.
func (s *Service) DeleteDeadLetter(ctx context.Context, queueName, jobID string) error {
	return s.ledger.Delete(ctx, queueName, jobID)
}

// PurgeDeadLetters drops every entry.
func (s *Service) PurgeDeadLetters(ctx context.Context) (int64, error) {
	return s.ledger.Purge(ctx)
}

// ReplayDeadLetter re-enqueues an entry with a fresh attempt budget.
func (s *Service) ReplayDeadLetter(ctx context.Context, queueName, jobID string) error {
	return s.ledger.Replay(ctx, queueName, jobID)
}

// Coverage lists upcoming fixtures missing pipeline output.
func (s *Service) Coverage(ctx context.Context) ([]types.CoverageGap, error) {
	return s.reconciler.Coverage(ctx)
}

// Breakers reports every service and queue breaker.
func (s *Service) Breakers(ctx context.Context) (types.Breakers, error) {
	svcs, err := s.services.Status(ctx)
	if err != nil {
		return types.Breakers{}, err
	}
	qs, err := s.queues.Status(ctx, queueNames())
	if err != nil {
		return types.Breakers{}, err
	}
	return types.Breakers{Services: svcs, Queues: qs}, nil
}

// ResumeQueue resumes a queue paused by its breaker.
func (s *Service) ResumeQueue(ctx context.Context, queueName string) error {
	if _, err := model.ParseStage(queueName); err != nil {
		return err
	}
	return s.queues.Resume(ctx, queueName)
}

// ResetQueueBreaker clears a queue breaker and resumes the queue.
func (s *Service) ResetQueueBreaker(ctx context.Context, queueName string) error {
	if _, err := model.ParseStage(queueName); err != nil {
		return err
	}
	return s.queues.Reset(ctx, queueName)
}

// ResetServiceBreaker closes a service breaker.
func (s *Service) ResetServiceBreaker(ctx context.Context, name string) error {
	return s.services.Reset(ctx, name)
}

// Standings returns the forecaster leaderboard.
func (s *Service) Standings(ctx context.Context, limit int) ([]model.Standing, error) {
	return s.store.Standings(ctx, limit)
}

// Stats returns process statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"uptime":        s.now().Sub(s.started).Round(time.Second).String(),
		"brokerBackend": s.cfg.BrokerBackend,
		"queues":        len(s.consumers),
	}
	if counts, err := s.QueueCounts(ctx); err == nil {
		stats["queueCounts"] = counts
	}
	if n, err := s.store.CountDeadLetters(ctx); err == nil {
		stats["deadLetters"] = n
	}
	if n, err := s.store.ActiveForecasterCount(ctx); err == nil {
		stats["activeForecasters"] = n
	}
	return stats
}

// RunDeployTasks runs the built-in post-deploy tasks once.
func (s *Service) RunDeployTasks(ctx context.Context) ([]deploy.Outcome, error) {
	r := deploy.NewRunner(s.store)
	for _, t := range []deploy.Task{
		deploy.BackfillDataFetched(s.store),
		deploy.DeepBackfill(s.producer),
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r.Run(ctx)
}
