// Package deadletter keeps jobs that will not be retried so operators can
// inspect, delete or replay them.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
)

const defaultListLimit = 500

// ErrReplayConflict is returned when the job id is still live in its queue.
var ErrReplayConflict = errors.New("job id is still queued")

// Store persists ledger entries.
type Store interface {
	SaveDeadLetter(ctx context.Context, d *model.DeadLetter) error
	ListDeadLetters(ctx context.Context, queue string, limit int) ([]model.DeadLetter, error)
	GetDeadLetter(ctx context.Context, queue, jobID string) (model.DeadLetter, error)
	DeleteDeadLetter(ctx context.Context, queue, jobID string) error
	PurgeDeadLetters(ctx context.Context) (int64, error)
}

// Ledger records dead jobs and replays them through the producer.
type Ledger struct {
	store    Store
	producer *queue.Producer
	logger   logger.Logger
}

// New creates a ledger.
func New(store Store, producer *queue.Producer) *Ledger {
	return &Ledger{store: store, producer: producer, logger: logger.Named("deadletter")}
}

// Record parks a job. A second record for the same queue and id replaces
// the first.
func (l *Ledger) Record(ctx context.Context, job queue.Job, cause error, permanent bool) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return l.store.SaveDeadLetter(ctx, &model.DeadLetter{
		Queue:     job.Queue,
		JobID:     job.ID,
		Payload:   []byte(job.Payload),
		Reason:    reason,
		Attempts:  job.Attempts,
		Permanent: permanent,
	})
}

// List returns entries newest first; an empty queue lists all queues.
func (l *Ledger) List(ctx context.Context, queue string) ([]model.DeadLetter, error) {
	return l.store.ListDeadLetters(ctx, queue, defaultListLimit)
}

// Delete removes one entry.
func (l *Ledger) Delete(ctx context.Context, queue, jobID string) error {
	return l.store.DeleteDeadLetter(ctx, queue, jobID)
}

// Purge removes every entry.
func (l *Ledger) Purge(ctx context.Context) (int64, error) {
	n, err := l.store.PurgeDeadLetters(ctx)
	if err == nil {
		l.logger.Info(ctx, "dead letters purged", logger.Int64("count", n))
	}
	return n, err
}

// Replay clears the failed job, enqueues the original payload with a fresh
// attempt budget and drops the entry.
func (l *Ledger) Replay(ctx context.Context, queueName, jobID string) error {
	entry, err := l.store.GetDeadLetter(ctx, queueName, jobID)
	if err != nil {
		return err
	}
	broker := l.producer.Broker()
	if err := broker.Clear(ctx, queueName, jobID); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
		if errors.Is(err, queue.ErrNotTerminal) {
			return fmt.Errorf("%w: %s/%s", ErrReplayConflict, queueName, jobID)
		}
		return err
	}
	added, err := l.producer.Add(ctx, queueName, jobID, json.RawMessage(entry.Payload), 0)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: %s/%s", ErrReplayConflict, queueName, jobID)
	}
	if err := l.store.DeleteDeadLetter(ctx, queueName, jobID); err != nil {
		return err
	}
	l.logger.Info(ctx, "dead letter replayed", logger.String("queue", queueName), logger.String("job_id", jobID))
	return nil
}
