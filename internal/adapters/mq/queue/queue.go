// Package queue defines the per-stage work queues.
//
// Every stage owns one queue. Job ids are deterministic, so the broker's
// identity check is what makes scheduling idempotent: an id that exists in
// any state, including a retained completed one, is rejected.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/okian/matchday/internal/domain/types"
)

// Default broker configuration constants.
const (
	defaultQueueCapacity = 50000
	defaultRetention     = 48 * time.Hour
)

// State is the lifecycle state of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Pending reports whether the job has not started yet.
func (s State) Pending() bool { return s == StateWaiting || s == StateDelayed }

// Terminal reports whether the job will not run again.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Job is one unit of stage work. Lease identifies the current delivery;
// only its holder can settle the job.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	State       State           `json:"state"`
	RunAt       time.Time       `json:"runAt"`
	LeaseUntil  time.Time       `json:"leaseUntil,omitzero"`
	Lease       string          `json:"lease,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	FinishedAt  time.Time       `json:"finishedAt,omitzero"`
}

// Exhausted reports whether the retry budget is spent.
func (j Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// stalledMessage is recorded on a job whose last allowed delivery lost its
// lease.
const stalledMessage = "lease expired on the final attempt"

func newLease() string { return uuid.NewString() }

// Broker stores and hands out jobs.
type Broker interface {
	// Enqueue adds a job. An id already known to the queue yields ErrDuplicateJob.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue leases the next due job, or returns nil when none is due or the
	// queue is paused. Active jobs whose lease expired are re-delivered with
	// a new lease, unless that delivery was their last attempt, in which case
	// they fail.
	Dequeue(ctx context.Context, queue string, lease time.Duration) (*Job, error)
	// Complete marks a delivered job done. A job re-leased since it was
	// delivered yields ErrLeaseLost; so do Retry, Snooze and Fail.
	Complete(ctx context.Context, job Job) error
	// Retry puts a delivered job back after delay, recording cause.
	Retry(ctx context.Context, job Job, delay time.Duration, cause error) error
	// Snooze re-delays a delivered job without consuming an attempt.
	Snooze(ctx context.Context, job Job, delay time.Duration) error
	// Fail marks a delivered job as terminally failed.
	Fail(ctx context.Context, job Job, cause error) error
	// Remove deletes a waiting or delayed job.
	Remove(ctx context.Context, queue, id string) error
	// Clear deletes a completed or failed job so its id can be reused.
	Clear(ctx context.Context, queue, id string) error
	// Get returns one job.
	Get(ctx context.Context, queue, id string) (Job, error)
	// Counts returns per-state job counts.
	Counts(ctx context.Context, queue string) (types.QueueCounts, error)
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	Paused(ctx context.Context, queue string) (bool, error)
	Close() error
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
