package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/metrics"
)

type memQueue struct {
	jobs   map[string]*Job
	paused bool
}

// InMemoryQueue implements Broker in process memory. It backs tests and
// single-process deployments.
type InMemoryQueue struct {
	settings
	mu     sync.Mutex
	queues map[string]*memQueue
	closed bool
}

// NewInMemoryQueue creates an in-memory broker with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	return &InMemoryQueue{
		settings: newSettings(opts),
		queues:   make(map[string]*memQueue),
	}
}

func (q *InMemoryQueue) queue(name string) *memQueue {
	mq, ok := q.queues[name]
	if !ok {
		mq = &memQueue{jobs: make(map[string]*Job)}
		q.queues[name] = mq
	}
	return mq
}

// expire drops completed jobs past retention. Must be called with q.mu held.
func (q *InMemoryQueue) expire(mq *memQueue, now time.Time) {
	for id, j := range mq.jobs {
		if j.State == StateCompleted && now.Sub(j.FinishedAt) > q.retention {
			delete(mq.jobs, id)
		}
	}
}

// Enqueue adds a job.
func (q *InMemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	mq := q.queue(job.Queue)
	now := q.now()
	if existing, ok := mq.jobs[job.ID]; ok {
		if existing.State != StateCompleted || now.Sub(existing.FinishedAt) <= q.retention {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateJob, job.Queue, job.ID)
		}
		delete(mq.jobs, job.ID)
	}
	pending := 0
	for _, j := range mq.jobs {
		if j.State.Pending() {
			pending++
		}
	}
	if pending >= q.capacity {
		return ErrQueueFull
	}
	j := prepare(job, now)
	mq.jobs[j.ID] = &j
	return nil
}

func prepare(job Job, now time.Time) Job {
	job.Attempts = 0
	job.EnqueuedAt = now
	job.LeaseUntil = time.Time{}
	job.Lease = ""
	job.FinishedAt = time.Time{}
	job.LastError = ""
	if job.RunAt.IsZero() || !job.RunAt.After(now) {
		job.RunAt = now
		job.State = StateWaiting
	} else {
		job.State = StateDelayed
	}
	return job
}

// Dequeue leases the earliest due job. A stalled job whose lease ran out on
// its last attempt is failed instead of re-delivered.
func (q *InMemoryQueue) Dequeue(_ context.Context, queue string, lease time.Duration) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	mq := q.queue(queue)
	if mq.paused {
		return nil, nil
	}
	now := q.now()
	var next *Job
	for _, j := range mq.jobs {
		stalled := j.State == StateActive && j.LeaseUntil.Before(now)
		if stalled && j.Exhausted() {
			finish(j, StateFailed, now)
			j.LastError = stalledMessage
			continue
		}
		due := (j.State.Pending() && !j.RunAt.After(now)) || stalled
		if !due {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) || (j.RunAt.Equal(next.RunAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	next.State = StateActive
	next.Attempts++
	next.LeaseUntil = now.Add(lease)
	next.Lease = newLease()
	out := *next
	return &out, nil
}

// held returns the stored job if job still holds its lease.
func (q *InMemoryQueue) held(job Job) (*Job, error) {
	if q.closed {
		return nil, ErrClosed
	}
	j, ok := q.queue(job.Queue).jobs[job.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, job.Queue, job.ID)
	}
	return j, checkLease(*j, job)
}

func checkLease(stored, job Job) error {
	if stored.State != StateActive {
		if stored.Lease != job.Lease {
			return fmt.Errorf("%w: %s/%s is %s", ErrLeaseLost, job.Queue, job.ID, stored.State)
		}
		return fmt.Errorf("%w: %s/%s is %s", ErrNotActive, job.Queue, job.ID, stored.State)
	}
	if stored.Lease != job.Lease {
		return fmt.Errorf("%w: %s/%s", ErrLeaseLost, job.Queue, job.ID)
	}
	return nil
}

func finish(j *Job, state State, now time.Time) {
	j.State = state
	j.FinishedAt = now
	j.LeaseUntil = time.Time{}
	j.Lease = ""
}

// Complete marks a delivered job done.
func (q *InMemoryQueue) Complete(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.held(job)
	if err != nil {
		return err
	}
	finish(j, StateCompleted, q.now())
	return nil
}

// Retry re-delays a delivered job.
func (q *InMemoryQueue) Retry(_ context.Context, job Job, delay time.Duration, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.held(job)
	if err != nil {
		return err
	}
	delayJob(j, q.now(), delay)
	j.LastError = errString(cause)
	return nil
}

// Snooze re-delays a delivered job and gives the attempt back.
func (q *InMemoryQueue) Snooze(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.held(job)
	if err != nil {
		return err
	}
	delayJob(j, q.now(), delay)
	if j.Attempts > 0 {
		j.Attempts--
	}
	return nil
}

func delayJob(j *Job, now time.Time, delay time.Duration) {
	j.LeaseUntil = time.Time{}
	j.Lease = ""
	j.RunAt = now.Add(delay)
	j.State = StateDelayed
	if delay <= 0 {
		j.State = StateWaiting
	}
}

// Fail marks a delivered job failed.
func (q *InMemoryQueue) Fail(_ context.Context, job Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, err := q.held(job)
	if err != nil {
		return err
	}
	finish(j, StateFailed, q.now())
	j.LastError = errString(cause)
	return nil
}

// Remove deletes a pending job.
func (q *InMemoryQueue) Remove(_ context.Context, queue, id string) error {
	return q.drop(queue, id, State.Pending, ErrNotPending)
}

// Clear deletes a terminal job.
func (q *InMemoryQueue) Clear(_ context.Context, queue, id string) error {
	return q.drop(queue, id, State.Terminal, ErrNotTerminal)
}

func (q *InMemoryQueue) drop(queue, id string, allowed func(State) bool, wrong error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	mq := q.queue(queue)
	j, ok := mq.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrJobNotFound, queue, id)
	}
	if !allowed(j.State) {
		return fmt.Errorf("%w: %s/%s is %s", wrong, queue, id, j.State)
	}
	delete(mq.jobs, id)
	return nil
}

// Get returns a copy of one job.
func (q *InMemoryQueue) Get(_ context.Context, queue, id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mq := q.queue(queue)
	q.expire(mq, q.now())
	j, ok := mq.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s/%s", ErrJobNotFound, queue, id)
	}
	return *j, nil
}

// Counts returns per-state counts. A waiting job whose run time has not come
// yet counts as delayed.
func (q *InMemoryQueue) Counts(_ context.Context, queue string) (types.QueueCounts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mq := q.queue(queue)
	now := q.now()
	q.expire(mq, now)
	c := types.QueueCounts{Queue: queue, Paused: mq.paused}
	for _, j := range mq.jobs {
		switch j.State {
		case StateWaiting, StateDelayed:
			if j.RunAt.After(now) {
				c.Delayed++
			} else {
				c.Waiting++
			}
		case StateActive:
			c.Active++
		case StateFailed:
			c.Failed++
		case StateCompleted:
			c.Completed++
		}
	}
	return c, nil
}

// Pause stops Dequeue from handing out jobs of queue.
func (q *InMemoryQueue) Pause(_ context.Context, queue string) error {
	q.setPaused(queue, true)
	return nil
}

// Resume undoes Pause.
func (q *InMemoryQueue) Resume(_ context.Context, queue string) error {
	q.setPaused(queue, false)
	return nil
}

func (q *InMemoryQueue) setPaused(queue string, paused bool) {
	q.mu.Lock()
	q.queue(queue).paused = paused
	q.mu.Unlock()
	metrics.UpdateQueuePaused(queue, paused)
}

// Paused reports whether queue is paused.
func (q *InMemoryQueue) Paused(_ context.Context, queue string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue(queue).paused, nil
}

// Close gracefully shuts down the broker. Further calls fail with ErrClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// IsClosed returns true if the broker has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
