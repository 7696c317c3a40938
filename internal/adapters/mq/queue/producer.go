package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/matchday/pkg/metrics"
)

// Policy is the retry policy applied to jobs of one queue.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Producer enqueues stage payloads with their queue's retry policy.
type Producer struct {
	broker Broker
	policy func(queue string) Policy
	now    func() time.Time
}

// NewProducer creates a producer. policy may be nil, in which case jobs get
// three attempts with a 30s base backoff.
func NewProducer(b Broker, policy func(queue string) Policy) *Producer {
	if policy == nil {
		policy = func(string) Policy { return Policy{Attempts: 3, Backoff: 30 * time.Second} }
	}
	return &Producer{broker: b, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Broker returns the underlying broker.
func (p *Producer) Broker() Broker { return p.broker }

// Add enqueues payload under id, due after delay. added is false when the id
// already exists; that is not an error.
func (p *Producer) Add(ctx context.Context, queue, id string, payload any, delay time.Duration) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode payload %s/%s: %w", queue, id, err)
	}
	pol := p.policy(queue)
	job := Job{
		ID:          id,
		Queue:       queue,
		Payload:     raw,
		MaxAttempts: pol.Attempts,
		Backoff:     pol.Backoff,
	}
	if delay > 0 {
		job.RunAt = p.now().Add(delay)
	}
	err = p.broker.Enqueue(ctx, job)
	switch {
	case errors.Is(err, ErrDuplicateJob):
		metrics.RecordJobEnqueued(queue, "duplicate")
		return false, nil
	case err != nil:
		metrics.RecordJobEnqueued(queue, "error")
		return false, err
	}
	metrics.RecordJobEnqueued(queue, "added")
	return true, nil
}

// Backoff returns the delay before retry number attempt (1-based):
// base·2^(attempt-1), capped at limit, with up to 10% jitter either way.
func Backoff(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			d = limit
			break
		}
	}
	if limit > 0 && d > limit {
		d = limit
	}
	jitter := time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1)) //nolint:gosec // jitter does not need crypto randomness
	return d + jitter
}
