package breaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
)

// Pauser is the broker surface the queue breaker drives.
type Pauser interface {
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	Paused(ctx context.Context, queue string) (bool, error)
}

type queueState struct {
	consecutive int
	trips       int
	resumeAt    *time.Time
	timer       *time.Timer
}

// Queues pauses a queue after threshold consecutive rate-limited jobs and
// resumes it after cooldown.
type Queues struct {
	broker    Pauser
	threshold int
	cooldown  time.Duration
	logger    logger.Logger
	now       func() time.Time

	mu     sync.Mutex
	queues map[string]*queueState
}

// NewQueues creates a queue breaker. A zero cooldown disables auto-resume.
func NewQueues(broker Pauser, threshold int, cooldown time.Duration) *Queues {
	if threshold < 1 {
		threshold = 5
	}
	return &Queues{
		broker:    broker,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.Named("queue-breaker"),
		now:       time.Now,
		queues:    make(map[string]*queueState),
	}
}

func (q *Queues) state(queue string) *queueState {
	st, ok := q.queues[queue]
	if !ok {
		st = &queueState{}
		q.queues[queue] = st
	}
	return st
}

// RecordSuccess clears the rate-limit run of queue.
func (q *Queues) RecordSuccess(_ context.Context, queue string) {
	q.mu.Lock()
	q.state(queue).consecutive = 0
	q.mu.Unlock()
}

// RecordRateLimit counts a rate-limited job and pauses the queue when the
// run reaches the threshold.
func (q *Queues) RecordRateLimit(ctx context.Context, queue string) {
	q.mu.Lock()
	st := q.state(queue)
	st.consecutive++
	if st.consecutive < q.threshold || st.resumeAt != nil {
		q.mu.Unlock()
		return
	}
	st.trips++
	resumeAt := q.now().Add(q.cooldown)
	st.resumeAt = &resumeAt
	if q.cooldown > 0 {
		st.timer = time.AfterFunc(q.cooldown, func() {
			if err := q.Resume(context.Background(), queue); err != nil {
				q.logger.Error(context.Background(), "auto-resume failed", logger.String("queue", queue), logger.Error(err))
			}
		})
	}
	consecutive := st.consecutive
	q.mu.Unlock()

	metrics.RecordQueueBreakerTrip(queue)
	if err := q.broker.Pause(ctx, queue); err != nil {
		q.logger.Error(ctx, "pause failed", logger.String("queue", queue), logger.Error(err))
		return
	}
	q.logger.Warn(ctx, "queue paused after sustained rate limiting",
		logger.String("queue", queue),
		logger.Int("consecutive", consecutive),
		logger.Duration("cooldown", q.cooldown))
}

// Resume unpauses queue and clears its rate-limit run.
func (q *Queues) Resume(ctx context.Context, queue string) error {
	q.mu.Lock()
	st := q.state(queue)
	st.consecutive = 0
	st.resumeAt = nil
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	q.mu.Unlock()

	if err := q.broker.Resume(ctx, queue); err != nil {
		return err
	}
	q.logger.Info(ctx, "queue resumed", logger.String("queue", queue))
	return nil
}

// Reset resumes queue and forgets its trip history.
func (q *Queues) Reset(ctx context.Context, queue string) error {
	if err := q.Resume(ctx, queue); err != nil {
		return err
	}
	q.mu.Lock()
	q.state(queue).trips = 0
	q.mu.Unlock()
	return nil
}

// Status reports the breaker of each named queue.
func (q *Queues) Status(ctx context.Context, queues []string) ([]types.QueueBreaker, error) {
	names := append([]string(nil), queues...)
	sort.Strings(names)
	out := make([]types.QueueBreaker, 0, len(names))
	for _, name := range names {
		paused, err := q.broker.Paused(ctx, name)
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		st := q.state(name)
		qb := types.QueueBreaker{
			Queue:                name,
			Paused:               paused,
			ConsecutiveRateLimit: st.consecutive,
			Threshold:            q.threshold,
			Trips:                st.trips,
		}
		if st.resumeAt != nil {
			t := *st.resumeAt
			qb.ResumeAt = &t
		}
		q.mu.Unlock()
		out = append(out, qb)
	}
	return out, nil
}

// Close stops pending auto-resume timers.
func (q *Queues) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, st := range q.queues {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}
