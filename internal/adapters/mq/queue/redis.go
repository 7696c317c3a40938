package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// claimScript moves expired leases back to the schedule, then leases the
// earliest due job. It returns nil when the queue is paused or idle.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
  return false
end
local stalled = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
for _, id in ipairs(stalled) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

// RedisBroker implements Broker on Redis so several processes can share the
// queues. Each queue keeps the job documents plus a schedule sorted set
// (waiting and delayed, scored by run time), an active set scored by lease
// deadline, a failed set and a completed set scored by finish time.
type RedisBroker struct {
	settings
	client *redis.Client
}

// NewRedisBroker creates a broker over an existing client.
func NewRedisBroker(client *redis.Client, opts ...Option) *RedisBroker {
	return &RedisBroker{settings: newSettings(opts), client: client}
}

func (b *RedisBroker) key(queue, part string) string {
	return b.prefix + ":q:" + queue + ":" + part
}

func (b *RedisBroker) jobKey(queue, id string) string {
	return b.key(queue, "job:"+id)
}

func ms(t time.Time) float64 { return float64(t.UnixMilli()) }

func (b *RedisBroker) load(ctx context.Context, queue, id string) (Job, error) {
	raw, err := b.client.Get(ctx, b.jobKey(queue, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, fmt.Errorf("%w: %s/%s", ErrJobNotFound, queue, id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("redis get job: %w", err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return Job{}, fmt.Errorf("decode job %s/%s: %w", queue, id, err)
	}
	return j, nil
}

func encode(j Job) ([]byte, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s/%s: %w", j.Queue, j.ID, err)
	}
	return raw, nil
}

// Enqueue adds a job. The document is written with SETNX, so the identity
// check and the insert are one step.
func (b *RedisBroker) Enqueue(ctx context.Context, job Job) error {
	now := b.now()
	pending, err := b.client.ZCard(ctx, b.key(job.Queue, "schedule")).Result()
	if err != nil {
		return fmt.Errorf("redis zcard: %w", err)
	}
	if pending >= int64(b.capacity) {
		return ErrQueueFull
	}
	j := prepare(job, now)
	raw, err := encode(j)
	if err != nil {
		return err
	}
	ok, err := b.client.SetNX(ctx, b.jobKey(j.Queue, j.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateJob, j.Queue, j.ID)
	}
	if err := b.client.ZAdd(ctx, b.key(j.Queue, "schedule"), redis.Z{Score: ms(j.RunAt), Member: j.ID}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// Dequeue leases the earliest due job. A stalled job whose lease ran out on
// its last attempt is failed and the next one is claimed instead.
func (b *RedisBroker) Dequeue(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	keys := []string{b.key(queue, "schedule"), b.key(queue, "active"), b.key(queue, "paused")}
	for {
		now := b.now()
		id, err := claimScript.Run(ctx, b.client, keys,
			strconv.FormatInt(now.UnixMilli(), 10),
			strconv.FormatInt(now.Add(lease).UnixMilli(), 10),
		).Text()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis claim: %w", err)
		}
		j, err := b.load(ctx, queue, id)
		if err != nil {
			return nil, err
		}
		switch {
		case j.State.Terminal():
			// Settled by its previous holder while the claim ran.
			if err := b.client.ZRem(ctx, b.key(queue, "active"), id).Err(); err != nil {
				return nil, fmt.Errorf("redis zrem: %w", err)
			}
			continue
		case j.State == StateActive && j.Exhausted():
			err := b.Fail(ctx, j, errors.New(stalledMessage))
			if err != nil && !errors.Is(err, ErrLeaseLost) {
				return nil, err
			}
			continue
		}
		j.State = StateActive
		j.Attempts++
		j.LeaseUntil = now.Add(lease)
		j.Lease = newLease()
		if err := b.save(ctx, j, 0); err != nil {
			return nil, err
		}
		return &j, nil
	}
}

func (b *RedisBroker) save(ctx context.Context, j Job, ttl time.Duration) error {
	raw, err := encode(j)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.jobKey(j.Queue, j.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set job: %w", err)
	}
	return nil
}

// settle applies move to a job its caller still holds. The document is
// watched so a concurrent re-delivery aborts the transaction.
func (b *RedisBroker) settle(ctx context.Context, job Job, op string, move func(j *Job, p redis.Pipeliner) error) error {
	key := b.jobKey(job.Queue, job.ID)
	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s/%s", ErrJobNotFound, job.Queue, job.ID)
		}
		if err != nil {
			return fmt.Errorf("redis get job: %w", err)
		}
		var stored Job
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode job %s/%s: %w", job.Queue, job.ID, err)
		}
		if err := checkLease(stored, job); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			return move(&stored, p)
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %s/%s", ErrLeaseLost, job.Queue, job.ID)
	case errors.Is(err, ErrLeaseLost), errors.Is(err, ErrNotActive), errors.Is(err, ErrJobNotFound):
		return err
	case err != nil:
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return nil
}

// Complete marks a delivered job done. The document expires after the
// retention period.
func (b *RedisBroker) Complete(ctx context.Context, job Job) error {
	return b.settle(ctx, job, "complete", func(j *Job, p redis.Pipeliner) error {
		now := b.now()
		finish(j, StateCompleted, now)
		raw, err := encode(*j)
		if err != nil {
			return err
		}
		p.ZRem(ctx, b.key(j.Queue, "active"), j.ID)
		p.ZAdd(ctx, b.key(j.Queue, "completed"), redis.Z{Score: ms(now), Member: j.ID})
		p.Set(ctx, b.jobKey(j.Queue, j.ID), raw, b.retention)
		return nil
	})
}

func (b *RedisBroker) reschedule(ctx context.Context, job Job, delay time.Duration, update func(j *Job)) error {
	return b.settle(ctx, job, "reschedule", func(j *Job, p redis.Pipeliner) error {
		update(j)
		delayJob(j, b.now(), delay)
		raw, err := encode(*j)
		if err != nil {
			return err
		}
		p.ZRem(ctx, b.key(j.Queue, "active"), j.ID)
		p.ZAdd(ctx, b.key(j.Queue, "schedule"), redis.Z{Score: ms(j.RunAt), Member: j.ID})
		p.Set(ctx, b.jobKey(j.Queue, j.ID), raw, 0)
		return nil
	})
}

// Retry re-delays a delivered job.
func (b *RedisBroker) Retry(ctx context.Context, job Job, delay time.Duration, cause error) error {
	return b.reschedule(ctx, job, delay, func(j *Job) {
		j.LastError = errString(cause)
	})
}

// Snooze re-delays a delivered job and gives the attempt back.
func (b *RedisBroker) Snooze(ctx context.Context, job Job, delay time.Duration) error {
	return b.reschedule(ctx, job, delay, func(j *Job) {
		if j.Attempts > 0 {
			j.Attempts--
		}
	})
}

// Fail marks a delivered job failed.
func (b *RedisBroker) Fail(ctx context.Context, job Job, cause error) error {
	return b.settle(ctx, job, "fail", func(j *Job, p redis.Pipeliner) error {
		finish(j, StateFailed, b.now())
		j.LastError = errString(cause)
		raw, err := encode(*j)
		if err != nil {
			return err
		}
		p.ZRem(ctx, b.key(j.Queue, "active"), j.ID)
		p.SAdd(ctx, b.key(j.Queue, "failed"), j.ID)
		p.Set(ctx, b.jobKey(j.Queue, j.ID), raw, 0)
		return nil
	})
}

// Remove deletes a pending job.
func (b *RedisBroker) Remove(ctx context.Context, queue, id string) error {
	j, err := b.load(ctx, queue, id)
	if err != nil {
		return err
	}
	if !j.State.Pending() {
		return fmt.Errorf("%w: %s/%s is %s", ErrNotPending, queue, id, j.State)
	}
	n, err := b.client.ZRem(ctx, b.key(queue, "schedule"), id).Result()
	if err != nil {
		return fmt.Errorf("redis remove: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s was claimed", ErrNotPending, queue, id)
	}
	return b.client.Del(ctx, b.jobKey(queue, id)).Err()
}

// Clear deletes a terminal job.
func (b *RedisBroker) Clear(ctx context.Context, queue, id string) error {
	j, err := b.load(ctx, queue, id)
	if err != nil {
		return err
	}
	if !j.State.Terminal() {
		return fmt.Errorf("%w: %s/%s is %s", ErrNotTerminal, queue, id, j.State)
	}
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, b.key(queue, "completed"), id)
		p.SRem(ctx, b.key(queue, "failed"), id)
		p.Del(ctx, b.jobKey(queue, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Get returns one job.
func (b *RedisBroker) Get(ctx context.Context, queue, id string) (Job, error) {
	return b.load(ctx, queue, id)
}

// Counts returns per-state counts and trims completed ids past retention.
func (b *RedisBroker) Counts(ctx context.Context, queue string) (types.QueueCounts, error) {
	now := b.now()
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)
	cutoff := strconv.FormatInt(now.Add(-b.retention).UnixMilli(), 10)

	var (
		waiting, delayed, active, failed, completed *redis.IntCmd
		paused                                      *redis.IntCmd
	)
	_, err := b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, b.key(queue, "completed"), "-inf", "("+cutoff)
		waiting = p.ZCount(ctx, b.key(queue, "schedule"), "-inf", nowMs)
		delayed = p.ZCount(ctx, b.key(queue, "schedule"), "("+nowMs, "+inf")
		active = p.ZCard(ctx, b.key(queue, "active"))
		failed = p.SCard(ctx, b.key(queue, "failed"))
		completed = p.ZCard(ctx, b.key(queue, "completed"))
		paused = p.Exists(ctx, b.key(queue, "paused"))
		return nil
	})
	if err != nil {
		return types.QueueCounts{}, fmt.Errorf("redis counts: %w", err)
	}
	return types.QueueCounts{
		Queue:     queue,
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Failed:    failed.Val(),
		Completed: completed.Val(),
		Paused:    paused.Val() == 1,
	}, nil
}

// Pause stops Dequeue from handing out jobs of queue.
func (b *RedisBroker) Pause(ctx context.Context, queue string) error {
	if err := b.client.Set(ctx, b.key(queue, "paused"), "1", 0).Err(); err != nil {
		return fmt.Errorf("redis pause: %w", err)
	}
	metrics.UpdateQueuePaused(queue, true)
	return nil
}

// Resume undoes Pause.
func (b *RedisBroker) Resume(ctx context.Context, queue string) error {
	if err := b.client.Del(ctx, b.key(queue, "paused")).Err(); err != nil {
		return fmt.Errorf("redis resume: %w", err)
	}
	metrics.UpdateQueuePaused(queue, false)
	return nil
}

// Paused reports whether queue is paused.
func (b *RedisBroker) Paused(ctx context.Context, queue string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(queue, "paused")).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Close closes the client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
