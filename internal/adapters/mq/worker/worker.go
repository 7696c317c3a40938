// Package worker runs the consumer loop of each stage queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
	"github.com/okian/matchday/pkg/tracker"
)

// Default consumer configuration constants.
const (
	defaultConcurrency  = 1
	defaultLock         = time.Minute
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxBackoff   = time.Hour
	bookkeepingTimeout  = 10 * time.Second
)

// ErrSnooze asks the consumer to re-delay the job without using an attempt.
var ErrSnooze = errors.New("snooze")

type snoozeError struct {
	delay time.Duration
}

func (e *snoozeError) Error() string { return fmt.Sprintf("snooze for %s", e.delay) }
func (e *snoozeError) Unwrap() error { return ErrSnooze }

// Snooze returns an error that re-delays the current job by d.
func Snooze(d time.Duration) error {
	return &snoozeError{delay: d}
}

// Handler processes the jobs of one queue.
type Handler interface {
	Queue() string
	Handle(ctx context.Context, job queue.Job) error
}

// QueueBreaker tracks rate limiting per queue.
type QueueBreaker interface {
	RecordSuccess(ctx context.Context, queue string)
	RecordRateLimit(ctx context.Context, queue string)
}

// DeadLetters parks jobs that will not be retried.
type DeadLetters interface {
	Record(ctx context.Context, job queue.Job, cause error, permanent bool) error
}

// Consumer pulls jobs of one queue and routes each outcome.
type Consumer struct {
	broker      queue.Broker
	handler     Handler
	queue       string
	concurrency int
	lock        time.Duration
	poll        time.Duration
	maxBackoff  time.Duration
	breaker     QueueBreaker
	deadLetters DeadLetters
	tracker     tracker.Tracker
	logger      logger.Logger

	wake chan struct{}
	wg   sync.WaitGroup
}

// NewConsumer creates a consumer for h's queue.
func NewConsumer(b queue.Broker, h Handler, opts ...Option) *Consumer {
	c := &Consumer{
		broker:      b,
		handler:     h,
		queue:       h.Queue(),
		concurrency: defaultConcurrency,
		lock:        defaultLock,
		poll:        defaultPollInterval,
		maxBackoff:  defaultMaxBackoff,
		tracker:     tracker.Noop{},
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("worker").With(logger.String("queue", c.queue))
	}
	return c
}

// String names the consumer in supervisor logs.
func (c *Consumer) String() string { return "consumer:" + c.queue }

// Serve runs the consumer until ctx is canceled. In-flight jobs are waited
// for before returning.
func (c *Consumer) Serve(ctx context.Context) error {
	slots := make(chan struct{}, c.concurrency)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	defer c.wg.Wait()

	c.logger.Info(ctx, "consumer started", logger.Int("concurrency", c.concurrency))
	for {
		c.fill(ctx, slots)
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "consumer stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake:
		}
	}
}

// fill starts jobs until every slot is busy or nothing is due.
func (c *Consumer) fill(ctx context.Context, slots chan struct{}) {
	for {
		select {
		case slots <- struct{}{}:
		default:
			return
		}
		job, err := c.broker.Dequeue(ctx, c.queue, c.lock)
		if err != nil || job == nil {
			<-slots
			if err != nil && ctx.Err() == nil {
				c.logger.Error(ctx, "dequeue failed", logger.Error(err))
			}
			return
		}
		c.wg.Add(1)
		go func(j queue.Job) {
			defer c.wg.Done()
			defer func() {
				<-slots
				select {
				case c.wake <- struct{}{}:
				default:
				}
			}()
			c.Process(ctx, j)
		}(*job)
	}
}

// Process runs one leased job and routes its outcome. It is exported so
// callers can drive a consumer synchronously.
func (c *Consumer) Process(ctx context.Context, job queue.Job) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, c.lock)
	err := c.run(jobCtx, job)
	cancel()

	bctx, bcancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer bcancel()
	outcome := c.route(bctx, job, err)
	metrics.RecordJobProcessed(c.queue, outcome, float64(time.Since(start).Milliseconds()))
}

func (c *Consumer) run(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.tracker.Recover(ctx, r)
			err = failure.Transient("worker.handle", fmt.Errorf("panic: %v", r))
		}
	}()
	return c.handler.Handle(ctx, job)
}

func (c *Consumer) route(ctx context.Context, job queue.Job, err error) string {
	log := c.logger.With(logger.String("job_id", job.ID), logger.Int("attempt", job.Attempts))

	if err == nil {
		if cerr := c.broker.Complete(ctx, job); cerr != nil {
			if errors.Is(cerr, queue.ErrLeaseLost) {
				log.Warn(ctx, "lease lost before completion", logger.Error(cerr))
				return "lease_lost"
			}
			log.Error(ctx, "complete failed", logger.Error(cerr))
		}
		if c.breaker != nil {
			c.breaker.RecordSuccess(ctx, c.queue)
		}
		log.Debug(ctx, "job completed")
		return "completed"
	}

	var snooze *snoozeError
	if errors.As(err, &snooze) {
		if serr := c.broker.Snooze(ctx, job, snooze.delay); serr != nil {
			log.Error(ctx, "snooze failed", logger.Error(serr))
		}
		log.Debug(ctx, "job snoozed", logger.Duration("delay", snooze.delay))
		return "snoozed"
	}

	if failure.IsRateLimited(err) && c.breaker != nil {
		c.breaker.RecordRateLimit(ctx, c.queue)
	}
	if failure.IsConfig(err) {
		c.tracker.Alert(ctx, "configuration failure in "+c.queue, err, c.tags(job))
	}

	if failure.IsRetryable(err) && !job.Exhausted() {
		delay := queue.Backoff(job.Backoff, job.Attempts, c.maxBackoff)
		if rerr := c.broker.Retry(ctx, job, delay, err); rerr != nil {
			log.Error(ctx, "retry failed", logger.Error(rerr))
		}
		log.Warn(ctx, "job failed, retrying",
			logger.String("kind", failure.KindOf(err).String()),
			logger.Duration("delay", delay),
			logger.Error(err))
		return "retried"
	}

	permanent := !failure.IsRetryable(err)
	if ferr := c.broker.Fail(ctx, job, err); ferr != nil {
		if errors.Is(ferr, queue.ErrLeaseLost) {
			log.Warn(ctx, "lease lost before failing", logger.Error(ferr))
			return "lease_lost"
		}
		log.Error(ctx, "fail failed", logger.Error(ferr))
	}
	if c.deadLetters != nil {
		if derr := c.deadLetters.Record(ctx, job, err, permanent); derr != nil {
			log.Error(ctx, "dead letter failed", logger.Error(derr))
		}
	}
	metrics.RecordDeadLetter(c.queue, permanent)

	if failure.IsExpected(err) {
		log.Info(ctx, "job dead-lettered",
			logger.String("kind", failure.KindOf(err).String()),
			logger.Error(err))
		return "dead_lettered"
	}
	log.Error(ctx, "job dead-lettered",
		logger.String("kind", failure.KindOf(err).String()),
		logger.Bool("permanent", permanent),
		logger.Error(err))
	c.tracker.Capture(ctx, err, c.tags(job))
	return "dead_lettered"
}

func (c *Consumer) tags(job queue.Job) map[string]string {
	return map[string]string{"queue": c.queue, "job_id": job.ID}
}
