// Package stages holds one handler per pipeline queue. Each handler decodes
// only its own payload variant and classifies every failure so the
// consumer can retry, snooze or dead-letter the job.
package stages

import (
	"context"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
)

// SportsDataDependency is the breaker name of the sports-data provider.
const SportsDataDependency = "sportsdata"

// PredictorDependency returns the breaker name of a predictor provider.
func PredictorDependency(provider string) string { return "predictor:" + provider }

// Guard runs upstream calls behind a service circuit breaker.
type Guard interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Enqueuer adds follow-on jobs.
type Enqueuer interface {
	Add(ctx context.Context, queue, id string, payload any, delay time.Duration) (bool, error)
}

// Clock returns the current time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// decode strictly decodes the payload of job. A malformed payload can never
// succeed on retry.
func decode[T model.Payload](op string, job queue.Job) (T, error) {
	p, err := model.DecodePayload[T](job.Queue, job.Payload)
	if err != nil {
		return p, failure.Permanent(op, err)
	}
	return p, nil
}

// missing classifies an upstream no-data answer: data may still appear for
// a fixture on the normal schedule, but never for a past one.
func missing(op string, retroactive bool, err error) error {
	if retroactive {
		return failure.NoData(op, err)
	}
	return failure.Transient(op, err)
}

func jobLogger(l logger.Logger, job queue.Job, ref model.FixtureRef) logger.Logger {
	return l.With(
		logger.String("queue", job.Queue),
		logger.String("job_id", job.ID),
		logger.Uint64("fixture_id", ref.FixtureID),
		logger.Bool("retroactive", ref.AllowRetroactive),
	)
}

func isNoData(err error) bool { return failure.KindOf(err) == failure.KindNoData }
