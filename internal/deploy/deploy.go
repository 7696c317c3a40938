// Package deploy runs one-shot maintenance tasks after a deployment.
// Each task id runs to completion at most once across all deployments.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
)

const defaultStaleAfter = time.Hour

// ErrDuplicateTask is returned when two tasks share an id.
var ErrDuplicateTask = errors.New("deploy task already registered")

// Store records task claims.
type Store interface {
	ClaimDeployTask(ctx context.Context, id string, staleAfter time.Duration) (bool, error)
	CompleteDeployTask(ctx context.Context, id, result string) error
	ReleaseDeployTask(ctx context.Context, id string) error
}

// Task is one maintenance step. ID must never be reused for different work.
type Task struct {
	ID  string
	Run func(ctx context.Context) (string, error)
}

// Outcome reports what happened to one task.
type Outcome struct {
	ID      string `json:"id"`
	Ran     bool   `json:"ran"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
}

// Runner executes registered tasks in registration order.
type Runner struct {
	store      Store
	staleAfter time.Duration
	tasks      []Task
	ids        map[string]bool
	logger     logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStaleAfter sets how old a running claim must be before another
// process takes it over.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// NewRunner creates a runner over store.
func NewRunner(store Store, opts ...Option) *Runner {
	r := &Runner{store: store, staleAfter: defaultStaleAfter, ids: map[string]bool{}, logger: logger.Named("deploy")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a task.
func (r *Runner) Register(t Task) error {
	if t.ID == "" || t.Run == nil {
		return fmt.Errorf("deploy task %q: missing id or body", t.ID)
	}
	if r.ids[t.ID] {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	r.ids[t.ID] = true
	r.tasks = append(r.tasks, t)
	return nil
}

// Run executes every task not yet completed. A failed task releases its
// claim so the next deployment retries it; later tasks still run. The
// returned error joins every task failure.
func (r *Runner) Run(ctx context.Context) ([]Outcome, error) {
	out := make([]Outcome, 0, len(r.tasks))
	var errs []error
	for _, t := range r.tasks {
		o, err := r.run(ctx, t)
		out = append(out, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID, err))
		}
	}
	return out, errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, t Task) (Outcome, error) {
	o := Outcome{ID: t.ID}
	log := r.logger.With(logger.String("task", t.ID))

	claimed, err := r.store.ClaimDeployTask(ctx, t.ID, r.staleAfter)
	if err != nil {
		metrics.RecordDeployTask("error")
		o.Error = err.Error()
		return o, err
	}
	if !claimed {
		metrics.RecordDeployTask("skipped")
		log.Debug(ctx, "deploy task already done")
		return o, nil
	}

	o.Ran = true
	start := time.Now()
	result, err := t.Run(ctx)
	o.Elapsed = time.Since(start).String()
	if err != nil {
		o.Error = err.Error()
		if rerr := r.store.ReleaseDeployTask(context.WithoutCancel(ctx), t.ID); rerr != nil {
			log.Error(ctx, "release deploy task", logger.Error(rerr))
		}
		metrics.RecordDeployTask("failed")
		log.Error(ctx, "deploy task failed", logger.Error(err))
		return o, err
	}
	o.Result = result
	if err := r.store.CompleteDeployTask(ctx, t.ID, result); err != nil {
		metrics.RecordDeployTask("error")
		o.Error = err.Error()
		return o, err
	}
	metrics.RecordDeployTask("completed")
	log.Info(ctx, "deploy task completed", logger.String("result", result), logger.String("elapsed", o.Elapsed))
	return o, nil
}
