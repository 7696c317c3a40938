// Package reconcile re-drives stage work for past fixtures whose forecast
// population is incomplete, and reports upcoming coverage gaps.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/matchday/internal/adapters/mq/queue"
	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
)

const (
	defaultPoll         = 5 * time.Second
	defaultPhaseTimeout = 10 * time.Minute
	defaultLimit        = 1000
)

var (
	ErrRunInProgress = errors.New("reconciler run already in progress")
	ErrPhaseTimeout  = errors.New("phase job did not finish in time")
	ErrPhaseFailed   = errors.New("phase job failed")
)

// Store is the read side the reconciler needs.
type Store interface {
	ActiveForecasterCount(ctx context.Context) (int, error)
	IncompleteFixtures(ctx context.Context, from, to time.Time, expected, limit int) ([]repository.FixtureCoverage, error)
	UnsettledFixtures(ctx context.Context, from, to time.Time) ([]model.Fixture, error)
	Coverage(ctx context.Context, from, to time.Time, limit int) ([]repository.FixtureCoverage, error)
}

// Report summarises one run.
type Report struct {
	Lookback  time.Duration `json:"lookback"`
	Expected  int           `json:"expected"`
	Gaps      int           `json:"gaps"`
	Unsettled int           `json:"unsettled"`
	Phases    int           `json:"phases"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	TimedOut  int           `json:"timedOut"`
	Errors    []string      `json:"errors,omitempty"`
	// Resume is set when the run budget ran out before every fixture was
	// handled.
	Resume *model.BackfillCursor `json:"resume,omitempty"`
}

// Reconciler re-drives missing stage work with the retroactive flag set.
type Reconciler struct {
	store        Store
	producer     *queue.Producer
	poll         time.Duration
	phaseTimeout time.Duration
	budget       time.Duration
	limit        int
	now          func() time.Time
	running      sync.Mutex
	logger       logger.Logger
}

// New creates a reconciler.
func New(store Store, producer *queue.Producer, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		producer:     producer,
		poll:         defaultPoll,
		phaseTimeout: defaultPhaseTimeout,
		limit:        defaultLimit,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.Named("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scans fixtures that kicked off within lookback. Fixtures are handled
// one at a time and each phase waits for its job before the next starts.
// A failing fixture is recorded in the report and does not stop the run.
func (r *Reconciler) Run(ctx context.Context, lookback time.Duration) (Report, error) {
	return r.RunFrom(ctx, lookback, nil)
}

// RunFrom continues a run that stopped at cur. A nil cursor scans the
// whole lookback window. With a budget set, a fixture is only started when
// its worst-case phase waits still fit; the rest is left to a later run
// through Report.Resume.
func (r *Reconciler) RunFrom(ctx context.Context, lookback time.Duration, cur *model.BackfillCursor) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer r.running.Unlock()

	rep := Report{Lookback: lookback}
	now := r.now()
	from := now.Add(-lookback)
	var deadline time.Time
	if r.budget > 0 {
		deadline = now.Add(r.budget)
	}
	// The first fixture of a run always starts so a continuation moves on.
	started := false
	fits := func(phases int) bool {
		if deadline.IsZero() || !started {
			return true
		}
		return !r.now().Add(time.Duration(phases) * r.phaseTimeout).After(deadline)
	}

	expected, err := r.store.ActiveForecasterCount(ctx)
	if err != nil {
		metrics.RecordReconcilerRun("error", 0)
		return rep, fmt.Errorf("count forecasters: %w", err)
	}
	rep.Expected = expected

	var gaps []repository.FixtureCoverage
	if expected > 0 && (cur == nil || !cur.Unsettled) {
		gapsFrom := from
		if cur != nil && cur.KickoffAt.After(from) {
			gapsFrom = cur.KickoffAt
		}
		gaps, err = r.store.IncompleteFixtures(ctx, gapsFrom, now, expected, r.limit)
		if err != nil {
			metrics.RecordReconcilerRun("error", 0)
			return rep, fmt.Errorf("list incomplete fixtures: %w", err)
		}
	}

	settled := make(map[uint64]bool, len(gaps))
	for _, g := range gaps {
		if ctx.Err() != nil {
			break
		}
		if !cur.Reached(g.Fixture) {
			continue
		}
		if !fits(phasesOf(g)) {
			rep.Resume = &model.BackfillCursor{KickoffAt: g.Fixture.KickoffAt, FixtureID: g.Fixture.ID}
			break
		}
		started = true
		rep.Gaps++
		r.fixture(ctx, &rep, g)
		if g.Fixture.HasResult() {
			settled[g.Fixture.ID] = true
		}
	}

	if rep.Resume == nil {
		r.unsettled(ctx, &rep, from, now, cur, settled, fits, &started)
	}

	result := "completed"
	switch {
	case ctx.Err() != nil:
		result = "canceled"
	case rep.Resume != nil:
		result = "truncated"
	}
	metrics.RecordReconcilerRun(result, rep.Gaps)
	r.logger.Info(ctx, "reconciler run finished",
		logger.Duration("lookback", lookback),
		logger.Int("expected", rep.Expected),
		logger.Int("gaps", rep.Gaps),
		logger.Int("unsettled", rep.Unsettled),
		logger.Int("completed", rep.Completed),
		logger.Int("failed", rep.Failed),
		logger.Int("timed_out", rep.TimedOut),
		logger.Bool("truncated", rep.Resume != nil))
	return rep, ctx.Err()
}

func (r *Reconciler) unsettled(ctx context.Context, rep *Report, from, now time.Time, cur *model.BackfillCursor,
	settled map[uint64]bool, fits func(int) bool, started *bool) {
	fixtures, err := r.store.UnsettledFixtures(ctx, from, now)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("list unsettled fixtures: %v", err))
		return
	}
	for _, f := range fixtures {
		if ctx.Err() != nil {
			return
		}
		if settled[f.ID] || (cur != nil && cur.Unsettled && !cur.Reached(f)) {
			continue
		}
		if !fits(1) {
			rep.Resume = &model.BackfillCursor{KickoffAt: f.KickoffAt, FixtureID: f.ID, Unsettled: true}
			return
		}
		*started = true
		rep.Unsettled++
		r.phase(ctx, rep, f, model.SettlementJob{FixtureRef: f.Ref(true)})
	}
}

func phasesOf(g repository.FixtureCoverage) int {
	n := 1
	if !g.HasAnalysis && g.Fixture.ExternalID != nil {
		n++
	}
	if g.Fixture.HasResult() {
		n++
	}
	return n
}

// fixture runs the analysis, forecast and settlement phases for one gap.
func (r *Reconciler) fixture(ctx context.Context, rep *Report, g repository.FixtureCoverage) {
	f := g.Fixture
	ref := f.Ref(true)
	if !g.HasAnalysis && ref.ExternalID != "" {
		r.phase(ctx, rep, f, model.AnalysisJob{FixtureRef: ref})
	}
	r.phase(ctx, rep, f, model.ForecastJob{FixtureRef: ref, Attempt: model.MaxForecastAttempts, Forced: true})
	if f.HasResult() {
		r.phase(ctx, rep, f, model.SettlementJob{FixtureRef: ref})
	}
}

func (r *Reconciler) phase(ctx context.Context, rep *Report, f model.Fixture, p model.Payload) {
	rep.Phases++
	stage := p.Stage()
	id := model.JobID(stage, f.ID, "", true)
	err := r.drive(ctx, stage.Queue(), id, p)
	switch {
	case err == nil:
		rep.Completed++
		return
	case errors.Is(err, ErrPhaseTimeout):
		rep.TimedOut++
	default:
		rep.Failed++
	}
	rep.Errors = append(rep.Errors, err.Error())
	r.logger.Warn(ctx, "reconcile phase failed",
		logger.Uint64("fixture_id", f.ID),
		logger.String("queue", stage.Queue()),
		logger.String("job_id", id),
		logger.Error(err))
}

// drive clears a finished job with the same id, enqueues a fresh one and
// waits until it reaches a terminal state.
func (r *Reconciler) drive(ctx context.Context, q, id string, payload any) error {
	broker := r.producer.Broker()
	if job, err := broker.Get(ctx, q, id); err == nil && job.State.Terminal() {
		if err := broker.Clear(ctx, q, id); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			return fmt.Errorf("%s: clear: %w", id, err)
		}
	}
	if _, err := r.producer.Add(ctx, q, id, payload, 0); err != nil {
		return fmt.Errorf("%s: enqueue: %w", id, err)
	}
	return r.wait(ctx, q, id)
}

func (r *Reconciler) wait(ctx context.Context, q, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.phaseTimeout)
	defer cancel()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	broker := r.producer.Broker()
	for {
		job, err := broker.Get(ctx, q, id)
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			return nil
		case err != nil && ctx.Err() == nil:
			return fmt.Errorf("%s: %w", id, err)
		case err == nil && job.State == queue.StateCompleted:
			return nil
		case err == nil && job.State == queue.StateFailed:
			return fmt.Errorf("%w: %s: %s", ErrPhaseFailed, id, job.LastError)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrPhaseTimeout, id)
		case <-ticker.C:
		}
	}
}
