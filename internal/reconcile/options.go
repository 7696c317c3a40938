package reconcile

import "time"

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPollInterval sets how often a phase checks its job.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithPhaseTimeout bounds the wait for one phase job.
func WithPhaseTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.phaseTimeout = d
		}
	}
}

// WithLimit caps the fixtures examined per run.
func WithLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBudget bounds how long one run may keep starting fixtures. Zero
// leaves the run unbounded.
func WithBudget(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.budget = d
		}
	}
}
