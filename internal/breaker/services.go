// Package breaker guards upstream dependencies and queues.
//
// Service breakers stop calling a failing dependency for a cooldown and keep
// their state in the database, so a restart does not forget an outage. Queue
// breakers pause a whole stage queue while its upstream keeps rate limiting.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/matchday/internal/domain/failure"
	"github.com/okian/matchday/internal/domain/types"
	"github.com/okian/matchday/pkg/logger"
	"github.com/okian/matchday/pkg/metrics"
	"github.com/sony/gobreaker/v2"
)

// Sentinel kinds for breaker rejections.
var (
	ErrOpen        = errors.New("circuit breaker is open")
	ErrProbeInUse  = errors.New("circuit breaker probe already in flight")
	ErrUnavailable = errors.New("circuit breaker state unavailable")
)

// Settings tune every service breaker.
type Settings struct {
	// FailureThreshold is the consecutive failure count that opens a breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker refuses calls.
	Cooldown time.Duration
	// Probes is the number of trial calls allowed while half-open.
	Probes int
	// Interval clears closed-state counts periodically; zero never clears.
	Interval time.Duration
}

type serviceBreaker struct {
	cb     *gobreaker.DistributedCircuitBreaker[struct{}]
	probes chan struct{}
}

// Services is the registry of persisted service breakers keyed by
// dependency name.
type Services struct {
	settings Settings
	shared   *sharedStore
	store    Store
	logger   logger.Logger

	mu       sync.Mutex
	breakers map[string]*serviceBreaker
}

// NewServices creates the registry. Breakers are created on first use.
func NewServices(store Store, s Settings) *Services {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.Probes < 1 {
		s.Probes = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = time.Minute
	}
	return &Services{
		settings: s,
		shared:   newSharedStore(store, uuid.NewString()),
		store:    store,
		logger:   logger.Named("breaker"),
		breakers: make(map[string]*serviceBreaker),
	}
}

func (s *Services) get(name string) (*serviceBreaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b, nil
	}
	threshold := uint32(s.settings.FailureThreshold) //nolint:gosec // validated positive
	cb, err := gobreaker.NewDistributedCircuitBreaker[struct{}](s.shared, gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(s.settings.Probes), //nolint:gosec // validated positive
		Interval:    s.settings.Interval,
		Timeout:     s.settings.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || failure.IsExpected(err)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			s.logger.Warn(context.Background(), "breaker state changed",
				logger.String("dependency", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	if err != nil {
		return nil, err
	}
	b := &serviceBreaker{cb: cb, probes: make(chan struct{}, s.settings.Probes)}
	s.breakers[name] = b
	return b, nil
}

// Do runs fn behind the breaker for dependency name. An open breaker refuses
// the call with a breaker-open failure before fn runs. The outcome of fn is
// recorded after it returns, so slow calls do not hold the shared lock.
func (s *Services) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	const op = "breaker.do"
	b, err := s.get(name)
	if err != nil {
		return failure.Transient(op, fmt.Errorf("%s: %w: %w", name, ErrUnavailable, err))
	}
	state, err := b.cb.State()
	if err != nil {
		return failure.Transient(op, fmt.Errorf("%s: %w: %w", name, ErrUnavailable, err))
	}
	metrics.UpdateBreakerState(name, int(state))

	switch state {
	case gobreaker.StateOpen:
		metrics.RecordBreakerRejection(name)
		return failure.BreakerOpen(op, fmt.Errorf("%s: %w", name, ErrOpen))
	case gobreaker.StateHalfOpen:
		select {
		case b.probes <- struct{}{}:
			defer func() { <-b.probes }()
		default:
			metrics.RecordBreakerRejection(name)
			return failure.BreakerOpen(op, fmt.Errorf("%s: %w", name, ErrProbeInUse))
		}
	}

	callErr := fn(ctx)
	_, recErr := b.cb.Execute(func() (struct{}, error) { return struct{}{}, callErr })
	if recErr != nil && recErr != callErr && //nolint:errorlint // identity check against the recorded error
		!errors.Is(recErr, gobreaker.ErrOpenState) && !errors.Is(recErr, gobreaker.ErrTooManyRequests) {
		s.logger.Warn(ctx, "breaker outcome not recorded",
			logger.String("dependency", name),
			logger.Error(recErr))
	}
	return callErr
}

// Status lists every persisted breaker.
func (s *Services) Status(ctx context.Context) ([]types.ServiceBreaker, error) {
	rows, err := s.store.ListBreakers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ServiceBreaker, len(rows))
	for i, r := range rows {
		out[i] = types.ServiceBreaker{
			Name:                r.Name,
			State:               r.State,
			ConsecutiveFailures: r.ConsecutiveFailures,
			TotalFailures:       r.TotalFailures,
			TotalSuccesses:      r.TotalSuccesses,
			LastFailureAt:       r.LastFailureAt,
		}
	}
	return out, nil
}

// Reset closes the breaker for name and clears its counts. The stored
// state keeps its bucket layout so the breaker can load it again.
func (s *Services) Reset(ctx context.Context, name string) error {
	key := stateKeyPrefix + name
	if err := s.shared.Lock(mutexKeyPrefix + name); err != nil {
		return err
	}
	defer func() { _ = s.shared.Unlock(mutexKeyPrefix + name) }()

	var st gobreaker.SharedState
	data, err := s.shared.GetData(key)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decode breaker state: %w", err)
		}
	}
	st = closedState(st, s.settings.Interval, time.Now())

	data, err = json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.shared.SetData(key, data); err != nil {
		return err
	}
	metrics.UpdateBreakerState(name, int(gobreaker.StateClosed))
	s.logger.Info(ctx, "breaker reset", logger.String("dependency", name))
	return nil
}

// closedState returns st moved to a fresh closed generation with zeroed
// counts and at least one bucket.
func closedState(st gobreaker.SharedState, interval time.Duration, now time.Time) gobreaker.SharedState {
	n := max(len(st.Buckets), 1)
	out := gobreaker.SharedState{
		State:      gobreaker.StateClosed,
		Generation: st.Generation + 1,
		Buckets:    make([]gobreaker.Counts, n),
		Start:      now,
	}
	if interval > 0 && n < 2 {
		out.Expiry = now.Add(interval)
	}
	return out
}
