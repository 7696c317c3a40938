package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/matchday/internal/adapters/repository"
	"github.com/okian/matchday/internal/domain/model"
	"github.com/sony/gobreaker/v2"
)

// Key prefixes the breaker library puts in front of the breaker name.
const (
	mutexKeyPrefix = "gobreaker:mutex:"
	stateKeyPrefix = "gobreaker:state:"
)

const (
	leaseTTL     = 10 * time.Second
	lockWait     = 3 * time.Second
	lockRetry    = 25 * time.Millisecond
	storeTimeout = 5 * time.Second
)

// Store is the persistence behind the service breakers.
type Store interface {
	AcquireBreakerLock(ctx context.Context, name, owner string, ttl time.Duration) error
	ReleaseBreakerLock(ctx context.Context, name, owner string) error
	BreakerData(ctx context.Context, name string) ([]byte, error)
	SaveBreakerData(ctx context.Context, name string, data []byte, c repository.BreakerCounters) error
	ListBreakers(ctx context.Context) ([]model.BreakerState, error)
}

// sharedStore adapts Store to gobreaker.SharedDataStore. A per-name mutex
// serializes goroutines of this process; the row lease serializes processes.
type sharedStore struct {
	store Store
	owner string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSharedStore(store Store, owner string) *sharedStore {
	return &sharedStore{store: store, owner: owner, locks: make(map[string]*sync.Mutex)}
}

func (s *sharedStore) local(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	return m
}

func (s *sharedStore) Lock(key string) error {
	name := strings.TrimPrefix(key, mutexKeyPrefix)
	m := s.local(name)
	m.Lock()

	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()
	for {
		err := s.store.AcquireBreakerLock(ctx, name, s.owner, leaseTTL)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrLocked) {
			m.Unlock()
			return err
		}
		select {
		case <-ctx.Done():
			m.Unlock()
			return fmt.Errorf("breaker %s: %w", name, repository.ErrLocked)
		case <-time.After(lockRetry):
		}
	}
}

func (s *sharedStore) Unlock(key string) error {
	name := strings.TrimPrefix(key, mutexKeyPrefix)
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := s.store.ReleaseBreakerLock(ctx, name, s.owner)
	s.local(name).Unlock()
	return err
}

func (s *sharedStore) GetData(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.store.BreakerData(ctx, strings.TrimPrefix(key, stateKeyPrefix))
}

func (s *sharedStore) SetData(key string, data []byte) error {
	var st gobreaker.SharedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode breaker state: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.store.SaveBreakerData(ctx, strings.TrimPrefix(key, stateKeyPrefix), data, repository.BreakerCounters{
		State:               st.State.String(),
		ConsecutiveFailures: st.Counts.ConsecutiveFailures,
		TotalFailures:       st.Counts.TotalFailures,
		TotalSuccesses:      st.Counts.TotalSuccesses,
	})
}
