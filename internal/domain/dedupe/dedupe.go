// Package dedupe remembers which fixtures the scheduler sweep already
// planned in this process.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"
)

// Deduper records seen keys so repeated sweeps skip work they already did.
type Deduper interface {
	// SeenAndRecord reports whether key was seen and records it if not.
	SeenAndRecord(ctx context.Context, key string) bool
	// Unrecord forgets key so the next sweep retries it.
	Unrecord(ctx context.Context, key string)
	Size() int64
}

// Key identifies one planned calendar: a moved kickoff yields a new key.
func Key(fixtureID uint64, kickoff time.Time) string {
	return strconv.FormatUint(fixtureID, 10) + "@" + strconv.FormatInt(kickoff.Unix(), 10)
}

type entry struct {
	key  string
	seen time.Time
}

// inMemoryDeduper evicts the oldest key once maxSize is reached and treats
// keys older than ttl as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.index[key]; ok {
		e := el.Value.(*entry)
		if d.ttl <= 0 || now.Sub(e.seen) < d.ttl {
			return true
		}
		e.seen = now
		d.order.MoveToFront(el)
		return false
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.index[key] = d.order.PushFront(&entry{key: key, seen: now})
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[key]; ok {
		d.order.Remove(el)
		delete(d.index, key)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.index, el.Value.(*entry).key)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
