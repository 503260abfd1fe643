package cache

import (
	"sync"
	"time"
)

// TTLCache is a bounded in-process memo.  When full, expired entries are dropped first and then the oldest insert.
type TTLCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	seq     uint64
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
	seq     uint64
}

func NewTTLCache[V any](ttl time.Duration, max int) *TTLCache[V] {
	if max <= 0 {
		max = 1
	}
	return &TTLCache[V]{
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[string]ttlEntry[V]),
	}
}

// SetClock replaces the wall clock used for expiry
func (c *TTLCache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evict()
	}
	c.seq++
	c.entries[key] = ttlEntry[V]{value: value, expires: c.now().Add(c.ttl), seq: c.seq}
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict makes room for one entry.  Callers hold mu.
func (c *TTLCache[V]) evict() {
	now := c.now()
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if !found || e.seq < oldestSeq {
			oldestKey, oldestSeq, found = k, e.seq, true
		}
	}
	if found && len(c.entries) >= c.max {
		delete(c.entries, oldestKey)
	}
}
