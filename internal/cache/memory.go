package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single node deployments and tests
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*memEntry
}

type memEntry struct {
	value   string
	hash    map[string]string
	list    []string
	expires time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces the wall clock used for expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:     time.Now,
		entries: make(map[string]*memEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the entry for key, dropping it first if it expired.  Callers hold mu.
func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil && e.hash == nil && e.list == nil {
		return e.value, true, nil
	}
	return "", false, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memEntry{value: value, expires: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetMany(_ context.Context, values map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.expiry(ttl)
	for k, v := range values {
		s.entries[k] = &memEntry{value: v, expires: expires}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if e := s.live(key); e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		v, ok := e.hash[field]
		return v, ok, nil
	}
	return "", false, nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.hash == nil {
		e = &memEntry{hash: make(map[string]string)}
		s.entries[key] = e
	}
	for k, v := range values {
		e.hash[k] = v
	}
	return nil
}

func (s *MemoryStore) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.list == nil {
		e = &memEntry{list: []string{}}
		s.entries[key] = e
	}
	e.list = append(e.list, values...)
	return nil
}

func (s *MemoryStore) LPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || len(e.list) == 0 {
		return "", false, nil
	}
	v := e.list[0]
	e.list = e.list[1:]
	if len(e.list) == 0 {
		delete(s.entries, key)
	}
	return v, true, nil
}

// Update holds the store lock for the whole read-modify-write, so it never conflicts
func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := "", false
	if e := s.live(key); e != nil && e.hash == nil && e.list == nil {
		current, found = e.value, true
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}
	s.entries[key] = &memEntry{value: next, expires: s.expiry(ttl)}
	return nil
}
