// Package cache holds the shared TTL store used by every component, plus the key layout and an in-process memo.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the shared key/value store.  A ttl of zero means the entry does not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetMany writes every pair with the same ttl in one round trip
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, values map[string]string) error

	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, bool, error)

	// Update is a read-modify-write of a string entry that retries when another writer changed the key in between
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}

// UpdateFunc receives the current value of a key and returns the value to store
type UpdateFunc func(current string, found bool) (string, error)

// GetJSON reads and decodes a JSON entry
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes and writes a JSON entry
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}
