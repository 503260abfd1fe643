// Package stream hides raw stream URLs behind expiring tokens and proxies playback of those tokens.
package stream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"time"
)

const tokenBytes = 6

// Issuer mints stream tokens
type Issuer struct {
	store cache.Store
	ttl   time.Duration
}

func NewIssuer(store cache.Store, ttl time.Duration) *Issuer {
	return &Issuer{store: store, ttl: ttl}
}

// Issue mints one token per embed with a URL and stores every token in a single write
func (i *Issuer) Issue(ctx context.Context, embeds []domain.Embed) ([]domain.StreamRef, error) {
	refs := make([]domain.StreamRef, 0, len(embeds))
	values := make(map[string]string, len(embeds))

	for _, e := range embeds {
		if e.URL == "" {
			continue
		}
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		values[cache.Keys.Stream(token)] = e.URL

		resolution := e.Resolution
		if resolution == "" {
			resolution = "default"
		}
		refs = append(refs, domain.StreamRef{Server: e.Server, Resolution: resolution, StreamID: token})
	}

	if len(values) == 0 {
		return refs, nil
	}
	if err := i.store.SetMany(ctx, values, i.ttl); err != nil {
		return nil, fmt.Errorf("storing stream tokens: %w", err)
	}
	metrics.TokensIssued.Add(float64(len(values)))
	return refs, nil
}

// Lookup returns the URL behind a token, or ErrTokenExpired
func (i *Issuer) Lookup(ctx context.Context, token string) (string, error) {
	u, ok, err := i.store.Get(ctx, cache.Keys.Stream(token))
	if err != nil {
		return "", fmt.Errorf("reading stream token: %w", err)
	}
	if !ok {
		return "", domain.ErrTokenExpired
	}
	return u, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating stream token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
