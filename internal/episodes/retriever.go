// Package episodes fetches and normalizes the episode listing of a resolved slug.
package episodes

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"github.com/PuerkitoBio/goquery"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

type Retriever struct {
	http  httpclient.Doer
	store cache.Store
	ttl   time.Duration
}

// NewRetriever creates a retriever caching non-empty listings for ttl
func NewRetriever(doer httpclient.Doer, store cache.Store, ttl time.Duration) *Retriever {
	return &Retriever{http: doer, store: store, ttl: ttl}
}

// Get returns the listing of slug on the adapter's source, sorted by episode number descending.  A slug that
// redirects to a different title yields an empty listing with ErrStaleRedirect.
func (r *Retriever) Get(ctx context.Context, id int, adapter source.Adapter, slug string) ([]domain.Episode, error) {
	key := cache.Keys.EpisodeList(id, string(adapter.Name()))
	if cached, ok, err := cache.GetJSON[[]domain.Episode](ctx, r.store, key); err != nil {
		log.Warn("Unable to read cached episode list", "key", key, "error", err)
	} else if ok {
		return cached, nil
	}

	listingURL := adapter.ListingURL(slug)
	doc, err := r.fetch(ctx, listingURL)
	if err != nil {
		log.Warn("Episode list fetch failed", "source", adapter.Name(), "url", listingURL, "error", err)
		return nil, err
	}

	episodes := Normalize(adapter.ParseEpisodes(doc))
	log.Debug("Fetched episode list", "source", adapter.Name(), "slug", slug, "episodes", len(episodes))

	if len(episodes) > 0 {
		if err := cache.SetJSON(ctx, r.store, key, episodes, r.ttl); err != nil {
			log.Warn("Unable to cache episode list", "key", key, "error", err)
		}
	}

	return episodes, nil
}

func (r *Retriever) fetch(ctx context.Context, listingURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", listingURL, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{URL: listingURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{URL: listingURL, StatusCode: resp.StatusCode}
	}

	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); !sameTarget(listingURL, final) {
			return nil, fmt.Errorf("%s redirected to %s: %w", listingURL, final, domain.ErrStaleRedirect)
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{URL: listingURL, Err: err}
	}
	return doc, nil
}

// sameTarget compares the last path segment of the requested and final URLs
func sameTarget(requested, final string) bool {
	return lastSegment(requested) == lastSegment(final)
}

func lastSegment(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// Normalize drops non-positive and duplicate episode numbers, keeping the first occurrence, and sorts the rest
// descending
func Normalize(episodes []domain.Episode) []domain.Episode {
	seen := make(map[float64]bool, len(episodes))
	out := make([]domain.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Number <= 0 || seen[ep.Number] {
			continue
		}
		seen[ep.Number] = true
		out = append(out, ep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out
}
