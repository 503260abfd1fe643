// Package feed maintains the home and top10 lists scraped from the front page of the feed source, and maps their
// items onto AniList in the background.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/resolver"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"time"
)

// Refresher scrapes the feed lists and queues their unmapped items for enrichment
type Refresher struct {
	http    httpclient.Doer
	store   cache.Store
	adapter source.FeedAdapter
	cfg     config.FeedConfig
}

func NewRefresher(doer httpclient.Doer, store cache.Store, adapter source.FeedAdapter, cfg config.FeedConfig) *Refresher {
	if cfg.HomePages < 1 {
		cfg.HomePages = 1
	}
	if cfg.HomeInterval <= 0 {
		cfg.HomeInterval = 15 * time.Minute
	}
	if cfg.Top10Interval <= 0 {
		cfg.Top10Interval = 6 * time.Hour
	}
	return &Refresher{http: doer, store: store, adapter: adapter, cfg: cfg}
}

// RefreshHome scrapes the latest release pages into the home list and returns the number of items queued
func (r *Refresher) RefreshHome(ctx context.Context) (int, error) {
	var scraped []domain.FeedItem
	for page := 1; page <= r.cfg.HomePages; page++ {
		doc, err := httpclient.GetDocument(ctx, r.http, r.adapter.LatestURL(page))
		if err != nil {
			if page == 1 {
				return 0, fmt.Errorf("scraping latest releases: %w", err)
			}
			log.Warn("Latest releases page failed", "page", page, "error", err)
			break
		}
		scraped = append(scraped, r.adapter.ParseLatest(doc)...)
	}
	return r.merge(ctx, domain.FeedHome, dedupe(scraped))
}

// RefreshTop10 scrapes the top10 ranking and returns the number of items queued
func (r *Refresher) RefreshTop10(ctx context.Context) (int, error) {
	doc, err := httpclient.GetDocument(ctx, r.http, r.adapter.Top10URL())
	if err != nil {
		return 0, fmt.Errorf("scraping top10: %w", err)
	}
	return r.merge(ctx, domain.FeedTop10, dedupe(r.adapter.ParseTop10(doc)))
}

// Run refreshes both lists immediately and then on their own intervals until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) {
	refresh := func(name domain.FeedName, fn func(context.Context) (int, error)) {
		queued, err := fn(ctx)
		if err != nil {
			log.Error("Feed refresh failed", "feed", name, "error", err)
			return
		}
		log.Info("Feed refreshed", "feed", name, "queued", queued)
	}

	refresh(domain.FeedHome, r.RefreshHome)
	refresh(domain.FeedTop10, r.RefreshTop10)

	home := time.NewTicker(r.cfg.HomeInterval)
	defer home.Stop()
	top10 := time.NewTicker(r.cfg.Top10Interval)
	defer top10.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-home.C:
			refresh(domain.FeedHome, r.RefreshHome)
		case <-top10.C:
			refresh(domain.FeedTop10, r.RefreshTop10)
		}
	}
}

// merge replaces the stored list with the scraped one.  Items that were already mapped keep their AniList data
// and take the scraped link, episode and rank.  Every item still unmapped is queued.
func (r *Refresher) merge(ctx context.Context, name domain.FeedName, scraped []domain.FeedItem) (int, error) {
	for i := range scraped {
		scraped[i].NormalizedSlug = resolver.NormalizeSlug(scraped[i].RawSlug)
	}

	var pending []domain.FeedItem
	err := r.store.Update(ctx, cache.Keys.Feed(string(name)), 0, func(current string, found bool) (string, error) {
		// Latest release links point at episode pages, so mapped items are also found by their normalized slug
		bySlug := map[string]domain.FeedItem{}
		byTitle := map[string]domain.FeedItem{}
		if found && current != "" {
			var items []domain.FeedItem
			if err := json.Unmarshal([]byte(current), &items); err != nil {
				log.Warn("Discarding unreadable feed list", "feed", name, "error", err)
			}
			for _, item := range items {
				if item.ID == nil {
					continue
				}
				bySlug[item.RawSlug] = item
				if item.NormalizedSlug != "" {
					byTitle[item.NormalizedSlug] = item
				}
			}
		}

		// Update may retry, so everything derived is rebuilt on every call
		pending = pending[:0]
		merged := make([]domain.FeedItem, 0, len(scraped))
		for _, item := range scraped {
			old, ok := bySlug[item.RawSlug]
			if !ok && item.NormalizedSlug != "" {
				old, ok = byTitle[item.NormalizedSlug]
			}
			if ok {
				old.RawSlug = item.RawSlug
				old.LastEpisode = item.LastEpisode
				old.Rank = item.Rank
				merged = append(merged, old)
				continue
			}
			merged = append(merged, item)
			pending = append(pending, item)
		}

		data, err := json.Marshal(merged)
		return string(data), err
	})
	if err != nil {
		return 0, fmt.Errorf("storing %s feed: %w", name, err)
	}

	if len(pending) == 0 {
		return 0, nil
	}
	jobs := make([]string, 0, len(pending))
	for _, item := range pending {
		data, err := json.Marshal(domain.EnrichmentJob{
			Feed:           name,
			RawSlug:        item.RawSlug,
			Title:          item.Title,
			Thumbnail:      item.Thumbnail,
			NormalizedSlug: item.NormalizedSlug,
			LastEpisode:    item.LastEpisode,
			Rank:           item.Rank,
		})
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, string(data))
	}
	if err := r.store.RPush(ctx, cache.Keys.EnrichmentQueue(), jobs...); err != nil {
		return 0, fmt.Errorf("queueing %s enrichment: %w", name, err)
	}
	return len(jobs), nil
}

// dedupe keeps the first item of every raw slug
func dedupe(items []domain.FeedItem) []domain.FeedItem {
	seen := make(map[string]bool, len(items))
	out := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if seen[item.RawSlug] {
			continue
		}
		seen[item.RawSlug] = true
		out = append(out, item)
	}
	return out
}
