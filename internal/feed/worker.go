package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/catalog"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"github.com/PizzaHomicide/otakuin/internal/resolver"
	"time"
)

// errItemGone is returned from an update when the list no longer carries the job's item
var errItemGone = errors.New("feed item no longer listed")

// Worker consumes the enrichment queue and writes AniList ids back into the feed lists
type Worker struct {
	store   cache.Store
	repo    domain.AnimeRepository
	catalog *catalog.Store
	cfg     config.WorkerConfig
}

func NewWorker(store cache.Store, repo domain.AnimeRepository, catalog *catalog.Store, cfg config.WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{store: store, repo: repo, catalog: catalog, cfg: cfg}
}

// Run processes jobs until ctx is cancelled.  An empty queue waits the poll interval, a failing queue the error
// backoff.
func (w *Worker) Run(ctx context.Context) error {
	log.Info("Enrichment worker started")
	for {
		processed, err := w.Step(ctx)
		if ctx.Err() != nil {
			log.Info("Enrichment worker stopped")
			return nil
		}

		var wait time.Duration
		switch {
		case err != nil:
			log.Error("Reading enrichment queue failed", "error", err)
			wait = w.cfg.ErrorBackoff
		case !processed:
			wait = w.cfg.PollInterval
		default:
			continue
		}

		if err := sleep(ctx, wait); err != nil {
			log.Info("Enrichment worker stopped")
			return nil
		}
	}
}

// Step pops and processes a single job.  It reports false when the queue was empty.  Failures of the job itself
// are logged and the job is dropped, only queue errors are returned.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	raw, ok, err := w.store.LPop(ctx, cache.Keys.EnrichmentQueue())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var job domain.EnrichmentJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Warn("Dropping malformed enrichment job", "error", err)
		metrics.EnrichmentJobs.WithLabelValues("failed").Inc()
		return true, nil
	}

	outcome, err := w.process(ctx, job)
	if err != nil {
		log.Warn("Enrichment job failed", "feed", job.Feed, "slug", job.RawSlug, "error", err)
		outcome = "failed"
	}
	metrics.EnrichmentJobs.WithLabelValues(outcome).Inc()
	return true, nil
}

func (w *Worker) process(ctx context.Context, job domain.EnrichmentJob) (string, error) {
	match, err := w.lookup(ctx, job)
	if err != nil {
		return "", err
	}
	if match == nil {
		log.Debug("No AniList match for feed item", "feed", job.Feed, "slug", job.NormalizedSlug)
		return "unmatched", nil
	}

	err = w.store.Update(ctx, cache.Keys.Feed(string(job.Feed)), 0, func(current string, found bool) (string, error) {
		if !found {
			return "", errItemGone
		}
		var items []domain.FeedItem
		if err := json.Unmarshal([]byte(current), &items); err != nil {
			return "", fmt.Errorf("decoding %s feed: %w", job.Feed, err)
		}

		updated := false
		for i := range items {
			if items[i].RawSlug != job.RawSlug {
				continue
			}
			id := match.ID
			items[i].ID = &id
			if match.AverageScore > 0 {
				rating := match.AverageScore
				items[i].Rating = &rating
			}
			if items[i].Thumbnail == "" {
				items[i].Thumbnail = match.CoverImage
			}
			updated = true
		}
		if !updated {
			return "", errItemGone
		}

		data, err := json.Marshal(items)
		return string(data), err
	})
	if errors.Is(err, errItemGone) {
		log.Debug("Feed item gone before enrichment", "feed", job.Feed, "slug", job.RawSlug)
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	log.Debug("Feed item enriched", "feed", job.Feed, "slug", job.RawSlug, "id", match.ID)
	return "matched", nil
}

// lookup prefers a manual samehadaku override for the item and falls back to an AniList search
func (w *Worker) lookup(ctx context.Context, job domain.EnrichmentJob) (*domain.AnimeSummary, error) {
	overrides, err := w.catalog.InvertedOverrides(ctx, domain.SourceSamehadaku)
	if err != nil {
		return nil, err
	}
	for slug, id := range overrides {
		if resolver.NormalizeSlug(slug) != job.NormalizedSlug {
			continue
		}
		anime, err := w.repo.GetAnimeByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, err
		}
		return &domain.AnimeSummary{
			ID:           anime.ID,
			Title:        anime.Title,
			CoverImage:   anime.CoverImage,
			AverageScore: anime.AverageScore,
			Episodes:     anime.Episodes,
			Status:       anime.Status,
		}, nil
	}

	if job.NormalizedSlug == "" {
		return nil, nil
	}
	return w.repo.FindBestMatch(ctx, job.NormalizedSlug)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
