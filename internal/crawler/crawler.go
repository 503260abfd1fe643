// Package crawler rebuilds the slug catalog of every source from its alphabetical listing.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/catalog"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"golang.org/x/sync/errgroup"
	"time"
)

// Crawler walks catalog pages in concurrent batches
type Crawler struct {
	http    httpclient.Doer
	catalog *catalog.Store
	cfg     config.CrawlerConfig
}

func New(doer httpclient.Doer, catalog *catalog.Store, cfg config.CrawlerConfig) *Crawler {
	if cfg.PagesPerBatch < 1 {
		cfg.PagesPerBatch = 1
	}
	return &Crawler{http: doer, catalog: catalog, cfg: cfg}
}

// pageResult is the outcome of one catalog page.  Each goroutine writes only its own slot.
type pageResult struct {
	entries []domain.CatalogEntry
	err     error
}

// Crawl clears the catalog of the adapter's source and rebuilds it.  Pages are fetched in batches until a batch
// holds an empty or failed page, or the page limit is reached.  It returns the number of distinct titles stored.
func (c *Crawler) Crawl(ctx context.Context, adapter source.Adapter) (int, error) {
	name := adapter.Name()
	log.Info("Starting catalog crawl", "source", name)
	start := time.Now()

	if err := c.catalog.Clear(ctx, name); err != nil {
		return 0, err
	}

	total := 0
	for first := 1; ; first += c.cfg.PagesPerBatch {
		last := first + c.cfg.PagesPerBatch - 1
		if c.cfg.MaxPages > 0 {
			last = min(last, c.cfg.MaxPages)
		}

		results := c.fetchBatch(ctx, adapter, first, last)

		done := last == c.cfg.MaxPages
		for i, res := range results {
			page := first + i
			switch {
			case res.err != nil:
				log.Warn("Catalog page failed", "source", name, "page", page, "error", res.err)
				if page == 1 {
					return 0, fmt.Errorf("crawling %s: %w", name, res.err)
				}
				done = true
				continue
			case len(res.entries) == 0:
				log.Debug("Catalog page empty", "source", name, "page", page)
				done = true
				continue
			}

			if err := c.catalog.Add(ctx, name, res.entries); err != nil {
				return total, err
			}
			total += len(res.entries)
		}

		log.Debug("Catalog batch done", "source", name, "from", first, "to", last, "entries", total)
		if done {
			break
		}
		if err := sleep(ctx, c.cfg.BatchDelay); err != nil {
			return total, err
		}
	}

	// Titles repeated across pages collapse into one entry
	stored, err := c.catalog.Count(ctx, name)
	if err != nil {
		return total, err
	}
	metrics.CatalogEntries.WithLabelValues(string(name)).Set(float64(stored))
	log.Info("Catalog crawl finished", "source", name, "entries", stored, "parsed", total, "duration", time.Since(start))
	return stored, nil
}

func (c *Crawler) fetchBatch(ctx context.Context, adapter source.Adapter, first, last int) []pageResult {
	results := make([]pageResult, last-first+1)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			doc, err := httpclient.GetDocument(ctx, c.http, adapter.CatalogPageURL(first+i))
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].entries = adapter.ParseCatalog(doc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CrawlAll crawls the adapters one after the other.  A failing source does not stop the others, every failure
// is returned joined.
func (c *Crawler) CrawlAll(ctx context.Context, adapters []source.Adapter) (map[domain.SourceName]int, error) {
	counts := make(map[domain.SourceName]int, len(adapters))
	var errs []error
	for i, adapter := range adapters {
		if i > 0 {
			if err := sleep(ctx, c.cfg.SourceDelay); err != nil {
				return counts, err
			}
		}

		n, err := c.Crawl(ctx, adapter)
		counts[adapter.Name()] = n
		if err != nil {
			log.Error("Catalog crawl failed", "source", adapter.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return counts, errors.Join(errs...)
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
