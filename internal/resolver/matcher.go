package resolver

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
)

// CatalogReader is the view of the stores the matcher needs
type CatalogReader interface {
	Entries(ctx context.Context, source domain.SourceName) ([]domain.CatalogEntry, error)
	Override(ctx context.Context, source domain.SourceName, id int) (string, error)
	HomeTitle(ctx context.Context, id int) (string, error)
}

// Matcher resolves a canonical title against the stored catalog of a source
type Matcher struct {
	engine  Engine
	catalog CatalogReader
}

func NewMatcher(engine Engine, catalog CatalogReader) *Matcher {
	return &Matcher{engine: engine, catalog: catalog}
}

// Match returns the resolution for one source, or nil when the source does not carry the title
func (m *Matcher) Match(ctx context.Context, source domain.SourceName, anime *domain.Anime) (*domain.Resolution, error) {
	override, err := m.catalog.Override(ctx, source, anime.ID)
	if err != nil {
		return nil, fmt.Errorf("loading override for %s: %w", source, err)
	}

	q := Query{Source: source, Titles: anime.Title, Override: override}

	var entries []domain.CatalogEntry
	if override == "" {
		if entries, err = m.catalog.Entries(ctx, source); err != nil {
			return nil, fmt.Errorf("loading %s catalog: %w", source, err)
		}
		if q.HomeTitle, err = m.catalog.HomeTitle(ctx, anime.ID); err != nil {
			// The home title only widens the search, a failure to read it is not fatal
			log.Warn("Unable to read home title", "id", anime.ID, "error", err)
		}
	}

	res := m.engine.Resolve(q, entries)
	if res == nil {
		metrics.Resolutions.WithLabelValues(string(source), "none").Inc()
		log.Debug("No slug resolved", "source", source, "id", anime.ID, "catalog_size", len(entries))
		return nil, nil
	}

	metrics.Resolutions.WithLabelValues(string(source), string(res.Method)).Inc()
	log.Debug("Resolved slug", "source", source, "id", anime.ID, "slug", res.Slug, "method", res.Method,
		"confidence", res.Confidence)
	return res, nil
}
