// Package catalog stores the slug catalogs, operator overrides and the home title index.
package catalog

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"sort"
	"strconv"
)

// writeBatch caps the fields of a single HSet
const writeBatch = 500

type Store struct {
	store cache.Store
}

func NewStore(store cache.Store) *Store {
	return &Store{store: store}
}

// Entries returns the catalog of a source ordered by title
func (s *Store) Entries(ctx context.Context, source domain.SourceName) ([]domain.CatalogEntry, error) {
	fields, err := s.store.HGetAll(ctx, cache.Keys.Catalog(string(source)))
	if err != nil {
		return nil, fmt.Errorf("reading %s catalog: %w", source, err)
	}

	entries := make([]domain.CatalogEntry, 0, len(fields))
	for title, slug := range fields {
		entries = append(entries, domain.CatalogEntry{Source: source, Title: title, Slug: slug})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Title < entries[j].Title })
	return entries, nil
}

// Count returns the number of distinct titles in the catalog of a source
func (s *Store) Count(ctx context.Context, source domain.SourceName) (int, error) {
	fields, err := s.store.HGetAll(ctx, cache.Keys.Catalog(string(source)))
	if err != nil {
		return 0, fmt.Errorf("reading %s catalog: %w", source, err)
	}
	return len(fields), nil
}

// Clear drops the catalog of a source
func (s *Store) Clear(ctx context.Context, source domain.SourceName) error {
	return s.store.Delete(ctx, cache.Keys.Catalog(string(source)))
}

// Add writes entries into the catalog of a source.  A title already present takes the new slug.
func (s *Store) Add(ctx context.Context, source domain.SourceName, entries []domain.CatalogEntry) error {
	key := cache.Keys.Catalog(string(source))
	batch := make(map[string]string, min(len(entries), writeBatch))
	for _, e := range entries {
		batch[e.Title] = e.Slug
		if len(batch) == writeBatch {
			if err := s.store.HSet(ctx, key, batch); err != nil {
				return fmt.Errorf("writing %s catalog: %w", source, err)
			}
			batch = make(map[string]string, writeBatch)
		}
	}
	if len(batch) > 0 {
		if err := s.store.HSet(ctx, key, batch); err != nil {
			return fmt.Errorf("writing %s catalog: %w", source, err)
		}
	}
	return nil
}

// Override returns the operator mapped slug of a title on a source, or "" when there is none
func (s *Store) Override(ctx context.Context, source domain.SourceName, id int) (string, error) {
	slug, _, err := s.store.HGet(ctx, cache.Keys.Overrides(string(source)), strconv.Itoa(id))
	if err != nil {
		return "", fmt.Errorf("reading %s overrides: %w", source, err)
	}
	return slug, nil
}

func (s *Store) SetOverride(ctx context.Context, source domain.SourceName, id int, slug string) error {
	return s.store.HSet(ctx, cache.Keys.Overrides(string(source)), map[string]string{strconv.Itoa(id): slug})
}

// SyncOverrides writes a full override file, keyed by source then AniList id
func (s *Store) SyncOverrides(ctx context.Context, overrides map[domain.SourceName]map[int]string) (int, error) {
	written := 0
	for source, mapping := range overrides {
		if len(mapping) == 0 {
			continue
		}
		fields := make(map[string]string, len(mapping))
		for id, slug := range mapping {
			fields[strconv.Itoa(id)] = slug
		}
		if err := s.store.HSet(ctx, cache.Keys.Overrides(string(source)), fields); err != nil {
			return written, fmt.Errorf("writing %s overrides: %w", source, err)
		}
		written += len(fields)
	}
	return written, nil
}

// InvertedOverrides maps the override slugs of a source back to their AniList ids
func (s *Store) InvertedOverrides(ctx context.Context, source domain.SourceName) (map[string]int, error) {
	fields, err := s.store.HGetAll(ctx, cache.Keys.Overrides(string(source)))
	if err != nil {
		return nil, fmt.Errorf("reading %s overrides: %w", source, err)
	}
	inverted := make(map[string]int, len(fields))
	for idStr, slug := range fields {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		inverted[slug] = id
	}
	return inverted, nil
}

// HomeTitle returns the title the home list carries for an AniList id, or "" when the id is not listed
func (s *Store) HomeTitle(ctx context.Context, id int) (string, error) {
	items, err := s.Feed(ctx, domain.FeedHome)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if item.ID != nil && *item.ID == id {
			return item.Title, nil
		}
	}
	return "", nil
}

// Feed returns the home or top10 list, empty when it has not been scraped yet
func (s *Store) Feed(ctx context.Context, name domain.FeedName) ([]domain.FeedItem, error) {
	items, _, err := cache.GetJSON[[]domain.FeedItem](ctx, s.store, cache.Keys.Feed(string(name)))
	if err != nil {
		return nil, fmt.Errorf("reading %s feed: %w", name, err)
	}
	if items == nil {
		items = []domain.FeedItem{}
	}
	return items, nil
}
