package anilist

import (
	"context"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"time"
)

// CachedRepository keeps canonical metadata in the shared store.  Searches pass straight through.
type CachedRepository struct {
	domain.AnimeRepository
	store cache.Store
	ttl   time.Duration
}

func NewCachedRepository(repo domain.AnimeRepository, store cache.Store, ttl time.Duration) *CachedRepository {
	return &CachedRepository{AnimeRepository: repo, store: store, ttl: ttl}
}

func (r *CachedRepository) GetAnimeByID(ctx context.Context, id int) (*domain.Anime, error) {
	key := cache.Keys.Metadata(id)
	if cached, ok, err := cache.GetJSON[domain.Anime](ctx, r.store, key); err != nil {
		log.Warn("Unable to read cached metadata", "id", id, "error", err)
	} else if ok {
		return &cached, nil
	}

	anime, err := r.AnimeRepository.GetAnimeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, r.store, key, anime, r.ttl); err != nil {
		log.Warn("Unable to cache metadata", "id", id, "error", err)
	}
	return anime, nil
}
