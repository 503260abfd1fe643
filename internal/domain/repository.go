package domain

import "context"

// AnimeRepository defines the interface for canonical metadata access
type AnimeRepository interface {
	// GetAnimeByID returns the metadata of a single title, or ErrNotFound
	GetAnimeByID(ctx context.Context, id int) (*Anime, error)

	// SearchAnime runs a free text search
	SearchAnime(ctx context.Context, query string, page int) (*AnimePage, error)

	// AnimeByGenre lists titles of a genre, most popular first
	AnimeByGenre(ctx context.Context, genre string, page int) (*AnimePage, error)

	// FindBestMatch maps a scraped title onto the closest canonical entry, or returns nil when nothing is close
	FindBestMatch(ctx context.Context, search string) (*AnimeSummary, error)
}
