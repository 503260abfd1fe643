package domain

// FeedName identifies a list maintained from the samehadaku front page
type FeedName string

const (
	FeedHome  FeedName = "home"
	FeedTop10 FeedName = "top10"
)

// FeedItem is an element of the home or top10 list.  ID is nil until the enrichment worker maps the item onto
// AniList.
type FeedItem struct {
	ID             *int    `json:"id"`
	Title          string  `json:"title"`
	Thumbnail      string  `json:"thumbnail"`
	Rating         *int    `json:"rating"`
	RawSlug        string  `json:"rawSlug"`
	NormalizedSlug string  `json:"normalizedSlug"`
	LastEpisode    *string `json:"last_episode,omitempty"`
	Rank           *int    `json:"rank,omitempty"`
}

// EnrichmentJob asks the worker to map one scraped feed item onto AniList
type EnrichmentJob struct {
	Feed           FeedName `json:"source"`
	RawSlug        string   `json:"rawSlug"`
	Title          string   `json:"title"`
	Thumbnail      string   `json:"thumbnail"`
	NormalizedSlug string   `json:"normalizedSlug"`
	LastEpisode    *string  `json:"last_episode,omitempty"`
	Rank           *int     `json:"rank,omitempty"`
}
