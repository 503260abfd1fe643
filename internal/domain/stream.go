package domain

// StreamRef is an embed with its raw URL replaced by an opaque stream token
type StreamRef struct {
	Server     string `json:"server"`
	Resolution string `json:"resolution"`
	StreamID   string `json:"stream_id"`
}

// SourceInfo reports how a single source was resolved for an episode request.  Every field is null when the
// source did not resolve.
type SourceInfo struct {
	FoundSlugTitle *string      `json:"found_slug_title"`
	FoundSlug      *string      `json:"found_slug"`
	EpisodeURL     *string      `json:"episode_url"`
	MatchMethod    *MatchMethod `json:"match_method"`
}

// EpisodeStreams is the aggregate answer to an episode request
type EpisodeStreams struct {
	AnimeID int                        `json:"anilist_id"`
	Episode float64                    `json:"episode"`
	Sources map[SourceName]SourceInfo  `json:"sources"`
	Streams map[SourceName][]StreamRef `json:"streams"`
}
