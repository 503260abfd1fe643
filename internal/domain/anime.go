package domain

// Anime is the canonical metadata of a title as supplied by AniList
type Anime struct {
	ID           int        `json:"id"`
	Title        AnimeTitle `json:"title"`
	Status       string     `json:"status"`
	Description  string     `json:"description"`
	StartDate    FuzzyDate  `json:"startDate"`
	EndDate      FuzzyDate  `json:"endDate"`
	SeasonYear   int        `json:"seasonYear"`
	Episodes     int        `json:"episodes"`
	Duration     int        `json:"duration"`
	Trailer      *Trailer   `json:"trailer,omitempty"`
	CoverImage   string     `json:"coverImage"`
	BannerImage  string     `json:"bannerImage"`
	Genres       []string   `json:"genres"`
	AverageScore int        `json:"averageScore"`
	Studios      []string   `json:"studios"`
}

// AnimeTitle contains various versions of the anime title
type AnimeTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// Preferred returns the first non-empty title in romaji, english, native order
func (t AnimeTitle) Preferred() string {
	switch {
	case t.Romaji != "":
		return t.Romaji
	case t.English != "":
		return t.English
	default:
		return t.Native
	}
}

// FuzzyDate represents a date that might be incomplete (missing day or month)
type FuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Trailer points at a promotional video on an external site
type Trailer struct {
	ID        string `json:"id"`
	Site      string `json:"site"`
	Thumbnail string `json:"thumbnail"`
}

// AnimeSummary is a single row of a search or genre listing
type AnimeSummary struct {
	ID           int        `json:"id"`
	Title        AnimeTitle `json:"title"`
	CoverImage   string     `json:"coverImage"`
	AverageScore int        `json:"averageScore"`
	Format       string     `json:"format"`
	Episodes     int        `json:"episodes"`
	Status       string     `json:"status"`
}

// PageInfo describes pagination of a listing
type PageInfo struct {
	Total       int  `json:"total"`
	CurrentPage int  `json:"currentPage"`
	LastPage    int  `json:"lastPage"`
	HasNextPage bool `json:"hasNextPage"`
}

// AnimePage is one page of summaries
type AnimePage struct {
	PageInfo PageInfo       `json:"pageInfo"`
	Media    []AnimeSummary `json:"media"`
}

// AnimeDetail is the canonical metadata merged with the first non-empty episode listing of any source
type AnimeDetail struct {
	*Anime
	EpisodeSource SourceName `json:"episode_source,omitempty"`
	EpisodeList   []Episode  `json:"episode_list"`
}
