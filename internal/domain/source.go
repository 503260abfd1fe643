package domain

// SourceName identifies a scraped streaming site
type SourceName string

const (
	SourceSamehadaku SourceName = "samehadaku"
	SourceNimegami   SourceName = "nimegami"
	SourceAnimasu    SourceName = "animasu"
)

// Sources lists every source in fallback order
var Sources = []SourceName{SourceSamehadaku, SourceNimegami, SourceAnimasu}

// ParseSource returns the named source, or false when the name is unknown
func ParseSource(name string) (SourceName, bool) {
	for _, s := range Sources {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// CatalogEntry is one title -> slug pair of a source's catalog
type CatalogEntry struct {
	Source SourceName `json:"source"`
	Title  string     `json:"title"`
	Slug   string     `json:"slug"`
}

// MatchMethod records which step of the resolution chain produced a match
type MatchMethod string

const (
	MatchManual                  MatchMethod = "manual"
	MatchRomaji                  MatchMethod = "romaji"
	MatchEnglish                 MatchMethod = "english"
	MatchNative                  MatchMethod = "native"
	MatchCharacterSimilarity     MatchMethod = "character_similarity"
	MatchHomeCache               MatchMethod = "home_cache"
	MatchHomeCharacterSimilarity MatchMethod = "home_character_similarity"
)

// Resolution is the slug a source uses for a canonical title
type Resolution struct {
	Source     SourceName  `json:"source"`
	Slug       string      `json:"slug"`
	SlugTitle  string      `json:"slug_title"`
	Method     MatchMethod `json:"method"`
	Confidence float64     `json:"confidence"`
}

// Episode is one entry of an episode listing.  Locator is a page URL or an opaque provider payload, depending on
// the source.
type Episode struct {
	Number  float64 `json:"episode"`
	Title   string  `json:"title"`
	Locator string  `json:"locator"`
}

// Embed is a playable video reference extracted from an episode page
type Embed struct {
	Server     string `json:"server"`
	URL        string `json:"url"`
	Resolution string `json:"resolution,omitempty"`
}
