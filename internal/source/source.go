// Package source isolates the page layout of every scraped site behind the Adapter interface.
package source

import (
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PuerkitoBio/goquery"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Adapter knows the URL conventions and selectors of one source
type Adapter interface {
	Name() domain.SourceName

	// ListingURL is the page listing every episode of the title behind slug
	ListingURL(slug string) string
	ParseEpisodes(doc *goquery.Document) []domain.Episode
	// EpisodeLocator finds the locator of episode n, using the listing when the source needs one
	EpisodeLocator(slug string, n float64, listing []domain.Episode) (string, bool)
	EmbedSource(locator string) extract.EmbedSource

	// CatalogPageURL is page n (1 based) of the alphabetical catalog
	CatalogPageURL(page int) string
	ParseCatalog(doc *goquery.Document) []domain.CatalogEntry
}

// FallbackLocator is implemented by sources whose episode pages can be addressed without a listing.  It is only
// used for manually mapped slugs, which may not be in any catalog.
type FallbackLocator interface {
	FallbackLocator(slug string, n float64) string
}

// FeedAdapter is implemented by the source whose front page drives the home and top10 lists
type FeedAdapter interface {
	LatestURL(page int) string
	ParseLatest(doc *goquery.Document) []domain.FeedItem
	Top10URL() string
	ParseTop10(doc *goquery.Document) []domain.FeedItem
}

// Registry holds the adapters in fallback order
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds every adapter from the configured base URLs
func NewRegistry(cfg config.SourcesConfig) *Registry {
	return &Registry{adapters: []Adapter{
		NewSamehadaku(cfg.Samehadaku),
		NewNimegami(cfg.Nimegami),
		NewAnimasu(cfg.Animasu),
	}}
}

// All returns the adapters in fallback order
func (r *Registry) All() []Adapter {
	return r.adapters
}

func (r *Registry) Get(name domain.SourceName) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

var episodeNumber = regexp.MustCompile(`(?i)Episode\s+(\d+(?:\.\d+)?)`)

// parseEpisodeNumber reads "Episode N" from the first candidate that carries it
func parseEpisodeNumber(candidates ...string) (float64, bool) {
	for _, c := range candidates {
		if m := episodeNumber.FindStringSubmatch(c); m != nil {
			n, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// FormatEpisode renders an episode number the way source URLs and cache keys expect: 12, 12.5
func FormatEpisode(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// lastPathSegment returns the last non-empty path segment of a URL or path
func lastPathSegment(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// findInListing returns the locator of episode n in a parsed listing
func findInListing(n float64, listing []domain.Episode) (string, bool) {
	for _, ep := range listing {
		if ep.Number == n && ep.Locator != "" {
			return ep.Locator, true
		}
	}
	return "", false
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
