// Package resolver maps canonical titles onto the slugs a source uses for them.
package resolver

import (
	"github.com/PizzaHomicide/otakuin/internal/domain"
)

const (
	DefaultFuzzyThreshold      = 0.7
	DefaultSimilarityThreshold = 0.5
)

// Query is everything the engine knows about one title for one source
type Query struct {
	Source domain.SourceName
	Titles domain.AnimeTitle
	// Override is an operator supplied slug, and wins over every other step when set
	Override string
	// HomeTitle is the title the home feed carries for this id, used when the canonical titles find nothing
	HomeTitle string
}

// Engine runs the resolution chain.  The zero value uses the default thresholds.
type Engine struct {
	// FuzzyThreshold is the minimum (inclusive) score of a fuzzy match
	FuzzyThreshold float64
	// SimilarityThreshold is the score a character similarity match must exceed
	SimilarityThreshold float64
}

type variant struct {
	method domain.MatchMethod
	text   string
}

type indexedEntry struct {
	entry    domain.CatalogEntry
	slugKey  string
	titleKey string
}

type candidate struct {
	entry   domain.CatalogEntry
	score   float64
	variant int
	keyLen  int
}

// better orders candidates by score, then earlier variant, then shorter title, then slug
func (c candidate) better(o *candidate) bool {
	if o == nil {
		return true
	}
	if c.score != o.score {
		return c.score > o.score
	}
	if c.variant != o.variant {
		return c.variant < o.variant
	}
	if c.keyLen != o.keyLen {
		return c.keyLen < o.keyLen
	}
	return c.entry.Slug < o.entry.Slug
}

// Resolve returns the slug of the catalog matching q, or nil when no step of the chain accepts a candidate
func (e Engine) Resolve(q Query, catalog []domain.CatalogEntry) *domain.Resolution {
	if q.Override != "" {
		return &domain.Resolution{
			Source:     q.Source,
			Slug:       q.Override,
			SlugTitle:  "Manual Mapping",
			Method:     domain.MatchManual,
			Confidence: 1,
		}
	}
	if len(catalog) == 0 {
		return nil
	}

	index := buildIndex(catalog)
	variants := []variant{
		{domain.MatchRomaji, NormalizeTitle(q.Titles.Romaji)},
		{domain.MatchEnglish, NormalizeTitle(q.Titles.English)},
		{domain.MatchNative, NormalizeTitle(q.Titles.Native)},
	}

	if res := e.resolveWith(q.Source, index, variants, "", domain.MatchCharacterSimilarity); res != nil {
		return res
	}

	home := NormalizeTitle(q.HomeTitle)
	if home == "" {
		return nil
	}
	return e.resolveWith(q.Source, index, []variant{{domain.MatchHomeCache, home}}, domain.MatchHomeCache,
		domain.MatchHomeCharacterSimilarity)
}

// resolveWith runs the fuzzy step then the character similarity step.  A non-empty fuzzyMethod replaces the
// variant name as the method of a fuzzy match.
func (e Engine) resolveWith(source domain.SourceName, index []indexedEntry, variants []variant,
	fuzzyMethod, similarityMethod domain.MatchMethod) *domain.Resolution {

	if best := e.bestFuzzy(index, variants); best != nil && best.score >= e.fuzzyThreshold() {
		method := variants[best.variant].method
		if fuzzyMethod != "" {
			method = fuzzyMethod
		}
		return newResolution(source, best, method)
	}

	if best := bestSimilarity(index, variants); best != nil && best.score > e.similarityThreshold() {
		return newResolution(source, best, similarityMethod)
	}

	return nil
}

func (e Engine) bestFuzzy(index []indexedEntry, variants []variant) *candidate {
	var best *candidate
	for vi, v := range variants {
		if v.text == "" {
			continue
		}
		for _, ie := range index {
			c := candidate{
				entry:   ie.entry,
				score:   max(fuzzyScore(v.text, ie.slugKey), fuzzyScore(v.text, ie.titleKey)),
				variant: vi,
				keyLen:  ie.keyLen(),
			}
			if c.better(best) {
				best = &c
			}
		}
	}
	return best
}

func bestSimilarity(index []indexedEntry, variants []variant) *candidate {
	var best *candidate
	for vi, v := range variants {
		if v.text == "" {
			continue
		}
		for _, ie := range index {
			c := candidate{
				entry:   ie.entry,
				score:   max(characterSimilarity(v.text, ie.titleKey), characterSimilarity(v.text, ie.slugKey)),
				variant: vi,
				keyLen:  ie.keyLen(),
			}
			if c.better(best) {
				best = &c
			}
		}
	}
	return best
}

// keyLen is the tie-break length of an entry: its title, or its slug when only the slug was scraped
func (ie indexedEntry) keyLen() int {
	if ie.titleKey == "" {
		return len(ie.slugKey)
	}
	return len(ie.titleKey)
}

func buildIndex(catalog []domain.CatalogEntry) []indexedEntry {
	index := make([]indexedEntry, 0, len(catalog))
	for _, entry := range catalog {
		index = append(index, indexedEntry{
			entry:    entry,
			slugKey:  NormalizeTitle(NormalizeSlug(entry.Slug)),
			titleKey: NormalizeTitle(entry.Title),
		})
	}
	return index
}

func newResolution(source domain.SourceName, c *candidate, method domain.MatchMethod) *domain.Resolution {
	return &domain.Resolution{
		Source:     source,
		Slug:       c.entry.Slug,
		SlugTitle:  c.entry.Title,
		Method:     method,
		Confidence: c.score,
	}
}

func (e Engine) fuzzyThreshold() float64 {
	if e.FuzzyThreshold <= 0 {
		return DefaultFuzzyThreshold
	}
	return e.FuzzyThreshold
}

func (e Engine) similarityThreshold() float64 {
	if e.SimilarityThreshold <= 0 {
		return DefaultSimilarityThreshold
	}
	return e.SimilarityThreshold
}
