package anilist

import (
	"context"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/resolver"
	"regexp"
	"sort"
	"strings"
)

// minMatchScore is the lowest similarity a search result needs to be ranked at all
const minMatchScore = 0.4

var seasonMarker = regexp.MustCompile(`(?i)(season|part|cour) (\d+)`)

// FindBestMatch searches AniList for a scraped title.  The search is retried without its season marker, and the
// season number breaks ties between sequels.
func (r *AnimeRepository) FindBestMatch(ctx context.Context, search string) (*domain.AnimeSummary, error) {
	terms := searchTerms(search)

	var lastErr error
	answered := false
	for _, term := range terms {
		candidates, err := r.searchCandidates(ctx, term)
		if err != nil {
			log.Warn("AniList match search failed", "term", term, "error", err)
			lastErr = err
			continue
		}
		answered = true
		if len(candidates) == 0 {
			log.Debug("No AniList results", "term", term)
			continue
		}

		best := rankCandidates(search, candidates)
		log.Debug("AniList match", "search", search, "term", term, "id", best.ID, "title", best.Title.Preferred())
		return &best, nil
	}

	// A term that answered empty is a real miss even when another term failed
	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func searchTerms(search string) []string {
	search = strings.TrimSpace(search)
	stripped := strings.TrimSpace(seasonMarker.ReplaceAllString(search, ""))
	stripped = strings.Join(strings.Fields(stripped), " ")

	terms := []string{}
	for _, t := range []string{search, stripped} {
		if t != "" && (len(terms) == 0 || terms[0] != t) {
			terms = append(terms, t)
		}
	}
	return terms
}

func (r *AnimeRepository) searchCandidates(ctx context.Context, term string) ([]domain.AnimeSummary, error) {
	query := `
        query ($search: String) {
            Page (page: 1, perPage: 10) {
                media (search: $search, type: ANIME) {
                    id
                    title { romaji english native }
                    coverImage { large medium }
                    averageScore
                    format
                    episodes
                    status
                }
            }
        }
    `

	var response pageResult
	if err := r.client.Query(ctx, query, map[string]interface{}{"search": term}, &response); err != nil {
		return nil, err
	}
	return response.toDomain().Media, nil
}

type rankedCandidate struct {
	summary domain.AnimeSummary
	score   float64
}

// rankCandidates orders results by title similarity and applies the season tie-breaker.  When nothing is similar
// enough the first result AniList returned wins.
func rankCandidates(search string, candidates []domain.AnimeSummary) domain.AnimeSummary {
	var ranked []rankedCandidate
	for _, c := range candidates {
		score := max(
			resolver.Similarity(search, c.Title.Romaji),
			resolver.Similarity(search, c.Title.English),
			resolver.Similarity(search, c.Title.Native),
		)
		if score >= minMatchScore {
			ranked = append(ranked, rankedCandidate{summary: c, score: score})
		}
	}
	if len(ranked) == 0 {
		return candidates[0]
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	m := seasonMarker.FindStringSubmatch(search)
	if m == nil || len(ranked) < 2 {
		return ranked[0].summary
	}

	season := m[2]
	if strings.Contains(seasonTitle(ranked[0].summary), season) {
		return ranked[0].summary
	}
	for _, rc := range ranked[1:] {
		title := seasonTitle(rc.summary)
		if strings.Contains(title, season) || strings.Contains(title, season+"nd") ||
			strings.Contains(title, season+"rd") || strings.Contains(title, season+"th") {
			log.Debug("Season tie-breaker", "chosen", rc.summary.Title.Preferred(), "over", ranked[0].summary.Title.Preferred())
			return rc.summary
		}
	}
	return ranked[0].summary
}

func seasonTitle(s domain.AnimeSummary) string {
	return strings.ToLower(s.Title.Romaji + s.Title.English)
}
