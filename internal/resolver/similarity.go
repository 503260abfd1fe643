package resolver

import (
	"github.com/lithammer/fuzzysearch/fuzzy"
	"strings"
	"unicode/utf8"
)

// containmentScore is the fixed score of one title containing the other
const containmentScore = 0.8

// editSimilarity is 1 - levenshtein/maxlen over runes
func editSimilarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

// tokenSimilarity averages how well each side's words are covered by the other side's closest words
func tokenSimilarity(a, b string) float64 {
	at, bt := strings.Fields(a), strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	return (coverage(at, bt) + coverage(bt, at)) / 2
}

func coverage(from, to []string) float64 {
	total := 0.0
	for _, f := range from {
		best := 0.0
		for _, t := range to {
			if s := editSimilarity(f, t); s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(from))
}

// fuzzyScore compares two normalized strings, tolerating typos, reordering and extra words
func fuzzyScore(query, key string) float64 {
	if query == "" || key == "" {
		return 0
	}
	if query == key {
		return 1
	}

	score := max(editSimilarity(query, key), tokenSimilarity(query, key))

	// Every rune of query appears in order within key, rank counts the runes key has in addition
	if rank := fuzzy.RankMatchNormalizedFold(query, key); rank >= 0 {
		n := utf8.RuneCountInString(query)
		score = max(score, float64(n)/float64(n+rank))
	}

	return score
}

// characterSimilarity is the loose fallback score: one string containing the other scores a flat 0.8, anything
// else is the edit similarity
func characterSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentScore
	}
	return editSimilarity(a, b)
}

// Similarity scores two free-form titles between 0 and 1 after normalizing both
func Similarity(a, b string) float64 {
	return fuzzyScore(NormalizeTitle(a), NormalizeTitle(b))
}
