package resolver

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Everything from the first episode marker onwards is dropped
	episodeMarker = regexp.MustCompile(`\s(?:episode|eps?)\s*\d+.*$`)
	seasonMarker  = regexp.MustCompile(`\s(?:season\s*\d+|s\d+|\d+(?:st|nd|rd|th)\s+season)$`)
	separators    = strings.NewReplacer("-", " ", "_", " ")
)

// NormalizeSlug turns a slug or page URL into comparable title text.  It keeps the last path segment, lower-cases,
// turns separators into spaces, drops trailing episode and season markers and collapses whitespace.
// NormalizeSlug(NormalizeSlug(s)) == NormalizeSlug(s) for every s.
func NormalizeSlug(slug string) string {
	s := lastSegment(slug)
	s = strings.ToLower(s)
	s = separators.Replace(s)
	s = collapse(s)

	if loc := episodeMarker.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	for {
		stripped := seasonMarker.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}

	return collapse(s)
}

// NormalizeTitle lower-cases a display title and reduces everything but letters and digits to single spaces
func NormalizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, title)
	return collapse(mapped)
}

func lastSegment(s string) string {
	parts := strings.Split(s, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if strings.TrimSpace(parts[i]) != "" {
			return parts[i]
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
