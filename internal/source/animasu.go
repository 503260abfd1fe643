package source

import (
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PuerkitoBio/goquery"
	"regexp"
	"strings"
)

var animasuSlug = regexp.MustCompile(`/anime/([^/]+)/?`)

type Animasu struct {
	base string
}

func NewAnimasu(base string) *Animasu {
	return &Animasu{base: strings.TrimRight(base, "/")}
}

func (s *Animasu) Name() domain.SourceName { return domain.SourceAnimasu }

func (s *Animasu) ListingURL(slug string) string {
	return fmt.Sprintf("%s/anime/%s/", s.base, lastPathSegment(slug))
}

func (s *Animasu) ParseEpisodes(doc *goquery.Document) []domain.Episode {
	var episodes []domain.Episode
	doc.Find("ul#daftarepisode li span.lchx a").Each(func(_ int, a *goquery.Selection) {
		title := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		n, ok := parseEpisodeNumber(title, href)
		if !ok || href == "" {
			return
		}
		episodes = append(episodes, domain.Episode{Number: n, Title: title, Locator: resolveURL(s.base+"/", href)})
	})
	return episodes
}

func (s *Animasu) EpisodeLocator(_ string, n float64, listing []domain.Episode) (string, bool) {
	return findInListing(n, listing)
}

// FallbackLocator builds the conventional episode page URL of a slug
func (s *Animasu) FallbackLocator(slug string, n float64) string {
	return fmt.Sprintf("%s/nonton-%s-episode-%s/", s.base, lastPathSegment(slug), FormatEpisode(n))
}

func (s *Animasu) EmbedSource(locator string) extract.EmbedSource {
	return extract.MirrorSelectPage{PageURL: locator}
}

func (s *Animasu) CatalogPageURL(page int) string {
	if page <= 1 {
		return s.base + "/pencarian/?urutan=abjad"
	}
	return fmt.Sprintf("%s/pencarian/?urutan=abjad&halaman=%d", s.base, page)
}

func (s *Animasu) ParseCatalog(doc *goquery.Document) []domain.CatalogEntry {
	var entries []domain.CatalogEntry
	doc.Find("div.bs div.bsx a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Find("div.tt").Text())
		m := animasuSlug.FindStringSubmatch(href)
		if m == nil || title == "" {
			return
		}
		entries = append(entries, domain.CatalogEntry{Source: domain.SourceAnimasu, Title: title, Slug: m[1]})
	})
	return entries
}
