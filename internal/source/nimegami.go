package source

import (
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PuerkitoBio/goquery"
	"strings"
)

// Nimegami carries every stream of an episode inline in its listing, so locators are encoded payloads rather
// than URLs
type Nimegami struct {
	base string
}

func NewNimegami(base string) *Nimegami {
	return &Nimegami{base: strings.TrimRight(base, "/")}
}

func (s *Nimegami) Name() domain.SourceName { return domain.SourceNimegami }

func (s *Nimegami) ListingURL(slug string) string {
	return fmt.Sprintf("%s/%s/", s.base, lastPathSegment(slug))
}

func (s *Nimegami) ParseEpisodes(doc *goquery.Document) []domain.Episode {
	var episodes []domain.Episode
	doc.Find("div.list_eps_stream li").Each(func(_ int, li *goquery.Selection) {
		title, _ := li.Attr("title")
		payload, _ := li.Attr("data")
		text := strings.TrimSpace(li.Text())
		n, ok := parseEpisodeNumber(title, text)
		if !ok || payload == "" {
			return
		}
		if title == "" {
			title = text
		}
		episodes = append(episodes, domain.Episode{Number: n, Title: title, Locator: payload})
	})
	return episodes
}

func (s *Nimegami) EpisodeLocator(_ string, n float64, listing []domain.Episode) (string, bool) {
	return findInListing(n, listing)
}

func (s *Nimegami) EmbedSource(locator string) extract.EmbedSource {
	return extract.EncodedStreamList{Payload: locator}
}

func (s *Nimegami) CatalogPageURL(page int) string {
	if page <= 1 {
		return s.base + "/anime-list/"
	}
	return fmt.Sprintf("%s/anime-list/page/%d/", s.base, page)
}

func (s *Nimegami) ParseCatalog(doc *goquery.Document) []domain.CatalogEntry {
	var entries []domain.CatalogEntry
	doc.Find("div.animelist ul li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		title, _ := a.Attr("title")
		title = strings.TrimSpace(title)
		slug := lastPathSegment(href)
		if slug == "" || title == "" {
			return
		}
		entries = append(entries, domain.CatalogEntry{Source: domain.SourceNimegami, Title: title, Slug: slug})
	})
	return entries
}
