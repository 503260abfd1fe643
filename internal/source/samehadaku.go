package source

import (
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/extract"
	"github.com/PuerkitoBio/goquery"
	"strconv"
	"strings"
)

// Samehadaku catalog slugs are the full series URLs
type Samehadaku struct {
	base string
}

func NewSamehadaku(base string) *Samehadaku {
	return &Samehadaku{base: strings.TrimRight(base, "/")}
}

func (s *Samehadaku) Name() domain.SourceName { return domain.SourceSamehadaku }

func (s *Samehadaku) ListingURL(slug string) string {
	if strings.HasPrefix(slug, "http://") || strings.HasPrefix(slug, "https://") {
		return slug
	}
	return fmt.Sprintf("%s/anime/%s", s.base, strings.Trim(slug, "/"))
}

func (s *Samehadaku) ParseEpisodes(doc *goquery.Document) []domain.Episode {
	var episodes []domain.Episode
	doc.Find("div.lstepsiode.listeps ul li .lchx a").Each(func(_ int, a *goquery.Selection) {
		title := strings.TrimSpace(a.Text())
		n, ok := parseEpisodeNumber(title)
		if !ok {
			return
		}
		href, _ := a.Attr("href")
		episodes = append(episodes, domain.Episode{Number: n, Title: title, Locator: href})
	})
	return episodes
}

// EpisodeLocator formats the episode page URL from the series slug.  The listing is not needed.
func (s *Samehadaku) EpisodeLocator(slug string, n float64, _ []domain.Episode) (string, bool) {
	path := lastPathSegment(slug)
	if path == "" {
		return "", false
	}
	return fmt.Sprintf("%s/%s-episode-%s/", s.base, path, FormatEpisode(n)), true
}

func (s *Samehadaku) EmbedSource(locator string) extract.EmbedSource {
	return extract.AjaxPlayerPage{
		PageURL: locator,
		AjaxURL: s.base + "/wp-admin/admin-ajax.php",
		Referer: s.base + "/",
	}
}

func (s *Samehadaku) CatalogPageURL(page int) string {
	if page <= 1 {
		return s.base + "/daftar-anime-2/"
	}
	return fmt.Sprintf("%s/daftar-anime-2/page/%d/", s.base, page)
}

func (s *Samehadaku) ParseCatalog(doc *goquery.Document) []domain.CatalogEntry {
	var entries []domain.CatalogEntry
	doc.Find("div.relat article.animpost div.animposx a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Find("div.data h2").Text())
		if href == "" || title == "" {
			return
		}
		entries = append(entries, domain.CatalogEntry{Source: domain.SourceSamehadaku, Title: title, Slug: href})
	})
	return entries
}

func (s *Samehadaku) LatestURL(page int) string {
	if page <= 1 {
		return s.base + "/anime-terbaru/"
	}
	return fmt.Sprintf("%s/anime-terbaru/page/%d/", s.base, page)
}

func (s *Samehadaku) ParseLatest(doc *goquery.Document) []domain.FeedItem {
	var items []domain.FeedItem
	doc.Find("div.post-show ul li").Each(func(_ int, li *goquery.Selection) {
		href, _ := li.Find("a").First().Attr("href")
		title := strings.TrimSpace(li.Find("h2.entry-title").Text())
		if href == "" || title == "" {
			return
		}
		thumb, _ := li.Find("img").First().Attr("src")
		item := domain.FeedItem{Title: title, Thumbnail: thumb, RawSlug: href}
		if n, ok := parseEpisodeNumber(li.Find("span").Text(), href); ok {
			ep := FormatEpisode(n)
			item.LastEpisode = &ep
		}
		items = append(items, item)
	})
	return items
}

func (s *Samehadaku) Top10URL() string {
	return s.base + "/"
}

func (s *Samehadaku) ParseTop10(doc *goquery.Document) []domain.FeedItem {
	var items []domain.FeedItem
	doc.Find("div.topten-animesu ul li").Each(func(_ int, li *goquery.Selection) {
		href, _ := li.Find("a.series").Attr("href")
		title := strings.TrimSpace(li.Find("span.judul").Text())
		if href == "" || title == "" {
			return
		}
		thumb, _ := li.Find("img").First().Attr("src")
		item := domain.FeedItem{Title: title, Thumbnail: thumb, RawSlug: href}
		rankText := strings.TrimSpace(strings.Replace(li.Find("b.is-topten").Text(), "TOP", "", 1))
		if rank, err := strconv.Atoi(rankText); err == nil {
			item.Rank = &rank
		}
		items = append(items, item)
	})
	return items
}
