package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Keys owns the layout of every key in the shared store
var Keys keyLayout

type keyLayout struct{}

// Catalog is the title -> slug hash of a source
func (keyLayout) Catalog(source string) string { return "slugs:" + source }

// Overrides is the operator maintained id -> slug hash of a source
func (keyLayout) Overrides(source string) string {
	return fmt.Sprintf("manual_map:%s:anilist_id_to_slug", source)
}

func (keyLayout) Metadata(id int) string { return "anilist:" + strconv.Itoa(id) }

// EpisodeList is the listing of one source for a title.  An empty source names the merged listing.
func (keyLayout) EpisodeList(id int, source string) string {
	if source == "" {
		return fmt.Sprintf("episode_list:%d", id)
	}
	return fmt.Sprintf("episode_list:%d:%s", id, source)
}

func (keyLayout) EpisodeStreams(id int, episode string) string {
	return fmt.Sprintf("episode:%d:%s", id, episode)
}

func (keyLayout) Embeds(locator string) string { return "embeds:" + locator }

func (keyLayout) Stream(token string) string { return "stream:" + token }

// ProxyResolution keys host specific resolutions by a digest of the raw URL, which can be long and session bound
func (keyLayout) ProxyResolution(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return "proxy:" + hex.EncodeToString(sum[:])
}

func (keyLayout) Feed(feed string) string { return feed + ":anime_list" }

func (keyLayout) EnrichmentQueue() string { return "queue:enrichment" }
