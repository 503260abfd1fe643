// Package extract turns an episode's EmbedSource into playable embeds.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"github.com/PuerkitoBio/goquery"
	"net/url"
	"regexp"
	"strings"
)

const defaultResolution = "default"

var resolutionTag = regexp.MustCompile(`(\d{3,4})p`)

// Extractor runs the strategy matching an EmbedSource
type Extractor struct {
	http     httpclient.Doer
	player   *PlayerResolver
	gateways []string
}

// New creates an extractor.  gatewayHosts are stream hosts that serve a mirror list instead of a video.
func New(doer httpclient.Doer, player *PlayerResolver, gatewayHosts []string) *Extractor {
	return &Extractor{http: doer, player: player, gateways: gatewayHosts}
}

// Extract returns the embeds of src.  It never fails: problems are logged and yield an empty list.
func (e *Extractor) Extract(ctx context.Context, src EmbedSource) []domain.Embed {
	var (
		embeds []domain.Embed
		err    error
	)

	switch s := src.(type) {
	case AjaxPlayerPage:
		embeds, err = e.ajaxPlayer(ctx, s)
	case MirrorSelectPage:
		embeds, err = e.mirrorSelect(ctx, s)
	case EncodedStreamList:
		embeds, err = e.encodedList(ctx, s)
	default:
		err = fmt.Errorf("unhandled embed source %T", src)
	}

	if err != nil {
		log.Warn("Embed extraction failed", "strategy", src.Strategy(), "error", err)
		return []domain.Embed{}
	}

	metrics.EmbedsExtracted.WithLabelValues(src.Strategy()).Add(float64(len(embeds)))
	log.Debug("Extracted embeds", "strategy", src.Strategy(), "count", len(embeds))
	return embeds
}

func (e *Extractor) get(ctx context.Context, pageURL string) (*goquery.Document, error) {
	return httpclient.GetDocument(ctx, e.http, pageURL)
}

// resolvePlayer swaps an intermediate player page URL for the video it plays
func (e *Extractor) resolvePlayer(ctx context.Context, src, referer string) (string, error) {
	if !IsPlayerPage(src) || e.player == nil {
		return src, nil
	}
	return e.player.Resolve(ctx, src, referer)
}

// IsPlayerPage reports whether an iframe points at an intermediate player page
func IsPlayerPage(src string) bool {
	return strings.Contains(src, "/utils/player/")
}

// resolutionOf reads a "720p" style tag from a label
func resolutionOf(label string) string {
	if m := resolutionTag.FindStringSubmatch(label); m != nil {
		return m[1] + "p"
	}
	return defaultResolution
}

// decodeIframe reads the iframe src of base64 encoded markup
func decodeIframe(encoded string) (string, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return "", err
	}
	src := strings.TrimSpace(doc.Find("iframe").First().AttrOr("src", ""))
	if src == "" {
		return "", fmt.Errorf("decoded markup has no iframe: %w", domain.ErrParseMismatch)
	}
	return src, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// origin returns the scheme://host/ of a URL, used as a Referer
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/"
}

// compact flattens the per-branch result slots in branch order
func compact(slots [][]domain.Embed) []domain.Embed {
	out := []domain.Embed{}
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}
