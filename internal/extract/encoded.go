package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"golang.org/x/sync/errgroup"
	"net/url"
	"strings"
)

// streamFormat is one element of an encoded stream list
type streamFormat struct {
	Format string   `json:"format"`
	URL    urlField `json:"url"`
}

// urlField accepts a single URL or a list of them
type urlField []string

func (f *urlField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = urlField{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("url is neither a string nor a list: %w", err)
	}
	*f = many
	return nil
}

type encodedStream struct {
	format string
	url    string
}

func (e *Extractor) encodedList(ctx context.Context, s EncodedStreamList) ([]domain.Embed, error) {
	raw, err := decodeBase64(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding stream list: %w", domain.ErrParseMismatch)
	}

	var formats []streamFormat
	if err := json.Unmarshal(raw, &formats); err != nil {
		return nil, fmt.Errorf("parsing stream list: %v: %w", err, domain.ErrParseMismatch)
	}

	var streams []encodedStream
	for _, f := range formats {
		for _, u := range f.URL {
			if u = strings.TrimSpace(u); u != "" {
				streams = append(streams, encodedStream{format: f.Format, url: u})
			}
		}
	}

	slots := make([][]domain.Embed, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range streams {
		g.Go(func() error {
			resolution := resolutionOf(st.format)
			if !e.isGateway(st.url) {
				slots[i] = []domain.Embed{{Server: hostLabel(st.url), URL: st.url, Resolution: resolution}}
				return nil
			}

			mirrors, err := e.gatewayMirrors(gctx, st.url, resolution)
			if err != nil {
				log.Debug("Gateway fetch failed", "url", st.url, "error", err)
				return nil
			}
			slots[i] = mirrors
			return nil
		})
	}
	_ = g.Wait()

	return compact(slots), nil
}

// gatewayMirrors lists the mirrors a gateway page offers for one stream
func (e *Extractor) gatewayMirrors(ctx context.Context, gatewayURL, resolution string) ([]domain.Embed, error) {
	doc, err := e.get(ctx, gatewayURL)
	if err != nil {
		return nil, err
	}

	var mirrors []domain.Embed
	add := func(label, target string) {
		label, target = strings.TrimSpace(label), strings.TrimSpace(target)
		if target == "" {
			return
		}
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			src, err := decodeIframe(target)
			if err != nil {
				return
			}
			target = src
		}
		if label == "" {
			label = hostLabel(target)
		}
		mirrors = append(mirrors, domain.Embed{Server: label, URL: target, Resolution: resolution})
	}

	items := doc.Find("ul.daftar_server li")
	for i := range items.Nodes {
		li := items.Eq(i)
		add(li.Text(), li.AttrOr("data-url", ""))
	}
	if len(mirrors) == 0 {
		options := doc.Find("select.mirror option")
		for i := range options.Nodes {
			opt := options.Eq(i)
			add(opt.Text(), opt.AttrOr("value", ""))
		}
	}

	if len(mirrors) == 0 {
		return nil, fmt.Errorf("gateway %s lists no mirrors: %w", gatewayURL, domain.ErrParseMismatch)
	}
	return mirrors, nil
}

func (e *Extractor) isGateway(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range e.gateways {
		g = strings.ToLower(g)
		if host == g || strings.HasSuffix(host, "."+g) {
			return true
		}
	}
	return false
}

// hostLabel names a stream by the first label of its host: https://www.streamtape.com/e/x -> streamtape
func hostLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}
