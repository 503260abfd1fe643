package stream

import (
	"context"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// mediaTypes maps the containers the proxy recognises to their content type
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m3u8": "application/vnd.apple.mpegurl",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".ts":   "video/mp2t",
}

// hopHeaders are connection scoped and never relayed
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization", "Te", "Trailer",
	"Transfer-Encoding", "Upgrade", "Proxy-Connection",
}

// TokenLookup redeems stream tokens
type TokenLookup interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// Proxy streams the media behind a token to the client
type Proxy struct {
	tokens     TokenLookup
	store      cache.Store
	http       httpclient.Doer
	ttl        time.Duration
	strategies []HostStrategy
	now        func() time.Time
}

// NewProxy creates a proxy.  doer performs the final media fetch and must not carry an overall timeout.  Host
// resolutions are cached for ttl.
func NewProxy(tokens TokenLookup, store cache.Store, doer httpclient.Doer, ttl time.Duration, strategies ...HostStrategy) *Proxy {
	return &Proxy{tokens: tokens, store: store, http: doer, ttl: ttl, strategies: strategies, now: time.Now}
}

// Serve relays the stream behind token.  An error is only returned while nothing has been written to w, which
// leaves the caller free to render it.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, token string) error {
	ctx := r.Context()

	rawURL, err := p.tokens.Lookup(ctx, token)
	if err != nil {
		return err
	}

	strategy, err := p.strategyFor(rawURL)
	if err != nil {
		metrics.ProxyRequests.WithLabelValues("none", "501").Inc()
		return err
	}

	target, err := p.target(ctx, strategy, rawURL, clientIP(r))
	if err != nil {
		metrics.ProxyRequests.WithLabelValues(strategy.Name(), "500").Inc()
		return fmt.Errorf("resolving %s stream: %w", strategy.Name(), err)
	}

	finalURL := target.FinalURL(p.now())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return err
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		metrics.ProxyRequests.WithLabelValues(strategy.Name(), "500").Inc()
		return &domain.UpstreamError{URL: finalURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone {
		// The resolution expired upstream, the next request renegotiates it
		if err := p.store.Delete(ctx, cache.Keys.ProxyResolution(rawURL)); err != nil {
			log.Warn("Unable to drop proxy resolution", "error", err)
		}
	}

	relayHeaders(w.Header(), resp.Header)
	if ct := normalizeContentType(resp.Header.Get("Content-Type"), finalURL); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	metrics.ProxyRequests.WithLabelValues(strategy.Name(), strconv.Itoa(resp.StatusCode)).Inc()

	if _, err := io.Copy(w, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		// Clients abort streams all the time when seeking
		log.Debug("Stream relay ended early", "token", token, "error", err)
	}
	return nil
}

func (p *Proxy) strategyFor(rawURL string) (HostStrategy, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedHost, err)
	}
	for _, s := range p.strategies {
		if s.Matches(u) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedHost, u.Hostname())
}

// target returns the cached resolution of rawURL, resolving and caching it on a miss
func (p *Proxy) target(ctx context.Context, strategy HostStrategy, rawURL, clientIP string) (*Target, error) {
	key := cache.Keys.ProxyResolution(rawURL)
	if cached, ok, err := cache.GetJSON[Target](ctx, p.store, key); err != nil {
		log.Warn("Unable to read proxy resolution", "error", err)
	} else if ok {
		return &cached, nil
	}

	target, err := strategy.Resolve(ctx, rawURL, clientIP)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, p.store, key, target, p.ttl); err != nil {
		log.Warn("Unable to cache proxy resolution", "error", err)
	}
	log.Debug("Resolved stream host", "strategy", strategy.Name())
	return target, nil
}

func relayHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// normalizeContentType replaces missing or generic content types with the detected container type
func normalizeContentType(upstream, finalURL string) string {
	mediaType, _, _ := mime.ParseMediaType(upstream)
	if mediaType != "" && mediaType != "application/octet-stream" && !strings.HasPrefix(mediaType, "text/") {
		return upstream
	}
	if detected := detectContainer(finalURL); detected != "" {
		return detected
	}
	return upstream
}

// detectContainer reads the container type from a mime query parameter, then from the file extension
func detectContainer(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := u.Query().Get("mime"); m != "" {
		return m
	}
	return mediaTypes[strings.ToLower(path.Ext(u.Path))]
}

// clientIP is the remote address without its port.  chi's RealIP middleware may already have stripped it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
