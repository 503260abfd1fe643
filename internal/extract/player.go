package extract

import (
	"context"
	"errors"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/cache"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PizzaHomicide/otakuin/internal/metrics"
	"golang.org/x/sync/singleflight"
	"net/http"
	"strings"
	"time"
)

// regionCookie makes player pages serve the same content they serve to Indonesian visitors
const regionCookie = "_as_ipin_tz=UTC; _as_ipin_lc=en-US; _as_ipin_ct=ID"

var errNoVideoSource = errors.New("player page has no video source")

// PlayerOptions bounds the extra hop through an intermediate player page
type PlayerOptions struct {
	// Timeout applies to each attempt
	Timeout time.Duration
	// Retries is the number of attempts after the first one
	Retries int
	// Backoff is the fixed wait between attempts
	Backoff time.Duration
}

// PlayerResult is a memoized player page resolution.  Failures are memoized too, so a dead player is not fetched
// again by every request that references it.
type PlayerResult struct {
	URL string
	Err string
}

// PlayerResolver reads the video source of intermediate player pages
type PlayerResolver struct {
	http  httpclient.Doer
	memo  *cache.TTLCache[PlayerResult]
	group singleflight.Group
	opts  PlayerOptions
}

// maxPlayerRetries bounds PlayerOptions.Retries
const maxPlayerRetries = 2

func NewPlayerResolver(doer httpclient.Doer, memo *cache.TTLCache[PlayerResult], opts PlayerOptions) *PlayerResolver {
	opts.Retries = min(max(opts.Retries, 0), maxPlayerRetries)
	return &PlayerResolver{http: doer, memo: memo, opts: opts}
}

// Resolve returns the video URL behind a player page.  Concurrent calls for the same page share one fetch, which
// keeps running when the caller that started it goes away.
func (p *PlayerResolver) Resolve(ctx context.Context, playerURL, referer string) (string, error) {
	if res, ok := p.memo.Get(playerURL); ok {
		metrics.PlayerResolutions.WithLabelValues("hit").Inc()
		return res.unwrap()
	}

	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(playerURL, func() (any, error) {
		videoURL, err := p.fetchWithRetry(shared, playerURL, referer)
		if err != nil {
			metrics.PlayerResolutions.WithLabelValues("failed").Inc()
			p.memo.Set(playerURL, PlayerResult{Err: err.Error()})
			return "", err
		}
		metrics.PlayerResolutions.WithLabelValues("resolved").Inc()
		p.memo.Set(playerURL, PlayerResult{URL: videoURL})
		return videoURL, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r PlayerResult) unwrap() (string, error) {
	if r.Err != "" {
		return "", errors.New(r.Err)
	}
	return r.URL, nil
}

func (p *PlayerResolver) fetchWithRetry(ctx context.Context, playerURL, referer string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.opts.Backoff):
			}
		}

		videoURL, err := p.fetchOnce(ctx, playerURL, referer)
		if err == nil {
			return videoURL, nil
		}
		lastErr = err
		// The page was served but carries no video, another attempt will not change that
		if errors.Is(err, errNoVideoSource) {
			break
		}
	}
	return "", fmt.Errorf("resolving player %s: %w", playerURL, lastErr)
}

func (p *PlayerResolver) fetchOnce(ctx context.Context, playerURL, referer string) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playerURL, nil)
	if err != nil {
		return "", err
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	req.Header.Set("Cookie", regionCookie)

	doc, err := httpclient.FetchDocument(p.http, req)
	if err != nil {
		return "", err
	}

	src := strings.TrimSpace(doc.Find("video source").First().AttrOr("src", ""))
	if src == "" {
		return "", fmt.Errorf("%w: %w", errNoVideoSource, domain.ErrParseMismatch)
	}
	return src, nil
}
