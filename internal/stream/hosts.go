package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/httpclient"
	"github.com/PuerkitoBio/goquery"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Target is the resolved origin of a stream
type Target struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	// Token makes the final URL per request, see FinalURL
	Token string `json:"token,omitempty"`
}

const mintAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// FinalURL returns the URL to fetch.  Token targets append 10 random characters, the token and an expiry in
// milliseconds to the base URL on every call.
func (t Target) FinalURL(now time.Time) string {
	if t.Token == "" {
		return t.URL
	}
	var sb strings.Builder
	sb.WriteString(t.URL)
	for range 10 {
		sb.WriteByte(mintAlphabet[rand.IntN(len(mintAlphabet))])
	}
	sb.WriteString("?token=")
	sb.WriteString(t.Token)
	sb.WriteString("&expiry=")
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	return sb.String()
}

// HostStrategy turns an embed URL of the hosts it handles into a fetchable origin
type HostStrategy interface {
	Name() string
	Matches(u *url.URL) bool
	Resolve(ctx context.Context, rawURL, clientIP string) (*Target, error)
}

// DefaultStrategies returns every strategy in match order.  doer fetches embed pages only, media is relayed by the
// proxy's own doer.
func DefaultStrategies(doer httpclient.Doer, directHosts []string) []HostStrategy {
	return []HostStrategy{
		NewBloggerStrategy(doer, nil),
		NewPassMD5Strategy(doer, nil),
		NewDirectStrategy(directHosts),
	}
}

func hostMatches(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// maxPageSize caps how much of an embed page or pass_md5 answer is read
const maxPageSize = 2 << 20

func getBody(ctx context.Context, doer httpclient.Doer, rawURL string, headers map[string]string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := doer.Do(req)
	if err != nil {
		return nil, nil, &domain.UpstreamError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, nil, &domain.UpstreamError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &domain.UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, body, nil
}

// BloggerStrategy reads the video config a Blogger video page embeds in a script
type BloggerStrategy struct {
	http  httpclient.Doer
	hosts []string
}

const videoConfigMarker = "var VIDEO_CONFIG = "

// NewBloggerStrategy handles blogger.com unless other hosts are given
func NewBloggerStrategy(doer httpclient.Doer, hosts []string) *BloggerStrategy {
	if len(hosts) == 0 {
		hosts = []string{"blogger.com"}
	}
	return &BloggerStrategy{http: doer, hosts: hosts}
}

func (s *BloggerStrategy) Name() string { return "blogger" }

func (s *BloggerStrategy) Matches(u *url.URL) bool { return hostMatches(u.Hostname(), s.hosts) }

func (s *BloggerStrategy) Resolve(ctx context.Context, rawURL, clientIP string) (*Target, error) {
	resp, body, err := getBody(ctx, s.http, rawURL, map[string]string{
		"Referer":         rawURL,
		"X-Forwarded-For": clientIP,
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var config string
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		if i := strings.Index(text, videoConfigMarker); i >= 0 {
			config = text[i+len(videoConfigMarker):]
			return false
		}
		return true
	})
	if config == "" {
		return nil, fmt.Errorf("VIDEO_CONFIG not found on %s: %w", rawURL, domain.ErrParseMismatch)
	}
	// The config is the first JSON value after the marker, anything after it is other script code
	var parsed struct {
		Streams []struct {
			PlayURL string `json:"play_url"`
		} `json:"streams"`
	}
	if err := json.NewDecoder(strings.NewReader(config)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing VIDEO_CONFIG: %v: %w", err, domain.ErrParseMismatch)
	}
	if len(parsed.Streams) == 0 || parsed.Streams[0].PlayURL == "" {
		return nil, fmt.Errorf("VIDEO_CONFIG has no streams: %w", domain.ErrParseMismatch)
	}

	headers := map[string]string{"Referer": rawURL}
	if cookie := cookieHeader(resp); cookie != "" {
		headers["Cookie"] = cookie
	}
	return &Target{URL: parsed.Streams[0].PlayURL, Headers: headers}, nil
}

// cookieHeader turns the Set-Cookie headers of a response into a Cookie request header
func cookieHeader(resp *http.Response) string {
	var pairs []string
	for _, c := range resp.Cookies() {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// PassMD5Strategy handles hosts that exchange a pass_md5 path for a base media URL which is then signed per
// request
type PassMD5Strategy struct {
	http  httpclient.Doer
	hosts []string
}

var passMD5Path = regexp.MustCompile(`/pass_md5/[^'"\s]+`)

var defaultPassMD5Hosts = []string{
	"dood.wf", "dood.yt", "dood.re", "dood.so", "dood.pm", "doodstream.com", "d000d.com", "d0000d.com",
	"dooood.com", "ds2play.com", "ds2video.com",
}

func NewPassMD5Strategy(doer httpclient.Doer, hosts []string) *PassMD5Strategy {
	if len(hosts) == 0 {
		hosts = defaultPassMD5Hosts
	}
	return &PassMD5Strategy{http: doer, hosts: hosts}
}

func (s *PassMD5Strategy) Name() string { return "pass_md5" }

func (s *PassMD5Strategy) Matches(u *url.URL) bool { return hostMatches(u.Hostname(), s.hosts) }

func (s *PassMD5Strategy) Resolve(ctx context.Context, rawURL, _ string) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	originURL := u.Scheme + "://" + u.Host

	_, page, err := getBody(ctx, s.http, rawURL, map[string]string{"Referer": originURL + "/"})
	if err != nil {
		return nil, err
	}
	passPath := passMD5Path.FindString(string(page))
	if passPath == "" {
		return nil, fmt.Errorf("no pass_md5 path on %s: %w", rawURL, domain.ErrParseMismatch)
	}

	_, base, err := getBody(ctx, s.http, originURL+passPath, map[string]string{"Referer": rawURL})
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(string(base))
	if !strings.HasPrefix(baseURL, "http") {
		return nil, fmt.Errorf("pass_md5 exchange returned no URL: %w", domain.ErrParseMismatch)
	}

	return &Target{
		URL:     baseURL,
		Token:   path.Base(passPath),
		Headers: map[string]string{"Referer": originURL + "/"},
	}, nil
}

// DirectStrategy forwards URLs that already point at a media file
type DirectStrategy struct {
	hosts []string
}

func NewDirectStrategy(hosts []string) *DirectStrategy {
	return &DirectStrategy{hosts: hosts}
}

func (s *DirectStrategy) Name() string { return "direct" }

func (s *DirectStrategy) Matches(u *url.URL) bool {
	if _, ok := mediaTypes[strings.ToLower(path.Ext(u.Path))]; ok {
		return true
	}
	return hostMatches(u.Hostname(), s.hosts)
}

func (s *DirectStrategy) Resolve(_ context.Context, rawURL, _ string) (*Target, error) {
	return &Target{URL: rawURL}, nil
}
