// Package httpclient provides the outbound HTTP client shared by the scrapers, extractors and the stream proxy.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"golang.org/x/net/proxy"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Doer is the subset of *http.Client used by every component, so tests can pass an httptest server's client
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client
type Options struct {
	UserAgent          string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// UTLSDomains are matched as substrings of the request host
	UTLSDomains []string
	// Proxy is an optional socks5:// URL
	Proxy string
}

// Client routes requests to a standard transport, or to a browser-fingerprinted TLS transport for hosts that
// block Go's TLS handshake.
type Client struct {
	userAgent   string
	utlsDomains []string

	scrape     *http.Client
	scrapeUTLS *http.Client
	stream     *http.Client
	streamUTLS *http.Client
}

func New(opts Options) (*Client, error) {
	dialer, err := newDialer(opts.Proxy)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}
	utlsTransport := newUTLSRoundTripper(dialer, opts.InsecureSkipVerify)

	return &Client{
		userAgent:   opts.UserAgent,
		utlsDomains: opts.UTLSDomains,
		scrape:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		scrapeUTLS:  &http.Client{Transport: utlsTransport, Timeout: opts.Timeout},
		// Media bodies can take far longer than any page fetch, so streaming clients only bound the headers
		stream:     &http.Client{Transport: transport},
		streamUTLS: &http.Client{Transport: utlsTransport},
	}, nil
}

// Do sends a page request, bounded by the configured timeout
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.route(req, c.scrape, c.scrapeUTLS)
}

// Stream returns a Doer without an overall timeout, for relaying media bodies
func (c *Client) Stream() Doer {
	return doerFunc(func(req *http.Request) (*http.Response, error) {
		return c.route(req, c.stream, c.streamUTLS)
	})
}

func (c *Client) route(req *http.Request, std, fingerprinted *http.Client) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.needsUTLS(req.URL) {
		return fingerprinted.Do(req)
	}
	return std.Do(req)
}

func (c *Client) needsUTLS(u *url.URL) bool {
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range c.utlsDomains {
		if domain != "" && strings.Contains(host, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// newDialer returns a direct IPv4 dialer, or a socks5 dialer when a proxy is configured
func newDialer(proxyURL string) (proxy.ContextDialer, error) {
	direct := &ipv4Dialer{dialer: &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 60 * time.Second}}
	if proxyURL == "" {
		return direct, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("creating proxy dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy scheme %q does not support contexts", u.Scheme)
	}
	return cd, nil
}

// ipv4Dialer forces tcp4, several of the scraped hosts publish AAAA records they do not serve on
type ipv4Dialer struct {
	dialer *net.Dialer
}

func (d *ipv4Dialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *ipv4Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	return d.dialer.DialContext(ctx, network, addr)
}
