package httpclient

import (
	"context"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PuerkitoBio/goquery"
	"io"
	"net/http"
)

// FetchDocument performs req and parses a 2xx response body as HTML.  Transport failures and other statuses are
// reported as *domain.UpstreamError.
func FetchDocument(doer Doer, req *http.Request) (*goquery.Document, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.UpstreamError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{URL: req.URL.String(), Err: err}
	}
	return doc, nil
}

// GetDocument fetches and parses an HTML page
func GetDocument(ctx context.Context, doer Doer, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", pageURL, err)
	}
	return FetchDocument(doer, req)
}
