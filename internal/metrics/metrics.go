// Package metrics holds the Prometheus collectors of every otakuin process.
package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"time"
)

// Resolutions counts identity resolutions by source and match method ("none" when unresolved).
var Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "otakuin_resolutions_total",
	Help: "Slug resolutions by source and match method.",
}, []string{"source", "method"})

// EmbedsExtracted counts embeds produced by each extraction strategy.
var EmbedsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "otakuin_embeds_extracted_total",
	Help: "Embeds extracted by strategy.",
}, []string{"strategy"})

// PlayerResolutions counts tertiary player page resolutions by outcome (hit, resolved, failed).
var PlayerResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "otakuin_player_resolutions_total",
	Help: "Player page resolutions by outcome.",
}, []string{"outcome"})

var TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "otakuin_stream_tokens_issued_total",
	Help: "Stream tokens minted.",
})

// ProxyRequests counts proxied stream requests by host strategy and relayed status.
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "otakuin_proxy_requests_total",
	Help: "Proxied stream requests by strategy and status.",
}, []string{"strategy", "status"})

// CatalogEntries is the size of each slug catalog after the last crawl.
var CatalogEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "otakuin_catalog_entries",
	Help: "Slug catalog size by source after the last crawl.",
}, []string{"source"})

// EnrichmentJobs counts enrichment worker jobs by outcome (matched, unmatched, failed).
var EnrichmentJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "otakuin_enrichment_jobs_total",
	Help: "Enrichment jobs by outcome.",
}, []string{"outcome"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "otakuin_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request latency labelled by the chi route pattern, which keeps tokens and ids out of labels
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
