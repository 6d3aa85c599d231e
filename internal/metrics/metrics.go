// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// URL outcomes recorded by ObserveScrapeURL.
const (
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeExtracted = "extracted"
)

// Record statuses recorded by ObserveRecord.
const (
	StatusPersisted = "persisted"
	StatusFailed    = "failed"
)

var (
	scrapeURLsTotal            *prometheus.CounterVec
	scrapeBytesTotal           *prometheus.CounterVec
	factsPersistedTotal        prometheus.Counter
	recordsPersistedTotal      *prometheus.CounterVec
	headlessPromotionsTotal    prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobox_scrape_urls_total",
				Help: "Total number of submitted URLs, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scrapeBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobox_scrape_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		factsPersistedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "infobox_facts_persisted_total",
				Help: "Total number of facts written to the store.",
			},
		)

		recordsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infobox_records_persisted_total",
				Help: "Total number of extracted records handed to the store, labeled by status.",
			},
			[]string{"status"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "infobox_headless_promotions_total",
				Help: "Total number of fetches retried with the headless browser.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveScrapeURL counts one submitted URL and the bytes fetched for it.
func ObserveScrapeURL(rawURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	scrapeURLsTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		scrapeBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveRecord counts one persisted (or failed) record and its facts.
func ObserveRecord(status string, facts int) {
	Init()
	recordsPersistedTotal.WithLabelValues(status).Inc()
	if facts > 0 {
		factsPersistedTotal.Add(float64(facts))
	}
}

// ObserveHeadlessPromotion counts a fetch retried with the headless browser.
func ObserveHeadlessPromotion() {
	Init()
	headlessPromotionsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
