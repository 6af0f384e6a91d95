// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	linksDiscoveredTotal prometheus.Counter
	detailFetchesTotal   *prometheus.CounterVec
	detailFetchInFlight  prometheus.Gauge
	upsertsTotal         *prometheus.CounterVec
	imageDownloadsTotal  *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	runDurationSeconds   prometheus.Histogram
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call from every constructor; registration happens once.
func Init() {
	once.Do(func() {
		linksDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "artmap_links_discovered_total",
				Help: "Total detail-page links surfaced by the listing discoverer.",
			},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artmap_detail_fetches_total",
				Help: "Total detail-page fetches, labeled by result.",
			},
			[]string{"result"},
		)

		detailFetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "artmap_detail_fetch_in_flight",
				Help: "Detail-page requests currently in flight.",
			},
		)

		upsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artmap_exhibition_upserts_total",
				Help: "Total persistence outcomes, labeled created/updated/skipped.",
			},
			[]string{"outcome"},
		)

		imageDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artmap_image_downloads_total",
				Help: "Total poster image download attempts, labeled by result.",
			},
			[]string{"result"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artmap_crawl_runs_total",
				Help: "Total crawl runs, labeled by result.",
			},
			[]string{"result"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "artmap_crawl_run_duration_seconds",
				Help:    "Histogram of end-to-end crawl run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artmap_http_requests_total",
				Help: "Total HTTP requests served, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artmap_http_request_duration_seconds",
				Help:    "Histogram of HTTP request handling durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDiscovered adds to the discovered-link counter.
func ObserveDiscovered(n int) {
	if n > 0 {
		linksDiscoveredTotal.Add(float64(n))
	}
}

// ObserveDetailFetch counts one detail-page fetch result ("ok" or "error").
func ObserveDetailFetch(result string) {
	detailFetchesTotal.WithLabelValues(result).Inc()
}

// IncFetchInFlight increments the in-flight gauge.
func IncFetchInFlight() {
	detailFetchInFlight.Inc()
}

// DecFetchInFlight decrements the in-flight gauge.
func DecFetchInFlight() {
	detailFetchInFlight.Dec()
}

// ObserveUpsert counts one persistence outcome.
func ObserveUpsert(outcome string) {
	upsertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveImageDownload counts one poster download attempt.
func ObserveImageDownload(result string) {
	imageDownloadsTotal.WithLabelValues(result).Inc()
}

// ObserveRun records a finished run and its duration.
func ObserveRun(result string, duration time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
