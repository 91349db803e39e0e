// Package metrics exposes Prometheus collectors for the harvester.
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

var (
	navigationsTotal           *prometheus.CounterVec
	navigationDurationSeconds  *prometheus.HistogramVec
	checkpointsTotal           *prometheus.CounterVec
	vectorUpsertsTotal         *prometheus.CounterVec
	vectorsUploadedTotal       *prometheus.CounterVec
	screenshotsArchivedTotal   *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		navigationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_navigations_total",
				Help: "Total page navigations, labeled by site, client and result.",
			},
			[]string{"site", "client", "result"},
		)

		navigationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_navigation_duration_seconds",
				Help:    "Histogram of page navigation latencies, labeled by client.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"client"},
		)

		checkpointsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_checkpoints_total",
				Help: "Total checkpoint saves, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		vectorUpsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_vector_upserts_total",
				Help: "Total vector batch upserts, labeled by sink and result.",
			},
			[]string{"sink", "result"},
		)

		vectorsUploadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_vectors_uploaded_total",
				Help: "Total vectors accepted by a sink.",
			},
			[]string{"sink"},
		)

		screenshotsArchivedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_screenshots_archived_total",
				Help: "Total screenshots written to blob storage, labeled by result.",
			},
			[]string{"result"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of profile workers currently processing a target.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
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
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveNavigation records one page load by a browser client.
func ObserveNavigation(site, client string, duration time.Duration, err error) {
	Init()
	navigationsTotal.WithLabelValues(SanitizeSite(site), client, result(err)).Inc()
	navigationDurationSeconds.WithLabelValues(client).Observe(duration.Seconds())
}

// ObserveCheckpoint records one checkpoint save.
func ObserveCheckpoint(backend string, err error) {
	Init()
	checkpointsTotal.WithLabelValues(backend, result(err)).Inc()
}

// ObserveVectorUpsert records one batch sent to a vector sink.
func ObserveVectorUpsert(sink string, size int, err error) {
	Init()
	vectorUpsertsTotal.WithLabelValues(sink, result(err)).Inc()
	if err == nil && size > 0 {
		vectorsUploadedTotal.WithLabelValues(sink).Add(float64(size))
	}
}

// ObserveScreenshotArchive records one screenshot upload.
func ObserveScreenshotArchive(err error) {
	Init()
	screenshotsArchivedTotal.WithLabelValues(result(err)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}
