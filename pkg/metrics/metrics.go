// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_rate_limited_total",
			Help: "Requests rejected with 429",
		},
		[]string{"route"},
	)
	// AuthFailures counts rejected credentials by scheme.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_auth_failures_total",
			Help: "Requests rejected with 401",
		},
		[]string{"scheme"},
	)
	// BlobOperations counts blob store calls by operation and outcome.
	BlobOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_blob_operations_total",
			Help: "Blob store operations",
		},
		[]string{"operation", "status"},
	)
	// Rollbacks counts compensating blob deletions after a failed write.
	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_rollbacks_total",
			Help: "Compensating deletions of uploaded blobs",
		},
		[]string{"kind", "stage"},
	)
	// CacheRequests counts record cache lookups.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_record_cache_requests_total",
			Help: "Record cache lookups by result",
		},
		[]string{"result"},
	)
)

// Status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Outcome returns the status label for err.
func Outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
