// Package metrics holds the portal's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend call outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // non-2xx with a parsed body
	OutcomeNetwork  = "network"
	OutcomeInvalid  = "invalid" // 2xx we could not decode or validate
)

var (
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_backend_requests_total",
			Help: "Total number of calls to the activities backend",
		},
		[]string{"endpoint", "outcome"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_backend_request_duration_seconds",
			Help:    "Duration of calls to the activities backend in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "Duration of portal HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	StaleCatalogResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_stale_catalog_responses_total",
			Help: "Catalog responses discarded because a newer one was already applied",
		},
	)

	ActiveVisitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_active_visitors",
			Help: "Number of visitors with a live view controller",
		},
	)
)
