// README: Prometheus collectors for pricing, dispatch and the HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taxidispatch"

var (
	PriceQuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "price_quotes_total", Help: "Fare quotes by pricing path"},
		[]string{"path"},
	)
	PriceDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "price_degraded_total", Help: "Fare quotes that fell back to the default fare"},
	)
	DistanceLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "distance_lookups_total", Help: "Distance resolutions by method"},
		[]string{"method"},
	)

	DispatchPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_passes_total", Help: "Dispatch passes by outcome"},
		[]string{"outcome"},
	)
	DispatchAssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_assignments_total", Help: "Jobs assigned to drivers"},
	)
	DispatchJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_job_failures_total", Help: "Jobs left pending after a pass, by reason"},
		[]string{"reason"},
	)
	DispatchPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_pass_duration_seconds", Help: "Duration of one tenant dispatch pass", Buckets: prometheus.DefBuckets},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
