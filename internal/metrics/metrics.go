// Package metrics holds the Prometheus collectors of the search service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "facetsearch"

var (
	// CacheRequestsTotal counts request cache lookups by result ("hit" / "miss").
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Request cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheErrorsTotal counts failed cache operations by operation.
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Failed cache operations",
		},
		[]string{"op"},
	)

	// SearchBatchDuration observes engine round trips by kind ("hits" / "facets").
	SearchBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_batch_duration_seconds",
			Help:      "Search engine batch duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	// FacetComputeTotal counts facet group computations by mode
	// ("direct" / "cached" / "preload") and status.
	FacetComputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facet_compute_total",
			Help:      "Facet group computations",
		},
		[]string{"mode", "status"},
	)
)

func init() {
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(SearchBatchDuration)
	prometheus.MustRegister(FacetComputeTotal)
}
