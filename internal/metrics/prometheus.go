// Package metrics exposes Prometheus collectors for the remote adapter,
// the store, and the sync orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote adapter metrics
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_remote_calls_total",
			Help: "Total number of remote tournament-API calls",
		},
		[]string{"operation", "status"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphrank_remote_call_duration_seconds",
			Help:    "Duration of remote calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_remote_retries_total",
			Help: "Total number of remote call retry attempts",
		},
		[]string{"operation"},
	)

	// Store metrics
	StoreQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_store_queries_total",
			Help: "Total number of store queries",
		},
		[]string{"operation", "status"},
	)

	StoreConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrank_store_connections_active",
			Help: "Number of active pool connections",
		},
	)

	StoreConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrank_store_connections_idle",
			Help: "Number of idle pool connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrank_cache_hits_total",
			Help: "Total number of response-cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrank_cache_misses_total",
			Help: "Total number of response-cache misses",
		},
	)

	// Sync metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_sync_operations_total",
			Help: "Total number of dataset sync runs",
		},
		[]string{"dataset", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphrank_sync_duration_seconds",
			Help:    "Duration of dataset sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"dataset"},
	)

	SetsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_sets_applied_total",
			Help: "Total number of sets applied to the rating graph",
		},
		[]string{"dataset"},
	)

	LastSuccessfulSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphrank_last_successful_sync_timestamp",
			Help: "Timestamp of the last successful sync per dataset",
		},
		[]string{"dataset"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrank_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphrank_system_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)
)

// RecordRemoteCall records one remote call's outcome and latency.
func RecordRemoteCall(operation, status string, duration float64) {
	RemoteCallsTotal.WithLabelValues(operation, status).Inc()
	RemoteCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordStoreQuery records one store query's outcome.
func RecordStoreQuery(operation, status string) {
	StoreQueriesTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheHit records a response-cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a response-cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordSync records a dataset sync run's outcome and latency.
func RecordSync(dataset, status string, duration float64) {
	SyncOperationsTotal.WithLabelValues(dataset, status).Inc()
	SyncDuration.WithLabelValues(dataset).Observe(duration)
	if status == "success" {
		LastSuccessfulSync.WithLabelValues(dataset).SetToCurrentTime()
	}
}

// RecordSetsApplied increments the applied-set counter for one dataset.
func RecordSetsApplied(dataset string, n int) {
	SetsApplied.WithLabelValues(dataset).Add(float64(n))
}

// RecordError records an error by originating component.
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdatePoolStats updates store connection pool gauges.
func UpdatePoolStats(active, idle int32) {
	StoreConnectionsActive.Set(float64(active))
	StoreConnectionsIdle.Set(float64(idle))
}
