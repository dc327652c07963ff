// Package metrics provides Prometheus metrics for the export pipeline.
// All metrics are registered automatically via promauto; components record
// into the package-level vectors with their own labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssetsProcessed tracks assets processed per type and outcome.
	// Labels: asset_type, status (success/error)
	AssetsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_assets_processed_total",
			Help: "Total number of assets processed",
		},
		[]string{"asset_type", "status"},
	)

	// CategoryFetches tracks per-category detail fetches.
	// Labels: category (definition/permissions/tags/special), outcome (ok/degraded)
	CategoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_category_fetches_total",
			Help: "Total number of per-asset detail category fetches",
		},
		[]string{"category", "outcome"},
	)

	// RetryAttempts tracks retries per named operation
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	// PagesFetched tracks listing pages fetched per asset type
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_pages_fetched_total",
			Help: "Total number of listing pages fetched",
		},
		[]string{"asset_type"},
	)

	// BatchFlushes tracks collection batch flushes.
	// Labels: outcome (written/skipped/failed)
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_batch_flushes_total",
			Help: "Total number of collection batch flush operations",
		},
		[]string{"outcome"},
	)

	// StoreWriteLatency tracks object store write latency
	StoreWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "assetsync_store_write_latency_seconds",
			Help: "Object store write latency in seconds",
			Buckets: []float64{
				0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
			},
		},
	)

	// ExportDuration tracks the wall time of a full type export
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetsync_export_duration_seconds",
			Help:    "Duration of a full asset type export",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"asset_type"},
	)
)

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer was started
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveStoreWrite records an object store write duration
func ObserveStoreWrite(d time.Duration) {
	StoreWriteLatency.Observe(d.Seconds())
}
