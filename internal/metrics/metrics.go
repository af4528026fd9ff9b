// Package metrics exposes the facilitator's Prometheus collectors: mirror
// size, loader/refresh timing, LKG persistence outcomes, and audit
// sweep drift.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MirrorSize reports the number of entries in the current snapshot.
	MirrorSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitator_mirror_size",
			Help: "Number of service entries in the current mirror snapshot",
		},
	)

	// MirrorSource reports which source backs the current snapshot, as a
	// sticky gauge per source value (1 for the active source, 0 otherwise).
	MirrorSource = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facilitator_mirror_source",
			Help: "Whether the current snapshot came from db, lkg, or push (1=active)",
		},
		[]string{"source"},
	)

	// LoaderDuration tracks DB Loader latency.
	LoaderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facilitator_loader_duration_seconds",
			Help:    "Duration of DB Loader aggregation runs",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
	)

	// LoaderErrors counts loader failures by cause.
	LoaderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitator_loader_errors_total",
			Help: "Total DB Loader failures",
		},
		[]string{"reason"},
	)

	// LKGSaves counts LKG persistence attempts by outcome.
	LKGSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitator_lkg_saves_total",
			Help: "Total Last-Known-Good save attempts by outcome",
		},
		[]string{"target", "outcome"},
	)

	// RefreshCoalesced counts refreshes that were served by an in-flight
	// singleflight call rather than triggering a new load.
	RefreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitator_refresh_coalesced_total",
			Help: "Total TTL refreshes served by an in-flight singleflight call",
		},
	)

	// AuditDiscrepancies reports the most recent audit sweep's row count
	// for every bucket, including the included bucket.
	AuditDiscrepancies = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facilitator_audit_discrepancies",
			Help: "Count of database rows in each audit bucket from the most recent sweep",
		},
		[]string{"bucket"},
	)

	// ResolveRequests counts resolve lookups by outcome.
	ResolveRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitator_resolve_requests_total",
			Help: "Total resolve lookups by outcome",
		},
		[]string{"outcome"},
	)
)
