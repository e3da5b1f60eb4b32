// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks finished batches by final status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "intake",
			Name:      "batches_total",
			Help:      "Total number of processed batches by final status",
		},
		[]string{"status"},
	)

	// BatchDuration tracks end-to-end batch processing duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "intake",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch processing in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// RowsTotal tracks CSV rows by outcome (staged, invalid, skipped, malformed)
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "intake",
			Name:      "rows_total",
			Help:      "Total number of CSV rows by outcome",
		},
		[]string{"outcome"},
	)

	// DuplicateFlagsTotal tracks staged rows flagged as potential duplicates, or whose lookup failed
	DuplicateFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "intake",
			Name:      "duplicate_flags_total",
			Help:      "Total number of staged rows flagged during duplicate detection",
		},
		[]string{"reason"},
	)

	// DecisionsTotal tracks applied reviewer decisions by action and result
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "decisions",
			Name:      "applied_total",
			Help:      "Total number of reviewer decisions by action and result",
		},
		[]string{"action", "result"},
	)

	// RollbacksTotal tracks batch rollbacks by result
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "intake",
			Name:      "rollbacks_total",
			Help:      "Total number of batch rollbacks by result",
		},
		[]string{"result"},
	)

	// AuditEventsFailed tracks audit events that could not be published
	AuditEventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "audit",
			Name:      "publish_failures_total",
			Help:      "Total number of audit events that failed to publish",
		},
		[]string{"event_type"},
	)
)
