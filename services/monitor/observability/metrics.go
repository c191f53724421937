// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the monitor service.
//
// # Description
//
// Counters, gauges, and histograms covering the ingestion pipeline and the
// analysis fan-out: readings scored, episodes by outcome, provider call
// results, analysis round latency, and snapshot persistence failures.
// Exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "faultsentinel"

const pipelineSubsystem = "pipeline"

const sessionSubsystem = "session"

// Metrics holds the monitor service's Prometheus instruments. Initialize
// once at startup via InitMetrics.
type Metrics struct {
	// ReadingsTotal counts ingested readings.
	// Labels: status (scored, schema_mismatch)
	ReadingsTotal *prometheus.CounterVec

	// AnomalousReadingsTotal counts readings whose T² exceeded the
	// calibration threshold.
	AnomalousReadingsTotal prometheus.Counter

	// EpisodesTotal counts trigger episodes by outcome.
	// Labels: outcome (dispatched, change_skipped, rate_limited)
	EpisodesTotal *prometheus.CounterVec

	// ActiveAnalysisRounds tracks in-flight analysis rounds. The trigger
	// policy keeps this at 0 or 1.
	ActiveAnalysisRounds prometheus.Gauge

	// AnalysisRoundSeconds measures wall time from dispatch to settle.
	// Labels: result (success, all_failed)
	AnalysisRoundSeconds *prometheus.HistogramVec

	// ProviderCallsTotal counts settled provider calls.
	// Labels: provider, status (success, error, timeout, skipped)
	ProviderCallsTotal *prometheus.CounterVec

	// SnapshotFailuresTotal counts snapshot appends that failed after a
	// round settled.
	SnapshotFailuresTotal prometheus.Counter

	// IngestBacklog tracks readings queued but not yet consumed.
	IngestBacklog prometheus.Gauge

	// SessionRemainingSeconds tracks the metered session guard's
	// countdown; zero while no session is active.
	SessionRemainingSeconds prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *Metrics

// InitMetrics creates and registers all instruments against the default
// registry. Call once at startup; a second call panics on duplicate
// registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		ReadingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "readings_total",
				Help:      "Total ingested readings by scoring status",
			},
			[]string{"status"},
		),

		AnomalousReadingsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "anomalous_readings_total",
				Help:      "Total readings scored above the anomaly threshold",
			},
		),

		EpisodesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "episodes_total",
				Help:      "Total trigger episodes by outcome",
			},
			[]string{"outcome"},
		),

		ActiveAnalysisRounds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_analysis_rounds",
				Help:      "Analysis rounds currently in flight",
			},
		),

		AnalysisRoundSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "analysis_round_seconds",
				Help:      "Wall time from dispatch to settle per analysis round",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),

		ProviderCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "provider_calls_total",
				Help:      "Total settled provider calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		SnapshotFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "snapshot_failures_total",
				Help:      "Snapshot appends that failed after a settled round",
			},
		),

		IngestBacklog: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "ingest_backlog",
				Help:      "Readings queued for the pipeline consumer",
			},
		),

		SessionRemainingSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "remaining_seconds",
				Help:      "Seconds left on the metered session guard, zero when inactive",
			},
		),
	}

	return DefaultMetrics
}

// Outcome labels for EpisodesTotal.
const (
	OutcomeDispatched  = "dispatched"
	OutcomeChangeSkip  = "change_skipped"
	OutcomeRateLimited = "rate_limited"
)
