// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/faultsentinel/faultsentinel/services/llm"
)

// newTestMetrics builds an isolated instance against its own registry so
// tests never collide with the default registry.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ReadingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "readings_total",
				Help:      "Total ingested readings by scoring status",
			},
			[]string{"status"},
		),
		EpisodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "episodes_total",
				Help:      "Total trigger episodes by outcome",
			},
			[]string{"outcome"},
		),
		ActiveAnalysisRounds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_analysis_rounds",
				Help:      "Analysis rounds currently in flight",
			},
		),
		SessionRemainingSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "remaining_seconds",
				Help:      "Seconds left on the metered session guard, zero when inactive",
			},
		),
	}
	reg.MustRegister(m.ReadingsTotal, m.EpisodesTotal, m.ActiveAnalysisRounds, m.SessionRemainingSeconds)
	return m
}

func TestReadingCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.ReadingsTotal.WithLabelValues("scored").Inc()
	m.ReadingsTotal.WithLabelValues("scored").Inc()
	m.ReadingsTotal.WithLabelValues("schema_mismatch").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReadingsTotal.WithLabelValues("scored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadingsTotal.WithLabelValues("schema_mismatch")))
}

func TestEpisodeOutcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.EpisodesTotal.WithLabelValues(OutcomeDispatched).Inc()
	m.EpisodesTotal.WithLabelValues(OutcomeRateLimited).Inc()
	m.EpisodesTotal.WithLabelValues(OutcomeRateLimited).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EpisodesTotal.WithLabelValues(OutcomeDispatched)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EpisodesTotal.WithLabelValues(OutcomeRateLimited)))
}

func TestSessionRemainingGaugeTracksGuard(t *testing.T) {
	m := newTestMetrics(t)

	guard := llm.NewSessionGuard(30*time.Minute, slog.New(slog.DiscardHandler))
	guard.SetRemainingGauge(m.SessionRemainingSeconds.Set)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionRemainingSeconds))

	guard.Arm()
	assert.InDelta(t, (30 * time.Minute).Seconds(),
		testutil.ToFloat64(m.SessionRemainingSeconds), 5.0)

	guard.Shutdown()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionRemainingSeconds))
}

func TestActiveRoundsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.ActiveAnalysisRounds.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveAnalysisRounds))
	m.ActiveAnalysisRounds.Dec()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveAnalysisRounds))
}
