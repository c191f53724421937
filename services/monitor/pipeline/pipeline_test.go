// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultsentinel/faultsentinel/services/analysis"
	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/store"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []analysis.Request
	block    chan struct{} // when non-nil, Analyze waits on it
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) analysis.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	return analysis.Result{
		EpisodeID:         req.EpisodeID,
		FeatureComparison: req.FeatureComparison,
		Results: map[string]llm.ProviderResult{
			"lmstudio": {ProviderID: "lmstudio", Status: llm.StatusSuccess, Text: "stub analysis"},
		},
	}
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAnalyzer) request(i int) analysis.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type memAppender struct {
	mu    sync.Mutex
	snaps []store.Snapshot
	fail  bool
}

func (m *memAppender) Append(snap store.Snapshot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("disk full")
	}
	snap.ID = "snap-stub"
	m.snaps = append(m.snaps, snap)
	return snap.ID, nil
}

func (m *memAppender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

type memFeed struct {
	mu      sync.Mutex
	updates []LiveUpdate
}

func (m *memFeed) Broadcast(update LiveUpdate) {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()
}

func (m *memFeed) byType(kind string) []LiveUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LiveUpdate
	for _, u := range m.updates {
		if u.Type == kind {
			out = append(out, u)
		}
	}
	return out
}

// pipelineCalibration mirrors the detector test model: two identity
// components over the first two channels, threshold 9, so a 10-sigma
// shift on Reactor Pressure scores T²=100.
func pipelineCalibration() *detector.Calibration {
	return &detector.Calibration{
		Channels:    []string{"Reactor Pressure", "Reactor Level", "A Feed"},
		Means:       []float64{2705.0, 75.0, 0.25},
		Scales:      []float64{1.0, 2.0, 0.05},
		Components:  [][]float64{{1, 0, 0}, {0, 1, 0}},
		Eigenvalues: []float64{1, 1},
		Threshold:   9.0,
	}
}

func normalValues() map[string]float64 {
	return map[string]float64{
		"Reactor Pressure": 2705.0,
		"Reactor Level":    75.0,
		"A Feed":           0.25,
	}
}

func shiftedValues() map[string]float64 {
	v := normalValues()
	v["Reactor Pressure"] = 2715.0 // 10 sigma
	return v
}

func startPipeline(t *testing.T, cfg Config, analyzer Analyzer, appender SnapshotAppender, feed Broadcaster) *Pipeline {
	t.Helper()
	det := detector.New(pipelineCalibration())
	p := New(cfg, det, analyzer, appender, feed, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func TestSteadyStateProducesNoEpisodes(t *testing.T) {
	az := &fakeAnalyzer{}
	ap := &memAppender{}
	p := startPipeline(t, Config{TriggerThreshold: 3, QueueSize: 1024}, az, ap, nil)

	ctx := context.Background()
	for i := 0; i < 499; i++ {
		require.NoError(t, p.Submit(ctx, detector.Reading{Values: normalValues()}))
	}
	// A synchronous ingest at the tail guarantees the queue has drained.
	update, err := p.Ingest(ctx, detector.Reading{Values: normalValues()})
	require.NoError(t, err)

	assert.Equal(t, "normal", update.State)
	assert.False(t, update.Anomalous)
	assert.Zero(t, az.calls())
	assert.Zero(t, ap.count())
}

func TestDebounceSwallowsShortBlips(t *testing.T) {
	az := &fakeAnalyzer{}
	p := startPipeline(t, Config{TriggerThreshold: 3}, az, &memAppender{}, nil)

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, detector.Reading{Values: shiftedValues()}))
	require.NoError(t, p.Submit(ctx, detector.Reading{Values: shiftedValues()}))
	update, err := p.Ingest(ctx, detector.Reading{Values: normalValues()})
	require.NoError(t, err)

	assert.Equal(t, "normal", update.State)
	assert.Zero(t, az.calls())
}

func TestSustainedShiftDispatchesOneRound(t *testing.T) {
	// Block the analyzer so the dispatched state is observable before the
	// round settles.
	az := &fakeAnalyzer{block: make(chan struct{})}
	ap := &memAppender{}
	feed := &memFeed{}
	p := startPipeline(t, Config{TriggerThreshold: 3}, az, ap, feed)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(ctx, detector.Reading{Values: normalValues()}))
	}
	var update LiveUpdate
	var err error
	for i := 0; i < 3; i++ {
		update, err = p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
		require.NoError(t, err)
	}

	assert.True(t, update.Anomalous)
	assert.NotEmpty(t, update.EpisodeID)
	assert.Equal(t, "dispatched", update.State)

	close(az.block)
	require.Eventually(t, func() bool { return ap.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, az.calls())

	// The shifted channel leads the evidence handed to the analyzer.
	req := az.request(0)
	require.NotEmpty(t, req.TopFeatures)
	assert.Equal(t, "Reactor Pressure", req.TopFeatures[0].Channel)
	assert.Contains(t, req.FeatureComparison, "Reactor Pressure")
	assert.Equal(t, update.EpisodeID, req.EpisodeID)

	settled := feed.byType("analysis")
	require.Len(t, settled, 1)
	assert.True(t, settled[0].AnySuccess)
	assert.Equal(t, "snap-stub", settled[0].SnapshotID)
}

func TestAtMostOneConcurrentRound(t *testing.T) {
	az := &fakeAnalyzer{block: make(chan struct{})}
	ap := &memAppender{}
	p := startPipeline(t, Config{TriggerThreshold: 2}, az, ap, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return az.calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The fault persists while the round is in flight; no second round
	// starts.
	for i := 0; i < 6; i++ {
		update, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
		require.NoError(t, err)
		assert.Equal(t, "dispatched", update.State)
	}
	assert.Equal(t, 1, az.calls())

	close(az.block)
	require.Eventually(t, func() bool { return ap.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Post-settle the policy re-arms at Suspect(1) because the last
	// reading was still anomalous.
	require.Eventually(t, func() bool {
		state, consecutive := p.Policy().State()
		return state == StateSuspect && consecutive == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChangeGuardSuppressesRepeatEvidence(t *testing.T) {
	az := &fakeAnalyzer{}
	ap := &memAppender{}
	p := startPipeline(t, Config{TriggerThreshold: 2, Similarity: 0.8, Epsilon: 1.0}, az, ap, nil)

	ctx := context.Background()
	// A steady preamble pins the windowed baselines so both episodes
	// carry near-identical deltas.
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(ctx, detector.Reading{Values: normalValues()}))
	}
	dispatchEpisode := func() {
		for i := 0; i < 2; i++ {
			_, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
			require.NoError(t, err)
		}
	}

	dispatchEpisode()
	require.Eventually(t, func() bool { return ap.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Clear back to normal, then re-trigger with identical evidence.
	_, err := p.Ingest(ctx, detector.Reading{Values: normalValues()})
	require.NoError(t, err)
	dispatchEpisode()

	// The second episode is suppressed: same channels, deltas within
	// epsilon.
	update, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
	require.NoError(t, err)
	assert.NotEqual(t, "dispatched", update.State)
	assert.Equal(t, 1, az.calls())
}

func TestRateGuardSuppressesBackToBackRounds(t *testing.T) {
	az := &fakeAnalyzer{}
	ap := &memAppender{}
	// Epsilon 0 so changing evidence always passes the change guard.
	p := startPipeline(t, Config{TriggerThreshold: 2, Similarity: 0.99, Epsilon: 0, MinAnalysisInterval: time.Hour}, az, ap, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return az.calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := p.Ingest(ctx, detector.Reading{Values: normalValues()})
	require.NoError(t, err)

	values := shiftedValues()
	values["Reactor Level"] = 95.0 // different evidence, passes the change guard
	for i := 0; i < 2; i++ {
		_, err := p.Ingest(ctx, detector.Reading{Values: values})
		require.NoError(t, err)
	}

	// Second round rejected by the rate guard; policy released.
	update, err := p.Ingest(ctx, detector.Reading{Values: values})
	require.NoError(t, err)
	assert.NotEqual(t, "dispatched", update.State)
	assert.Equal(t, 1, az.calls())
}

func TestPersistenceFailureStillSettles(t *testing.T) {
	az := &fakeAnalyzer{}
	ap := &memAppender{fail: true}
	feed := &memFeed{}
	p := startPipeline(t, Config{TriggerThreshold: 2}, az, ap, feed)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := p.Ingest(ctx, detector.Reading{Values: shiftedValues()})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(feed.byType("analysis")) == 1 }, 2*time.Second, 10*time.Millisecond)
	settled := feed.byType("analysis")[0]
	assert.True(t, settled.AnySuccess)
	assert.Empty(t, settled.SnapshotID)
}

func TestSubmitBacklogFull(t *testing.T) {
	det := detector.New(pipelineCalibration())
	p := New(Config{QueueSize: 1}, det, &fakeAnalyzer{}, &memAppender{}, nil, nil, slog.New(slog.DiscardHandler))

	// No consumer running: the second submit finds the queue full.
	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, detector.Reading{Values: normalValues()}))
	err := p.Submit(ctx, detector.Reading{Values: normalValues()})
	assert.ErrorIs(t, err, ErrBacklogFull)
}

func TestSchemaMismatchDegradesWithoutAborting(t *testing.T) {
	az := &fakeAnalyzer{}
	p := startPipeline(t, Config{TriggerThreshold: 3}, az, &memAppender{}, nil)

	ctx := context.Background()
	update, err := p.Ingest(ctx, detector.Reading{Values: map[string]float64{"A Feed": 0.25}})
	require.NoError(t, err)
	assert.Equal(t, "schema_mismatch", update.Status)

	// The stream keeps flowing after the bad reading.
	update, err = p.Ingest(ctx, detector.Reading{Values: normalValues()})
	require.NoError(t, err)
	assert.Equal(t, "scored", update.Status)
	assert.False(t, update.Anomalous)
}

func TestAnalyzeNowRateLimited(t *testing.T) {
	az := &fakeAnalyzer{}
	ap := &memAppender{}
	p := startPipeline(t, Config{TriggerThreshold: 3, MinAnalysisInterval: time.Hour}, az, ap, nil)

	fs := []detector.TopFeature{{Channel: "Reactor Pressure", Current: 2715, Baseline: 2705, Delta: 10}}

	result, snapID, err := p.AnalyzeNow(context.Background(), "", fs)
	require.NoError(t, err)
	assert.Equal(t, "snap-stub", snapID)
	assert.True(t, result.Succeeded())

	_, _, err = p.AnalyzeNow(context.Background(), "", fs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
}
