// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(ts int, values map[string]float64) Reading {
	return Reading{
		Timestamp: time.Date(2026, 3, 1, 0, 0, ts, 0, time.UTC),
		Values:    values,
	}
}

func TestBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Push(reading(i, map[string]float64{"c": float64(i)}))
	}

	require.Equal(t, 3, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, 3.0, snap[0].Values["c"])
	assert.Equal(t, 5.0, snap[2].Values["c"])
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewBuffer(2)
	b.Push(reading(1, map[string]float64{"c": 1}))

	snap := b.Snapshot()
	b.Push(reading(2, map[string]float64{"c": 2}))
	b.Push(reading(3, map[string]float64{"c": 3}))

	require.Len(t, snap, 1)
	assert.Equal(t, 1.0, snap[0].Values["c"])
}

func TestBuffer_MeansAndSummary(t *testing.T) {
	b := NewBuffer(10)
	b.Push(reading(1, map[string]float64{"p": 10, "q": 1}))
	b.Push(reading(2, map[string]float64{"p": 20, "q": 3}))
	b.Push(reading(3, map[string]float64{"p": 30}))

	means := b.Means()
	assert.InDelta(t, 20.0, means["p"], 1e-12)
	assert.InDelta(t, 2.0, means["q"], 1e-12)

	summary := b.Summary()
	assert.Equal(t, ChannelStats{Min: 10, Avg: 20, Max: 30}, summary["p"])
	assert.Equal(t, ChannelStats{Min: 1, Avg: 2, Max: 3}, summary["q"])
}

func TestTopFeatures_RanksByAbsoluteDelta(t *testing.T) {
	b := NewBuffer(10)
	b.Push(reading(1, map[string]float64{"a": 10, "b": 100, "c": 1000}))
	b.Push(reading(2, map[string]float64{"a": 10, "b": 100, "c": 1000}))

	current := reading(3, map[string]float64{"a": 15, "b": 98, "c": 1050, "unseen": 7})
	features := TopFeatures(current, b, 2)

	require.Len(t, features, 2)
	assert.Equal(t, "c", features[0].Channel)
	assert.InDelta(t, 50.0, features[0].Delta, 1e-12)
	assert.Equal(t, "a", features[1].Channel)
	assert.InDelta(t, 5.0, features[1].Delta, 1e-12)
}

func TestTopFeatures_TieBreaksOnChannelName(t *testing.T) {
	b := NewBuffer(10)
	b.Push(reading(1, map[string]float64{"x": 0, "y": 0}))

	current := reading(2, map[string]float64{"x": 5, "y": -5})
	for i := 0; i < 20; i++ {
		features := TopFeatures(current, b, 0)
		require.Len(t, features, 2)
		assert.Equal(t, "x", features[0].Channel, "iteration %d", i)
	}
}

func TestRenderComparison_ListsEveryFeature(t *testing.T) {
	features := []TopFeature{
		{Channel: "Reactor Pressure", Current: 2810, Baseline: 2705.1, Delta: 104.9},
		{Channel: "A Feed", Current: 0.21, Baseline: 0.25, Delta: -0.04},
	}
	text := RenderComparison(features)

	assert.Contains(t, text, "Reactor Pressure: current=2810.0000, baseline=2705.1000, delta=+104.9000")
	assert.Contains(t, text, "A Feed: current=0.2100, baseline=0.2500, delta=-0.0400")
}

func BenchmarkScore(b *testing.B) {
	// 52-channel model in the shape of the reference deployment.
	n := 52
	cal := &Calibration{Threshold: 30}
	for i := 0; i < n; i++ {
		cal.Channels = append(cal.Channels, fmt.Sprintf("ch%02d", i))
		cal.Means = append(cal.Means, float64(i))
		cal.Scales = append(cal.Scales, 1)
	}
	for j := 0; j < 20; j++ {
		comp := make([]float64, n)
		comp[j] = 1
		cal.Components = append(cal.Components, comp)
		cal.Eigenvalues = append(cal.Eigenvalues, 1)
	}
	cal.buildIndex()
	d := New(cal)

	r := Reading{Values: make(map[string]float64, n)}
	for i := 0; i < n; i++ {
		r.Values[fmt.Sprintf("ch%02d", i)] = float64(i) + 0.5
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Score(r); err != nil {
			b.Fatal(err)
		}
	}
}
