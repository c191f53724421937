// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultsentinel/faultsentinel/services/detector"
)

func features(pairs ...any) []detector.TopFeature {
	out := make([]detector.TopFeature, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, detector.TopFeature{
			Channel: pairs[i].(string),
			Delta:   pairs[i+1].(float64),
		})
	}
	return out
}

func TestChangeGuardNoPriorAnalyzes(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)

	ok, reason := g.ShouldAnalyze(features("Reactor Temp", 1.0))
	assert.True(t, ok)
	assert.Equal(t, "no prior analysis", reason)
}

func TestChangeGuardIdenticalSetSkips(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	set := features("Reactor Temp", 1.0, "Feed Flow", -0.5)
	g.Record(set)

	ok, reason := g.ShouldAnalyze(set)
	assert.False(t, ok)
	assert.Contains(t, reason, "unchanged")
}

func TestChangeGuardSmallDeltaDriftSkips(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	g.Record(features("Reactor Temp", 1.0, "Feed Flow", -0.5))

	ok, _ := g.ShouldAnalyze(features("Reactor Temp", 1.02, "Feed Flow", -0.48))
	assert.False(t, ok)
}

func TestChangeGuardLowOverlapAnalyzes(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	g.Record(features("Reactor Temp", 1.0, "Feed Flow", -0.5))

	// One of two channels replaced: Jaccard 1/3 < 0.8.
	ok, reason := g.ShouldAnalyze(features("Reactor Temp", 1.0, "Coolant Flow", 2.0))
	assert.True(t, ok)
	assert.Contains(t, reason, "overlap")
}

func TestChangeGuardMovedDeltaAnalyzes(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	g.Record(features("Reactor Temp", 1.0, "Feed Flow", -0.5))

	ok, reason := g.ShouldAnalyze(features("Reactor Temp", 1.5, "Feed Flow", -0.5))
	assert.True(t, ok)
	assert.Contains(t, reason, "Reactor Temp")
}

func TestChangeGuardEmptySetFailsOpen(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	g.Record(features("Reactor Temp", 1.0))

	ok, _ := g.ShouldAnalyze(nil)
	assert.True(t, ok)
}

func TestChangeGuardCompareIsSideEffectFree(t *testing.T) {
	g := NewChangeGuard(0.8, 0.05)
	prior := features("Reactor Temp", 1.0)

	ok, _ := g.Compare(features("Reactor Temp", 1.0), prior)
	assert.False(t, ok)

	// Compare never records; the guard still has no prior of its own.
	ok, reason := g.ShouldAnalyze(features("Reactor Temp", 1.0))
	assert.True(t, ok)
	assert.Equal(t, "no prior analysis", reason)
}
