// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"math"
	"sync"

	"github.com/faultsentinel/faultsentinel/services/detector"
)

// ChangeGuard suppresses analysis rounds whose evidence is nearly
// identical to the previous round's: same channels (Jaccard overlap at
// or above the similarity threshold) and every shared channel's delta
// within epsilon of its prior value. It errs on the side of analyzing —
// no prior round, low overlap, or any internal inconsistency all
// resolve to "analyze".
type ChangeGuard struct {
	similarity float64
	epsilon    float64

	mu       sync.Mutex
	prior    []detector.TopFeature
	hasPrior bool
}

// NewChangeGuard creates a guard with the given Jaccard similarity
// threshold (reference 0.8) and per-channel delta epsilon.
func NewChangeGuard(similarity, epsilon float64) *ChangeGuard {
	return &ChangeGuard{similarity: similarity, epsilon: epsilon}
}

// ShouldAnalyze compares a candidate feature set against the last
// analyzed one. It is read-only; call Record once the round is actually
// dispatched.
func (g *ChangeGuard) ShouldAnalyze(features []detector.TopFeature) (bool, string) {
	g.mu.Lock()
	prior, hasPrior := g.prior, g.hasPrior
	g.mu.Unlock()

	if !hasPrior {
		return true, "no prior analysis"
	}
	return g.Compare(features, prior)
}

// Compare applies the similarity test to an explicit pair of feature
// sets. It is side-effect free and backs the change-check dry-run
// endpoint as well as ShouldAnalyze.
func (g *ChangeGuard) Compare(candidate, prior []detector.TopFeature) (bool, string) {
	if len(candidate) == 0 || len(prior) == 0 {
		// Nothing to compare; fail open.
		return true, "empty feature set, analyzing"
	}

	candSet := detector.ChannelSet(candidate)
	priorSet := detector.ChannelSet(prior)

	shared := 0
	for ch := range candSet {
		if _, ok := priorSet[ch]; ok {
			shared++
		}
	}
	union := len(candSet) + len(priorSet) - shared
	if union == 0 {
		return true, "empty feature set, analyzing"
	}

	jaccard := float64(shared) / float64(union)
	if jaccard < g.similarity {
		return true, fmt.Sprintf("channel overlap %.2f below %.2f", jaccard, g.similarity)
	}

	priorDeltas := make(map[string]float64, len(prior))
	for _, f := range prior {
		priorDeltas[f.Channel] = f.Delta
	}
	for _, f := range candidate {
		priorDelta, ok := priorDeltas[f.Channel]
		if !ok {
			continue
		}
		if math.Abs(f.Delta-priorDelta) > g.epsilon {
			return true, fmt.Sprintf("channel %s delta moved %.4f -> %.4f", f.Channel, priorDelta, f.Delta)
		}
	}

	return false, fmt.Sprintf("feature set unchanged (overlap %.2f, deltas within %.4f)", jaccard, g.epsilon)
}

// Record stores the feature set of a dispatched round as the new prior.
func (g *ChangeGuard) Record(features []detector.TopFeature) {
	copied := make([]detector.TopFeature, len(features))
	copy(copied, features)

	g.mu.Lock()
	g.prior = copied
	g.hasPrior = true
	g.mu.Unlock()
}
