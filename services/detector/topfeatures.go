// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// TopFeature is one channel's deviation from its windowed baseline at
// trigger time.
type TopFeature struct {
	Channel  string  `json:"channel"`
	Current  float64 `json:"current"`
	Baseline float64 `json:"baseline"`
	Delta    float64 `json:"delta"`
}

// TopFeatures ranks the reading's channels by absolute deviation from
// the buffer's per-channel mean and returns the k most deviated,
// descending. Channels with no baseline in the window are skipped.
// Ties break on channel name so the ordering is deterministic.
func TopFeatures(reading Reading, buffer *Buffer, k int) []TopFeature {
	baselines := buffer.Means()

	features := make([]TopFeature, 0, len(reading.Values))
	for ch, v := range reading.Values {
		base, ok := baselines[ch]
		if !ok {
			continue
		}
		features = append(features, TopFeature{
			Channel:  ch,
			Current:  v,
			Baseline: base,
			Delta:    v - base,
		})
	}

	sort.Slice(features, func(i, j int) bool {
		di, dj := math.Abs(features[i].Delta), math.Abs(features[j].Delta)
		if di != dj {
			return di > dj
		}
		return features[i].Channel < features[j].Channel
	})

	if k > 0 && len(features) > k {
		features = features[:k]
	}
	return features
}

// RenderComparison renders a feature set as the structured comparison
// text used as the analysis prompt payload and stored in snapshots.
func RenderComparison(features []TopFeature) string {
	var sb strings.Builder
	sb.WriteString("Top deviating channels (current vs normal-operation baseline):\n")
	for _, f := range features {
		fmt.Fprintf(&sb, "- %s: current=%.4f, baseline=%.4f, delta=%+.4f\n",
			f.Channel, f.Current, f.Baseline, f.Delta)
	}
	return sb.String()
}

// ChannelSet returns the set of channel names in a feature set.
func ChannelSet(features []TopFeature) map[string]struct{} {
	set := make(map[string]struct{}, len(features))
	for _, f := range features {
		set[f.Channel] = struct{}{}
	}
	return set
}
