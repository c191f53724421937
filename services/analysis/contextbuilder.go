// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/faultsentinel/faultsentinel/services/store"
)

// DefaultContextBudget bounds the reassembled context handed to a
// provider for a follow-up question.
const DefaultContextBudget = 16 * 1024

// BuildContext reassembles a stored snapshot into a bounded context
// block: the original feature comparison, each provider's stored
// analysis, one rendered summary line per channel, then the recent
// conversation turns. When the block exceeds maxBytes, history is
// dropped oldest-first; as a last resort the block is truncated.
func BuildContext(snap store.Snapshot, history []store.Turn, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultContextBudget
	}

	var core strings.Builder
	core.WriteString("## Fault evidence\n")
	core.WriteString(snap.FeatureComparison)
	core.WriteString("\n## Prior analyses\n")

	providerIDs := make([]string, 0, len(snap.ProviderResults))
	for id := range snap.ProviderResults {
		providerIDs = append(providerIDs, id)
	}
	sort.Strings(providerIDs)
	for _, id := range providerIDs {
		pr := snap.ProviderResults[id]
		if pr.Text == "" {
			fmt.Fprintf(&core, "### %s\n(no analysis: %s)\n", id, pr.Status)
			continue
		}
		fmt.Fprintf(&core, "### %s\n%s\n", id, pr.Text)
	}

	core.WriteString("\n## Sensor summary at trigger time\n")
	channels := make([]string, 0, len(snap.SensorSummary))
	for ch := range snap.SensorSummary {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		s := snap.SensorSummary[ch]
		fmt.Fprintf(&core, "%s: min=%.4f, avg=%.4f, max=%.4f\n", ch, s.Min, s.Avg, s.Max)
	}

	block := core.String()

	if len(history) > 0 {
		var turns strings.Builder
		turns.WriteString("\n## Recent conversation\n")
		// Drop oldest turns first until the whole block fits.
		start := 0
		for start < len(history) {
			turns.Reset()
			turns.WriteString("\n## Recent conversation\n")
			for _, t := range history[start:] {
				fmt.Fprintf(&turns, "%s: %s\n", t.Role, t.Content)
			}
			if len(block)+turns.Len() <= maxBytes {
				break
			}
			start++
		}
		if start < len(history) {
			block += turns.String()
		}
	}

	if len(block) > maxBytes {
		block = block[:maxBytes]
	}
	return block
}
