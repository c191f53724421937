// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import "strings"

// DiagnosisSystemContext frames every fault-analysis round. All
// providers receive the same system context so their answers are
// comparable.
const DiagnosisSystemContext = `You are an experienced control-room process engineer for a continuous chemical plant.
A statistical monitor has flagged a sustained deviation from normal operation.
Given the most-deviated sensor channels and their baselines, identify the most
plausible root causes, the physical mechanism linking the deviations, and the
first checks an operator should perform. Be specific about equipment and
measurements; say when the evidence is ambiguous.`

// FollowUpSystemContext frames a follow-up question about a stored
// analysis. The caller appends the reassembled snapshot context.
const FollowUpSystemContext = `You are an experienced control-room process engineer answering follow-up
questions about a fault analysis you performed earlier. Ground every answer in
the recorded sensor evidence below; say so plainly when the record does not
support an answer.`

// BuildPrompt renders the analysis prompt for one round.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("A fault episode has been detected (episode ")
	sb.WriteString(req.EpisodeID)
	sb.WriteString(").\n\n")
	sb.WriteString(req.FeatureComparison)
	sb.WriteString("\nExplain the most likely root cause of this deviation pattern and the recommended operator response.")
	return sb.String()
}
