// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the monitor service's request and response
// shapes. Handlers bind and validate these; domain types stay in their
// own packages.
package datatypes

import (
	"time"

	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
	"github.com/faultsentinel/faultsentinel/services/store"
)

// IngestRequest is one sensor reading posted to /v1/ingest.
type IngestRequest struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values" binding:"required"`
}

// IngestResponse reports the reading's score and the trigger state
// after it was folded in.
type IngestResponse struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Anomalous bool    `json:"anomalous"`
	Degraded  bool    `json:"degraded,omitempty"`
	Status    string  `json:"status"`
	State     string  `json:"state"`
	EpisodeID string  `json:"episode_id,omitempty"`
}

// TriggerRequest asks for an operator-initiated analysis round over an
// explicit feature set.
type TriggerRequest struct {
	EpisodeID   string                `json:"episode_id"`
	TopFeatures []detector.TopFeature `json:"top_features" binding:"required,min=1"`
}

// TriggerResponse carries the settled round, including the rendered
// feature-comparison text the providers were shown.
type TriggerResponse struct {
	EpisodeID         string                        `json:"episode_id"`
	SnapshotID        string                        `json:"snapshot_id,omitempty"`
	FeatureComparison string                        `json:"feature_comparison"`
	Results           map[string]llm.ProviderResult `json:"results"`
	AnySuccess        bool                          `json:"any_success"`
}

// ChangeCheckRequest is the change guard dry-run: would this candidate
// feature set be analyzed given the prior one?
type ChangeCheckRequest struct {
	Candidate []detector.TopFeature `json:"candidate" binding:"required,min=1"`
	Prior     []detector.TopFeature `json:"prior"`
}

// ChangeCheckResponse is the dry-run verdict.
type ChangeCheckResponse struct {
	ShouldAnalyze bool   `json:"should_analyze"`
	Reason        string `json:"reason"`
}

// RenameRequest updates a snapshot's mutable fields.
type RenameRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ChatRequest is one follow-up question about a stored snapshot.
type ChatRequest struct {
	SnapshotID    string       `json:"snapshot_id" binding:"required"`
	Question      string       `json:"question" binding:"required"`
	ProviderID    string       `json:"provider_id" binding:"required"`
	RecentHistory []store.Turn `json:"recent_history"`
}

// ToggleRequest enables or disables one provider.
type ToggleRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	Enabled    *bool  `json:"enabled" binding:"required"`
}

// ExtendRequest pushes the metered session's expiry forward.
type ExtendRequest struct {
	// Duration is a Go duration string, e.g. "30m".
	Duration string `json:"duration" binding:"required"`
}

// RuntimeConfig is the effective runtime configuration exposed for
// operators and the CLI.
type RuntimeConfig struct {
	TriggerThreshold    int     `json:"trigger_threshold"`
	TopK                int     `json:"top_k"`
	WindowSize          int     `json:"window_size"`
	Similarity          float64 `json:"similarity"`
	Epsilon             float64 `json:"epsilon"`
	MinAnalysisInterval string  `json:"min_analysis_interval"`
	SessionDuration     string  `json:"session_duration"`
	CalibrationChannels int     `json:"calibration_channels"`
	AnomalyThreshold    float64 `json:"anomaly_threshold"`
}
