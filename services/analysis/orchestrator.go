// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis fans fault context out to the enabled reasoning
// providers and reassembles stored snapshots for follow-up questions.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/faultsentinel/faultsentinel/services/detector"
	"github.com/faultsentinel/faultsentinel/services/llm"
)

var analysisTracer = otel.Tracer("faultsentinel/services/analysis")

// Request is one orchestration round's input. It is transient; nothing
// outlives the round except the Result.
type Request struct {
	EpisodeID         string                `json:"episode_id"`
	FeatureComparison string                `json:"feature_comparison"`
	TopFeatures       []detector.TopFeature `json:"top_features"`
}

// Result aggregates every provider's settled outcome for one round.
// A round where every provider failed or was skipped is still a
// well-formed Result.
type Result struct {
	EpisodeID         string                        `json:"episode_id"`
	FeatureComparison string                        `json:"feature_comparison"`
	Results           map[string]llm.ProviderResult `json:"results"`
}

// Succeeded reports whether at least one provider returned text.
func (r Result) Succeeded() bool {
	for _, pr := range r.Results {
		if pr.Status == llm.StatusSuccess {
			return true
		}
	}
	return false
}

// Orchestrator issues the same prompt to every enabled provider
// concurrently and collects whatever completes.
type Orchestrator struct {
	registry *llm.Registry
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the provider registry.
func NewOrchestrator(registry *llm.Registry, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, logger: logger}
}

// Analyze runs one round. Every registered provider appears in the
// returned map: disabled providers as skipped without being invoked,
// the rest with success, error, or timeout. Calls are independent — a
// slow or failing provider never delays or cancels another — and the
// round returns only once every dispatched call has settled. There are
// no retries within a round.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) Result {
	ctx, span := analysisTracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.String("episode_id", req.EpisodeID)))
	defer span.End()

	result := Result{
		EpisodeID:         req.EpisodeID,
		FeatureComparison: req.FeatureComparison,
		Results:           make(map[string]llm.ProviderResult),
	}

	prompt := BuildPrompt(req)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, state := range o.registry.All() {
		if !state.Enabled {
			result.Results[state.ID] = llm.ProviderResult{
				ProviderID: state.ID,
				Status:     llm.StatusSkipped,
				Error:      "provider disabled",
			}
			o.registry.RecordCall(state.ID, llm.StatusSkipped, 0)
			continue
		}

		provider, ok := o.registry.Get(state.ID)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(p llm.Provider) {
			defer wg.Done()
			pr := o.callProvider(ctx, p, DiagnosisSystemContext, prompt)
			mu.Lock()
			result.Results[p.ID()] = pr
			mu.Unlock()
		}(provider)
	}

	wg.Wait()

	o.logger.Info("analysis round settled",
		"episode_id", req.EpisodeID,
		"providers", len(result.Results),
		"any_success", result.Succeeded(),
	)
	return result
}

// QueryOne runs a single-provider query with the same timeout and error
// taxonomy as one Analyze call. A disabled or unknown provider is
// reported as skipped without being invoked.
func (o *Orchestrator) QueryOne(ctx context.Context, providerID, systemContext, prompt string) llm.ProviderResult {
	ctx, span := analysisTracer.Start(ctx, "analysis.QueryOne",
		trace.WithAttributes(attribute.String("provider", providerID)))
	defer span.End()

	provider, ok := o.registry.Get(providerID)
	if !ok {
		return llm.ProviderResult{
			ProviderID: providerID,
			Status:     llm.StatusSkipped,
			Error:      "unknown provider",
		}
	}
	if !o.registry.IsEnabled(providerID) {
		o.registry.RecordCall(providerID, llm.StatusSkipped, 0)
		return llm.ProviderResult{
			ProviderID: providerID,
			Status:     llm.StatusSkipped,
			Error:      "provider disabled",
		}
	}

	return o.callProvider(ctx, provider, systemContext, prompt)
}

func (o *Orchestrator) callProvider(ctx context.Context, p llm.Provider, systemContext, prompt string) llm.ProviderResult {
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	start := time.Now()
	text, err := p.Query(callCtx, systemContext, prompt, llm.GenerationParams{})
	latency := time.Since(start)

	pr := llm.ProviderResult{
		ProviderID: p.ID(),
		LatencyMs:  latency.Milliseconds(),
	}

	switch {
	case err == nil:
		pr.Status = llm.StatusSuccess
		pr.Text = text
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		// The underlying request is abandoned, not force-terminated; a
		// late result is simply discarded.
		pr.Status = llm.StatusTimeout
		pr.Error = "provider call exceeded " + p.Timeout().String()
		o.logger.Warn("provider call timed out", "provider", p.ID(), "timeout", p.Timeout().String())
	default:
		pr.Status = llm.StatusError
		pr.Error = err.Error()
		o.logger.Warn("provider call failed", "provider", p.ID(), "error", err)
	}

	o.registry.RecordCall(p.ID(), pr.Status, latency)
	return pr
}
