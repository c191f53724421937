// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultsentinel/faultsentinel/services/llm"
)

type fakeProvider struct {
	id      string
	metered bool
	timeout time.Duration
	reply   string
	err     error
	hang    bool
}

func (f *fakeProvider) ID() string             { return f.id }
func (f *fakeProvider) Metered() bool          { return f.metered }
func (f *fakeProvider) Timeout() time.Duration { return f.timeout }

func (f *fakeProvider) Query(ctx context.Context, systemContext, prompt string, params llm.GenerationParams) (string, error) {
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testOrchestrator(t *testing.T, providers ...*fakeProvider) (*Orchestrator, *llm.Registry) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	registry := llm.NewRegistry(logger)
	for _, p := range providers {
		registry.Register(p, true, 0)
	}
	return NewOrchestrator(registry, logger), registry
}

func TestAnalyzeAllSettle(t *testing.T) {
	fast := &fakeProvider{id: "anthropic", timeout: time.Second, reply: "compressor surge"}
	slow := &fakeProvider{id: "gemini", timeout: 50 * time.Millisecond, hang: true}
	local := &fakeProvider{id: "lmstudio", timeout: time.Second, reply: "valve stiction"}
	orch, _ := testOrchestrator(t, fast, slow, local)

	res := orch.Analyze(context.Background(), Request{
		EpisodeID:         "ep-1",
		FeatureComparison: "- Reactor Temp: current=1.0, baseline=0.0, delta=+1.0\n",
	})

	require.Len(t, res.Results, 3)
	assert.Equal(t, llm.StatusSuccess, res.Results["anthropic"].Status)
	assert.Equal(t, "compressor surge", res.Results["anthropic"].Text)
	assert.Equal(t, llm.StatusSuccess, res.Results["lmstudio"].Status)
	assert.Equal(t, llm.StatusTimeout, res.Results["gemini"].Status)
	assert.Contains(t, res.Results["gemini"].Error, "50ms")
	assert.True(t, res.Succeeded())
}

func TestAnalyzeDisabledProviderSkipped(t *testing.T) {
	a := &fakeProvider{id: "anthropic", timeout: time.Second, reply: "ok"}
	b := &fakeProvider{id: "lmstudio", timeout: time.Second, reply: "ok"}
	orch, registry := testOrchestrator(t, a, b)
	require.NoError(t, registry.Toggle("anthropic", false))

	res := orch.Analyze(context.Background(), Request{EpisodeID: "ep-2"})

	require.Len(t, res.Results, 2)
	assert.Equal(t, llm.StatusSkipped, res.Results["anthropic"].Status)
	assert.Equal(t, "provider disabled", res.Results["anthropic"].Error)
	assert.Equal(t, llm.StatusSuccess, res.Results["lmstudio"].Status)

	// Skipped calls never reach the provider, so no latency accrues.
	usage := registry.Usage()
	assert.Zero(t, usage["anthropic"].Calls)
	assert.Equal(t, int64(1), usage["lmstudio"].Calls)
}

func TestAnalyzeAllFailedStillWellFormed(t *testing.T) {
	a := &fakeProvider{id: "anthropic", timeout: time.Second, err: errors.New("api key rejected")}
	b := &fakeProvider{id: "gemini", timeout: 20 * time.Millisecond, hang: true}
	orch, _ := testOrchestrator(t, a, b)

	res := orch.Analyze(context.Background(), Request{EpisodeID: "ep-3", FeatureComparison: "cmp"})

	require.Len(t, res.Results, 2)
	assert.Equal(t, llm.StatusError, res.Results["anthropic"].Status)
	assert.Equal(t, "api key rejected", res.Results["anthropic"].Error)
	assert.Equal(t, llm.StatusTimeout, res.Results["gemini"].Status)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "ep-3", res.EpisodeID)
	assert.Equal(t, "cmp", res.FeatureComparison)
}

func TestAnalyzeIndependentFailures(t *testing.T) {
	// One provider erroring must not mask the others' answers.
	ok := &fakeProvider{id: "lmstudio", timeout: time.Second, reply: "fouled exchanger"}
	bad := &fakeProvider{id: "anthropic", timeout: time.Second, err: errors.New("overloaded")}
	orch, _ := testOrchestrator(t, ok, bad)

	res := orch.Analyze(context.Background(), Request{EpisodeID: "ep-4"})
	assert.Equal(t, llm.StatusSuccess, res.Results["lmstudio"].Status)
	assert.Equal(t, llm.StatusError, res.Results["anthropic"].Status)
}

func TestQueryOneUnknownProvider(t *testing.T) {
	orch, _ := testOrchestrator(t)
	pr := orch.QueryOne(context.Background(), "nope", "sys", "q")
	assert.Equal(t, llm.StatusSkipped, pr.Status)
	assert.Equal(t, "unknown provider", pr.Error)
}

func TestQueryOneDisabledProvider(t *testing.T) {
	p := &fakeProvider{id: "gemini", timeout: time.Second, reply: "ok"}
	orch, registry := testOrchestrator(t, p)
	require.NoError(t, registry.Toggle("gemini", false))

	pr := orch.QueryOne(context.Background(), "gemini", "sys", "q")
	assert.Equal(t, llm.StatusSkipped, pr.Status)
	assert.Equal(t, "provider disabled", pr.Error)
}

func TestQueryOneSuccess(t *testing.T) {
	p := &fakeProvider{id: "lmstudio", timeout: time.Second, reply: "open the bypass"}
	orch, _ := testOrchestrator(t, p)

	pr := orch.QueryOne(context.Background(), "lmstudio", "sys", "what now?")
	assert.Equal(t, llm.StatusSuccess, pr.Status)
	assert.Equal(t, "open the bypass", pr.Text)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Request{
		EpisodeID:         "ep-9",
		FeatureComparison: "- Feed Flow: current=2.1, baseline=1.0, delta=+1.1\n",
	})
	assert.True(t, strings.HasPrefix(prompt, "A fault episode has been detected (episode ep-9)."))
	assert.Contains(t, prompt, "Feed Flow")
	assert.Contains(t, prompt, "root cause")
}
