// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateGuardSecondCallRejected(t *testing.T) {
	g := NewRateGuard(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, g.Allow(now))

	err := g.Allow(now.Add(10 * time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.InDelta(t, 50.0, rle.RetryAfter.Seconds(), 0.001)
	assert.Contains(t, err.Error(), "wait 50s more")
}

func TestRateGuardWindowAnchorsOnRoundStart(t *testing.T) {
	g := NewRateGuard(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, g.Allow(now))

	// One full interval after the previous round's start, regardless of
	// how long that round took.
	require.NoError(t, g.Allow(now.Add(time.Minute)))
}

func TestRateGuardRejectionDoesNotConsumeSlot(t *testing.T) {
	g := NewRateGuard(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, g.Allow(now))
	require.Error(t, g.Allow(now.Add(30*time.Second)))

	// The rejected attempt must not push the window further out.
	require.NoError(t, g.Allow(now.Add(time.Minute)))
}

func TestRateGuardDisabled(t *testing.T) {
	g := NewRateGuard(0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.NoError(t, g.Allow(now))
	}
}

func TestRateLimitErrorMatching(t *testing.T) {
	err := error(&RateLimitError{RetryAfter: 90 * time.Second})
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, "analysis rate limited: wait 90s more", err.Error())
}
