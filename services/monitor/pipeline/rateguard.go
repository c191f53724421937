// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is the sentinel for rejected dispatches. Match with
// errors.Is; the concrete error is a *RateLimitError carrying the
// retry-after duration.
var ErrRateLimited = errors.New("analysis rate limited")

// RateLimitError reports how long a caller must wait before the next
// analysis round may start.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("analysis rate limited: wait %ds more", int(math.Ceil(e.RetryAfter.Seconds())))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RateGuard enforces the minimum interval between analysis round
// starts. The window anchors on the previous round's start, not its
// completion, so a slow round does not stretch the spacing.
type RateGuard struct {
	limiter *rate.Limiter
}

// NewRateGuard creates a guard with the given minimum interval between
// round starts. A non-positive interval disables the guard.
func NewRateGuard(minInterval time.Duration) *RateGuard {
	if minInterval <= 0 {
		return &RateGuard{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateGuard{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Allow consumes the round's slot, or returns a *RateLimitError with
// the remaining wait. Call exactly once per attempted dispatch, at
// round start.
func (g *RateGuard) Allow(now time.Time) error {
	res := g.limiter.ReserveN(now, 1)
	if !res.OK() {
		return &RateLimitError{RetryAfter: time.Minute}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &RateLimitError{RetryAfter: delay}
	}
	return nil
}
