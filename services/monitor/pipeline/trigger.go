// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline turns scored readings into analysis dispatches: a
// debounced trigger state machine, a change guard suppressing
// near-duplicate rounds, a rate guard enforcing a minimum inter-analysis
// interval, and the single-consumer ingestion loop tying them together.
package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TriggerState is the debounce state of the trigger policy.
type TriggerState int

const (
	// StateNormal means the last reading scored below threshold.
	StateNormal TriggerState = iota
	// StateSuspect means 1..threshold-1 consecutive anomalous readings.
	StateSuspect
	// StateDispatched means an analysis round is in flight.
	StateDispatched
)

func (s TriggerState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateSuspect:
		return "suspect"
	case StateDispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

// Episode identifies one sustained deviation that crossed the debounce
// threshold.
type Episode struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	ConsecutiveCount int       `json:"consecutive_count"`
}

// TriggerPolicy is the debounce state machine between the detector and
// the orchestrator. A single anomalous reading never triggers; only
// `threshold` consecutive anomalous readings emit an episode, and any
// normal reading fully resets the count. While Dispatched it admits no
// second episode, enforcing at most one concurrent analysis round.
//
// Observe runs on the ingestion loop; RoundSettled runs on the analysis
// completion goroutine, so the policy locks internally.
type TriggerPolicy struct {
	mu          sync.Mutex
	threshold   int
	state       TriggerState
	consecutive int
	// lastAnomalous tracks the most recent reading seen while
	// Dispatched; it decides the post-settle state.
	lastAnomalous bool
}

// NewTriggerPolicy creates a policy that dispatches after threshold
// consecutive anomalous readings. A non-positive threshold is coerced
// to 1.
func NewTriggerPolicy(threshold int) *TriggerPolicy {
	if threshold < 1 {
		threshold = 1
	}
	return &TriggerPolicy{threshold: threshold}
}

// Observe folds one scored reading into the state machine. It returns
// an Episode with ok=true exactly when this reading completes the
// debounce run; the policy then holds Dispatched until RoundSettled.
// Anomalous readings observed while Dispatched never emit a second
// episode; they only influence the post-settle state.
func (p *TriggerPolicy) Observe(anomalous bool, at time.Time) (Episode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDispatched {
		p.lastAnomalous = anomalous
		return Episode{}, false
	}

	if !anomalous {
		p.state = StateNormal
		p.consecutive = 0
		return Episode{}, false
	}

	p.consecutive++
	if p.consecutive < p.threshold {
		p.state = StateSuspect
		return Episode{}, false
	}

	p.state = StateDispatched
	p.lastAnomalous = true
	ep := Episode{
		ID:               uuid.NewString(),
		StartedAt:        at,
		ConsecutiveCount: p.consecutive,
	}
	p.consecutive = 0
	return ep, true
}

// RoundSettled releases the Dispatched hold once the in-flight round
// (or a suppressed dispatch) has finished. If the most recent reading
// was anomalous the policy re-arms at Suspect(1) so a persisting fault
// forms the next episode; otherwise it returns to Normal.
func (p *TriggerPolicy) RoundSettled() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateDispatched {
		return
	}
	if p.lastAnomalous {
		p.state = StateSuspect
		p.consecutive = 1
	} else {
		p.state = StateNormal
		p.consecutive = 0
	}
	p.lastAnomalous = false
}

// State returns the current state and consecutive anomalous count.
func (p *TriggerPolicy) State() (TriggerState, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.consecutive
}
