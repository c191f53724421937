package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrUnknownProvider is returned for toggles or lookups of ids that were
// never registered.
var ErrUnknownProvider = errors.New("unknown provider")

// CallStatus is the settled outcome of one provider call.
type CallStatus string

const (
	StatusSuccess CallStatus = "success"
	StatusError   CallStatus = "error"
	StatusTimeout CallStatus = "timeout"
	StatusSkipped CallStatus = "skipped"
)

// UsageStats are the aggregate counters for one provider.
type UsageStats struct {
	Calls            int64   `json:"calls"`
	Successes        int64   `json:"successes"`
	Errors           int64   `json:"errors"`
	Timeouts         int64   `json:"timeouts"`
	TotalLatencyMs   int64   `json:"total_latency_ms"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// ProviderState is one row of the administration surface.
type ProviderState struct {
	ID             string  `json:"id"`
	Metered        bool    `json:"metered"`
	Enabled        bool    `json:"enabled"`
	CostPerCallUSD float64 `json:"cost_per_call_usd,omitempty"`
}

type registration struct {
	provider    Provider
	enabled     bool
	costPerCall float64
}

// Registry owns the runtime provider configuration: which providers are
// enabled, their usage and cost counters, and the session guard wiring
// for metered providers. All mutation goes through Toggle, ResetUsage,
// and the guard callbacks; nothing else writes this state.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registration
	usage   map[string]*UsageStats
	guard   *SessionGuard
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*registration),
		logger:  logger,
	}
}

// Register adds a provider with its initial enabled state and per-call
// cost estimate. Registering an id twice replaces the earlier entry.
func (r *Registry) Register(p Provider, enabled bool, costPerCallUSD float64) {
	r.mu.Lock()
	r.entries[p.ID()] = &registration{
		provider:    p,
		enabled:     enabled,
		costPerCall: costPerCallUSD,
	}
	armGuard := enabled && p.Metered() && r.guard != nil && !r.guard.Active()
	guard := r.guard
	r.mu.Unlock()

	if armGuard {
		guard.Arm()
	}
}

// AttachGuard wires the session guard: expiry or shutdown disables every
// metered provider.
func (r *Registry) AttachGuard(g *SessionGuard) {
	r.mu.Lock()
	r.guard = g
	r.mu.Unlock()
	g.SetOnExpire(func() {
		disabled := r.DisableMetered()
		r.logger.Info("metered providers disabled by session guard", "providers", disabled)
	})
}

// Guard returns the attached session guard, or nil.
func (r *Registry) Guard() *SessionGuard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard
}

// Get returns the provider for an id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return reg.provider, true
}

// IsEnabled reports whether a provider is currently enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	return ok && reg.enabled
}

// Enabled returns the enabled providers, ordered by id.
func (r *Registry) Enabled() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Provider
	for _, reg := range r.entries {
		if reg.enabled {
			out = append(out, reg.provider)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// All returns the state of every registered provider, ordered by id.
func (r *Registry) All() []ProviderState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProviderState, 0, len(r.entries))
	for id, reg := range r.entries {
		out = append(out, ProviderState{
			ID:             id,
			Metered:        reg.provider.Metered(),
			Enabled:        reg.enabled,
			CostPerCallUSD: reg.costPerCall,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Toggle enables or disables a provider at runtime. Enabling a metered
// provider arms the session guard if it is not already running.
func (r *Registry) Toggle(id string, enabled bool) error {
	r.mu.Lock()
	reg, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	reg.enabled = enabled
	armGuard := enabled && reg.provider.Metered() && r.guard != nil && !r.guard.Active()
	guard := r.guard
	r.mu.Unlock()

	r.logger.Info("provider toggled", "provider", id, "enabled", enabled)
	if armGuard {
		guard.Arm()
	}
	return nil
}

// DisableMetered disables every metered provider and returns their ids.
// Called by the session guard on expiry or shutdown.
func (r *Registry) DisableMetered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var disabled []string
	for id, reg := range r.entries {
		if reg.provider.Metered() && reg.enabled {
			reg.enabled = false
			disabled = append(disabled, id)
		}
	}
	sort.Strings(disabled)
	return disabled
}

// RecordCall folds one settled call into the provider's counters.
// Skipped calls count neither cost nor latency.
func (r *Registry) RecordCall(id string, status CallStatus, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return
	}
	s := r.statsLocked(id)

	switch status {
	case StatusSkipped:
		return
	case StatusSuccess:
		s.Successes++
		s.EstimatedCostUSD += reg.costPerCall
	case StatusTimeout:
		s.Timeouts++
		s.EstimatedCostUSD += reg.costPerCall
	case StatusError:
		s.Errors++
	}
	s.Calls++
	s.TotalLatencyMs += latency.Milliseconds()
}

// Usage returns a copy of every provider's counters.
func (r *Registry) Usage() map[string]UsageStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]UsageStats, len(r.entries))
	for id := range r.entries {
		out[id] = *r.statsLocked(id)
	}
	return out
}

// ResetUsage zeroes every provider's counters.
func (r *Registry) ResetUsage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = make(map[string]*UsageStats, len(r.entries))
}

func (r *Registry) statsLocked(id string) *UsageStats {
	if r.usage == nil {
		r.usage = make(map[string]*UsageStats, len(r.entries))
	}
	s, ok := r.usage[id]
	if !ok {
		s = &UsageStats{}
		r.usage[id] = s
	}
	return s
}
