package llm

import (
	"context"
	"time"
)

// GenerationParams carries optional sampling parameters for a query.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ProviderResult is one provider's settled outcome for one request.
// Every dispatched or skipped provider produces exactly one, independent
// of the other providers' outcomes.
type ProviderResult struct {
	ProviderID string     `json:"provider_id"`
	Status     CallStatus `json:"status"`
	Text       string     `json:"text,omitempty"`
	Error      string     `json:"error,omitempty"`
	LatencyMs  int64      `json:"latency_ms"`
}

// Provider is the capability interface for one external reasoning service.
// The orchestrator depends only on this interface, never on a concrete
// client type.
type Provider interface {
	// ID is the stable identifier used in results, toggles, and metrics.
	ID() string

	// Metered reports whether calls to this provider incur per-call cost
	// and fall under the session guard.
	Metered() bool

	// Timeout is the per-call deadline the orchestrator applies.
	Timeout() time.Duration

	// Query sends one prompt with a system context and returns the
	// provider's text. Implementations must honor ctx cancellation.
	Query(ctx context.Context, systemContext, prompt string, params GenerationParams) (string, error)
}
