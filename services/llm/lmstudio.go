package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const lmstudioDefaultTimeout = 45 * time.Second

// LMStudioProvider queries a locally hosted LM Studio server through its
// OpenAI-compatible chat-completions endpoint. Local inference is not
// metered, so it sits outside the session guard.
type LMStudioProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewLMStudioProvider reads the server URL from LMSTUDIO_BASE_URL and
// the model from LMSTUDIO_MODEL. The server does not check API keys.
func NewLMStudioProvider() (*LMStudioProvider, error) {
	baseURL := os.Getenv("LMSTUDIO_BASE_URL")
	model := os.Getenv("LMSTUDIO_MODEL")

	if baseURL == "" {
		baseURL = "http://localhost:1234/v1"
		slog.Info("LMSTUDIO_BASE_URL not set, defaulting to", "url", baseURL)
	}
	if model == "" {
		model = "local-model"
		slog.Info("LMSTUDIO_MODEL not set, defaulting to", "model", model)
	}

	cfg := openai.DefaultConfig("lm-studio") // placeholder key, server ignores it
	cfg.BaseURL = baseURL

	return &LMStudioProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: lmstudioDefaultTimeout,
	}, nil
}

// ID implements the Provider interface.
func (l *LMStudioProvider) ID() string { return "lmstudio" }

// Metered implements the Provider interface.
func (l *LMStudioProvider) Metered() bool { return false }

// Timeout implements the Provider interface.
func (l *LMStudioProvider) Timeout() time.Duration { return l.timeout }

// Query implements the Provider interface.
func (l *LMStudioProvider) Query(ctx context.Context, systemContext, prompt string, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemContext},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	slog.Debug("Sending request to LM Studio", "model", l.model)

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LM Studio API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LM Studio returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
