package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiDefaultTimeout = 60 * time.Second

// GeminiProvider queries the Gemini API through the official genai SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiProvider reads the API key from GEMINI_API_KEY or the
// container secret file and the model from GEMINI_MODEL.
func NewGeminiProvider(ctx context.Context) (*GeminiProvider, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	model := os.Getenv("GEMINI_MODEL")

	if apiKey == "" {
		secretPath := "/run/secrets/gemini_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Gemini API key from container secrets")
		}
	}

	if apiKey == "" {
		slog.Warn("Gemini API key is missing.")
		return nil, fmt.Errorf("GEMINI_API_KEY is missing")
	}

	if model == "" {
		model = "gemini-2.0-flash"
		slog.Info("GEMINI_MODEL not set, defaulting to", "model", model)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:  client,
		model:   model,
		timeout: geminiDefaultTimeout,
	}, nil
}

// ID implements the Provider interface.
func (g *GeminiProvider) ID() string { return "gemini" }

// Metered implements the Provider interface.
func (g *GeminiProvider) Metered() bool { return true }

// Timeout implements the Provider interface.
func (g *GeminiProvider) Timeout() time.Duration { return g.timeout }

// Query implements the Provider interface.
func (g *GeminiProvider) Query(ctx context.Context, systemContext, prompt string, params GenerationParams) (string, error) {
	config := &genai.GenerateContentConfig{}
	if systemContext != "" {
		config.SystemInstruction = genai.NewContentFromText(systemContext, genai.RoleUser)
	}
	if params.Temperature != nil {
		config.Temperature = params.Temperature
	}
	if params.TopP != nil {
		config.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		config.StopSequences = params.Stop
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	slog.Debug("Sending request to Gemini", "model", g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("received empty response from Gemini")
	}
	return text, nil
}
