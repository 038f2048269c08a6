package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/googleai"
)

// Default model names; overridable via REASONING_MODEL and FAST_MODEL.
const (
	// DefaultReasoningModel handles planning, reflection and synthesis.
	DefaultReasoningModel = "gemini-3-pro-preview"
	// DefaultFastModel handles the high-volume page summarization calls.
	DefaultFastModel = "gemini-3-flash-preview"
)

// GoogleAI builds a langchaingo client pinned to one Gemini model.
// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
func GoogleAI(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google ai: API key is missing")
	}
	if model == "" {
		model = DefaultFastModel
	}

	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("google ai: failed to create client for %s: %w", model, err)
	}
	return llm, nil
}
