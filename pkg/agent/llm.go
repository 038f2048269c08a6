package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// modelTier selects which per-1K rates a call is charged at.
type modelTier int

const (
	tierSmart modelTier = iota
	tierCheap
)

const llmMaxRetries = 3

// generateWithRetry calls a model, validates the response with the supplied
// function, and retries with linear backoff on failure. Every attempt is
// charged to the budget, including failed ones. Failed calls still cost
// money. Validators must fully reset their capture variables on each call.
func (e *Engine) generateWithRetry(
	ctx context.Context,
	model llms.Model,
	tier modelTier,
	prompts []llms.MessageContent,
	validator func(string) error,
	opts ...llms.CallOption,
) (string, error) {
	var lastErr error

	for i := 0; i < llmMaxRetries; i++ {
		if i > 0 {
			e.logger.Warn("retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second * time.Duration(i)):
			}
		}

		resp, err := model.GenerateContent(ctx, prompts, opts...)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			e.chargeEstimate(prompts, "", tier)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			e.chargeEstimate(prompts, "", tier)
			continue
		}

		content := resp.Choices[0].Content
		e.charge(resp, prompts, content, tier)

		if validator != nil {
			if err := validator(content); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				continue
			}
		}
		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", llmMaxRetries, lastErr)
}

// charge records exact token usage when the provider reports it, falling
// back to a character-based estimate when it doesn't.
func (e *Engine) charge(resp *llms.ContentResponse, prompts []llms.MessageContent, output string, tier modelTier) {
	in, out, ok := usageFromResponse(resp)
	if !ok {
		in = estimateTokens(promptText(prompts))
		out = estimateTokens(output)
	}
	e.chargeTokens(in, out, tier)
}

func (e *Engine) chargeEstimate(prompts []llms.MessageContent, output string, tier modelTier) {
	e.chargeTokens(estimateTokens(promptText(prompts)), estimateTokens(output), tier)
}

func (e *Engine) chargeTokens(in, out int, tier modelTier) {
	var cost float64
	if tier == tierCheap {
		cost = e.budget.Charge(in, out, e.cfg.CheapInputCostPer1K, e.cfg.CheapOutputCostPer1K)
	} else {
		cost = e.budget.Charge(in, out, e.cfg.SmartInputCostPer1K, e.cfg.SmartOutputCostPer1K)
	}
	e.logger.Debug("charged LLM call", "input_tokens", in, "output_tokens", out, "cost_usd", cost)
}

// usageFromResponse digs token counts out of GenerationInfo. Providers use
// different key names; we accept the common ones.
func usageFromResponse(resp *llms.ContentResponse) (in, out int, ok bool) {
	info := resp.Choices[0].GenerationInfo
	if info == nil {
		return 0, 0, false
	}
	in = intFromInfo(info, "input_tokens", "PromptTokens", "prompt_tokens")
	out = intFromInfo(info, "output_tokens", "CompletionTokens", "completion_tokens")
	return in, out, in > 0 || out > 0
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// estimateTokens approximates usage at 4 chars per token, the usual rule
// of thumb for English text. Only used when the provider reports nothing.
func estimateTokens(text string) int {
	return len(text) / 4
}

func promptText(prompts []llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range prompts {
		for _, part := range p.Parts {
			if t, isText := part.(llms.TextContent); isText {
				sb.WriteString(t.Text)
			}
		}
	}
	return sb.String()
}

var fenceOpen = regexp.MustCompile("```(?:json)?\\s*")

// stripFences removes markdown code fences models sometimes wrap JSON in,
// despite being told not to.
func stripFences(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// truncateWords caps text at max words, appending a marker when cut.
func truncateWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ") + " [TRUNCATED]"
}
