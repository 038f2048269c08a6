package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// reflectSummaryCap bounds how many summaries go into the reflection
// prompt; beyond this the prompt overflows without adding signal.
const reflectSummaryCap = 30

// reflect asks the smart model whether a coverage gap remains. On any
// LLM or parse failure the safe answer is "no gap": stop searching and
// synthesize rather than loop on a broken signal.
func (e *Engine) reflect(ctx context.Context, state *ResearchState) Reflection {
	if len(state.PageSummaries) == 0 {
		// Nothing collected yet: the only sensible follow-up is the
		// question itself.
		return Reflection{GapFound: true, FollowUpQuery: state.Question, GapDesc: "no summaries collected yet"}
	}

	type reflectResponse struct {
		KnowledgeGap  *string `json:"knowledge_gap"`
		FollowUpQuery *string `json:"follow_up_query"`
	}
	var parsed reflectResponse

	user := fmt.Sprintf(reflectUserPrompt,
		state.Question, len(state.PageSummaries), state.Round, formatSummariesForReflection(state.PageSummaries))

	_, err := e.generateWithRetry(ctx, e.smart, tierSmart, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reflectSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, func(content string) error {
		parsed = reflectResponse{}
		if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		e.logger.Warn("reflection failed, stopping to synthesize", "error", err)
		return Reflection{GapFound: false, GapDesc: "reflection failed"}
	}

	gapDesc := ""
	if parsed.KnowledgeGap != nil {
		gapDesc = strings.TrimSpace(*parsed.KnowledgeGap)
	}

	if parsed.FollowUpQuery != nil {
		followUp := strings.TrimSpace(*parsed.FollowUpQuery)
		switch strings.ToLower(followUp) {
		case "", "null", "none":
		default:
			if len(followUp) > maxSubqueryLength {
				followUp = followUp[:maxSubqueryLength]
			}
			return Reflection{GapFound: true, FollowUpQuery: followUp, GapDesc: gapDesc}
		}
	}

	if gapDesc == "" {
		gapDesc = "coverage sufficient"
	}
	return Reflection{GapFound: false, GapDesc: gapDesc}
}

// formatSummariesForReflection renders summaries as numbered entries with
// round provenance, each body capped at 500 chars.
func formatSummariesForReflection(summaries []PageSummary) string {
	if len(summaries) > reflectSummaryCap {
		summaries = summaries[:reflectSummaryCap]
	}
	var sb strings.Builder
	for i, s := range summaries {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&sb, "[%d] Round %d - %s\n", i+1, s.Round, title)
		sb.WriteString(capChars(s.Summary, 500))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func capChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
