package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// synthesize produces the final report in two shots, outline then full
// prose, and writes it into state. With zero summaries it produces an
// explicit insufficient-evidence report and marks the run degraded
// instead of inventing citations; otherwise the loop picks the terminal
// status. Never returns an error: every failure has a cheaper fallback.
func (e *Engine) synthesize(ctx context.Context, state *ResearchState, selected []PageSummary) {
	if len(selected) == 0 {
		state.Report = fmt.Sprintf(
			"# Research: %s\n\n*Insufficient evidence: no sources could be collected for this question. "+
				"No claims are made and no citations are provided.*\n", state.Question)
		state.Sources = nil
		state.finish(StatusDegraded, "no page summaries available for synthesis")
		return
	}

	sources := make([]string, len(selected))
	for i, s := range selected {
		sources[i] = s.URL
	}

	// Shot 1: outline.
	sections := e.generateOutline(ctx, state.Question, selected)
	state.Outline = sections

	// Shot 2: report body.
	body := e.generateReport(ctx, state.Question, sections, selected)

	// Out-of-range citations are stripped rather than retried: a missing
	// marker degrades the prose, a dangling [99] breaks the bibliography.
	if bad := CheckCitationBounds(body, len(sources)); len(bad) > 0 {
		state.AddError(fmt.Sprintf("stripped out-of-bounds citations %v (only %d sources)", bad, len(sources)))
		body = StripCitations(body, bad)
	}

	// The references section is built from the selected sources directly,
	// never from model output, so the bibliography is always complete.
	state.Report = strings.TrimSpace(body) + "\n\n" + buildReferences(selected)
	state.Sources = sources
}

// generateOutline asks for 4-7 section headings. Falls back to a single
// generic heading so shot 2 always has something to write against.
func (e *Engine) generateOutline(ctx context.Context, question string, selected []PageSummary) []string {
	type outlineResponse struct {
		Sections []string `json:"sections"`
	}
	var parsed outlineResponse

	user := fmt.Sprintf(outlineUserPrompt, question, len(selected), formatSummariesForOutline(selected))

	_, err := e.generateWithRetry(ctx, e.smart, tierSmart, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, outlineSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, func(content string) error {
		parsed = outlineResponse{}
		if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if len(parsed.Sections) == 0 {
			return fmt.Errorf("empty sections list")
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		e.logger.Warn("outline generation failed, using generic section", "error", err)
		return []string{fmt.Sprintf("Research Findings: %s", question)}
	}

	sections := make([]string, 0, len(parsed.Sections))
	for _, s := range parsed.Sections {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}
	if len(sections) == 0 {
		return []string{fmt.Sprintf("Research Findings: %s", question)}
	}
	return sections
}

// generateReport writes the full report. On total failure it returns a
// raw-findings listing. A plain but honest report beats none.
func (e *Engine) generateReport(ctx context.Context, question string, sections []string, selected []PageSummary) string {
	var sectionsText strings.Builder
	for i, s := range sections {
		fmt.Fprintf(&sectionsText, "%d. %s\n", i+1, s)
	}

	prompt := fmt.Sprintf(reportPrompt, question, sectionsText.String(), formatSourcesForReport(selected))

	text, err := e.generateWithRetry(ctx, e.smart, tierSmart, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, func(content string) error {
		if len(strings.TrimSpace(content)) < 100 {
			return fmt.Errorf("report too short")
		}
		return nil
	})
	if err != nil {
		e.logger.Error("report generation failed, falling back to raw findings", "error", err)
		return fallbackReport(question, selected)
	}
	return text
}

func formatSummariesForOutline(selected []PageSummary) string {
	var sb strings.Builder
	for i, s := range selected {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, title, capChars(s.Summary, 300))
	}
	return sb.String()
}

func formatSourcesForReport(selected []PageSummary) string {
	var sb strings.Builder
	for i, s := range selected {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, title, s.URL, capChars(s.Summary, 500))
	}
	return sb.String()
}

// buildReferences renders the bibliography for the selected sources:
// [N] Title with indented URL, matching the inline [N] markers.
func buildReferences(selected []PageSummary) string {
	var sb strings.Builder
	sb.WriteString("## References\n\n")
	for i, s := range selected {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "[%d] %s  \n    %s\n\n", i+1, title, s.URL)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func fallbackReport(question string, selected []PageSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research: %s\n\n", question)
	sb.WriteString("*Note: full synthesis unavailable. Raw findings below.*\n\n")
	for i, s := range selected {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&sb, "### [%d] %s\n%s\n\n", i+1, title, s.Summary)
	}
	return sb.String()
}
