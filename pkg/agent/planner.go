package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// maxSubqueryLength caps individual subqueries so a runaway decomposition
// cannot smuggle an oversized prompt into the search provider.
const maxSubqueryLength = 200

// plan decomposes the question into deduplicated subqueries using the
// smart model. Returns a PlanningError when the model produces nothing
// usable; the loop then falls back to the original question.
func (e *Engine) plan(ctx context.Context, question string) ([]string, error) {
	n := e.cfg.MaxSubqueriesPerRound
	if n < 3 {
		n = 3
	}

	type queryResponse struct {
		Queries []string `json:"queries"`
	}
	var parsed queryResponse

	_, err := e.generateWithRetry(ctx, e.smart, tierSmart, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, plannerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(plannerUserPrompt, question, n)),
	}, func(content string) error {
		parsed = queryResponse{}
		if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if len(parsed.Queries) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		return nil, &PlanningError{Err: err}
	}

	queries := make([]string, 0, len(parsed.Queries))
	for _, q := range parsed.Queries {
		if len(q) > maxSubqueryLength {
			q = q[:maxSubqueryLength]
		}
		queries = append(queries, q)
	}
	queries = DeduplicateQueries(queries)
	if len(queries) > n {
		queries = queries[:n]
	}
	if len(queries) == 0 {
		return nil, &PlanningError{Err: fmt.Errorf("no usable subqueries after dedup")}
	}

	e.logger.Info("planned subqueries", "count", len(queries), "queries", queries)
	return queries, nil
}
