package agent

import (
	"context"
	"math"
	"sort"
)

// filterContext ranks accumulated summaries by relevance to the original
// question and returns the top-K subset the synthesizer will see. Ranking
// is cosine similarity between the question embedding and each summary
// embedding. When no embedder is configured, or embedding fails, the
// fallback is the first K summaries in collection order, round 1 first.
func (e *Engine) filterContext(ctx context.Context, state *ResearchState) []PageSummary {
	summaries := state.PageSummaries
	topK := e.cfg.ContextTopK
	if topK <= 0 || topK > len(summaries) {
		topK = len(summaries)
	}

	if e.embedder == nil {
		return summaries[:topK]
	}

	texts := make([]string, 0, len(summaries)+1)
	texts = append(texts, state.Question)
	for _, s := range summaries {
		texts = append(texts, s.Summary)
	}

	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		e.logger.Warn("context filter embedding failed, using collection order", "error", err)
		state.AddError("context filter fell back to collection order")
		return summaries[:topK]
	}

	question := vectors[0]
	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(summaries))
	for i := range summaries {
		scores[i] = ranked{idx: i, score: cosineSimilarity(question, vectors[i+1])}
	}
	// Stable so equal scores keep collection order.
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	selected := make([]PageSummary, 0, topK)
	for _, r := range scores[:topK] {
		s := summaries[r.idx]
		s.Relevance = r.score
		selected = append(selected, s)
	}
	return selected
}

// cosineSimilarity of two vectors; zero when either has no magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
