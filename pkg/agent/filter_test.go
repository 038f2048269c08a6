package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "mismatched length", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func filterTestState(n int) *ResearchState {
	state := NewResearchState("What drives battery storage costs?")
	for i := 0; i < n; i++ {
		state.AddSummary(PageSummary{
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Summary: fmt.Sprintf("summary %d", i),
			Round:   1,
		})
	}
	return state
}

func TestFilterContextNoEmbedder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextTopK = 2
	e := NewEngine(cfg, nil, nil, nil, nil, WithLogger(quietLogger()))

	state := filterTestState(3)
	got := e.filterContext(context.Background(), state)

	if len(got) != 2 {
		t.Fatalf("selected %d summaries, want 2", len(got))
	}
	if got[0].URL != "https://example.com/0" || got[1].URL != "https://example.com/1" {
		t.Errorf("fallback did not preserve collection order: %v, %v", got[0].URL, got[1].URL)
	}
}

func TestFilterContextRanksBySimilarity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextTopK = 2

	// Vector 0 is the question; summaries 0..2 follow. Summary 1 matches
	// the question exactly, summary 2 partially, summary 0 not at all.
	em := &stubEmbedder{vectors: [][]float32{
		{1, 0},
		{0, 1},
		{1, 0},
		{0.7, 0.7},
	}}
	e := NewEngine(cfg, nil, nil, nil, nil, WithLogger(quietLogger()), WithEmbedder(em))

	state := filterTestState(3)
	got := e.filterContext(context.Background(), state)

	if len(got) != 2 {
		t.Fatalf("selected %d summaries, want 2", len(got))
	}
	if got[0].URL != "https://example.com/1" {
		t.Errorf("top pick = %s, want the exact-match summary", got[0].URL)
	}
	if got[1].URL != "https://example.com/2" {
		t.Errorf("second pick = %s, want the partial-match summary", got[1].URL)
	}
	if got[0].Relevance < got[1].Relevance {
		t.Errorf("relevance not descending: %f then %f", got[0].Relevance, got[1].Relevance)
	}
	if got[0].Relevance == 0 {
		t.Error("selected summary has zero relevance score")
	}
}

func TestFilterContextEmbedFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextTopK = 2
	em := &stubEmbedder{err: fmt.Errorf("quota exhausted")}
	e := NewEngine(cfg, nil, nil, nil, nil, WithLogger(quietLogger()), WithEmbedder(em))

	state := filterTestState(3)
	got := e.filterContext(context.Background(), state)

	if len(got) != 2 {
		t.Fatalf("selected %d summaries, want 2", len(got))
	}
	if got[0].URL != "https://example.com/0" {
		t.Errorf("failure fallback did not use collection order: %s", got[0].URL)
	}
	if len(state.Errors) == 0 {
		t.Error("embedding failure not recorded in the error journal")
	}
}

func TestFilterContextTopKLargerThanCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextTopK = 20
	e := NewEngine(cfg, nil, nil, nil, nil, WithLogger(quietLogger()))

	state := filterTestState(3)
	if got := e.filterContext(context.Background(), state); len(got) != 3 {
		t.Errorf("selected %d summaries, want all 3", len(got))
	}
}
