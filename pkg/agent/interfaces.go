package agent

import (
	"context"
	"time"
)

// SearchProvider executes one web search. A provider error is surfaced to
// the loop as a ResearcherFatalError for that subquery only.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Fetcher retrieves clean text for one URL. Implementations must honor
// ctx cancellation; the researcher wraps each call in a per-URL timeout.
// Fetch never returns an error; failures are encoded in FetchResult.Status
// so one bad origin degrades one URL, not the round.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Embedder scores relevance for the context filter. Any implementation
// works as long as cosine similarity of its vectors gives a total order
// with higher = more relevant.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressSink receives every progress event. It is fire-and-forget: the
// engine guards each call so a slow or panicking sink cannot stall or
// crash the run.
type ProgressSink func(ProgressEvent)

// Config holds the per-run knobs the orchestrator enforces.
type Config struct {
	MaxRounds             int
	MaxSubqueriesPerRound int
	MaxSearchResults      int
	MaxSourcesPerRun      int
	PerURLTimeout         time.Duration
	CostCeilingUSD        float64
	TimeCeiling           time.Duration
	ContextTopK           int
	MaxSummaryWords       int

	// Per-1K-token rates used to convert usage into dollars.
	SmartInputCostPer1K  float64
	SmartOutputCostPer1K float64
	CheapInputCostPer1K  float64
	CheapOutputCostPer1K float64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:             3,
		MaxSubqueriesPerRound: 4,
		MaxSearchResults:      5,
		MaxSourcesPerRun:      50,
		PerURLTimeout:         10 * time.Second,
		CostCeilingUSD:        2.0,
		TimeCeiling:           5 * time.Minute,
		ContextTopK:           20,
		MaxSummaryWords:       200,
		SmartInputCostPer1K:   0.005,
		SmartOutputCostPer1K:  0.015,
		CheapInputCostPer1K:   0.00015,
		CheapOutputCostPer1K:  0.0006,
	}
}
