package agent

import (
	"time"
)

// Status tracks the lifecycle of a research run. Transitions are
// one-directional; the four terminal states are final.
type Status string

const (
	StatusPlanning     Status = "planning"
	StatusResearching  Status = "researching"
	StatusReflecting   Status = "reflecting"
	StatusSynthesizing Status = "synthesizing"

	// Terminal states.
	StatusComplete       Status = "complete"
	StatusDegraded       Status = "degraded"
	StatusFailed         Status = "failed"
	StatusBudgetExceeded Status = "budget_exceeded"
)

// Terminal reports whether s is one of the four final states.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusDegraded, StatusFailed, StatusBudgetExceeded:
		return true
	}
	return false
}

// SearchResult is a single item returned by a SearchProvider.
// It lives only long enough to be fetched and summarized.
type SearchResult struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score"`
	Query      string  `json:"query"`
}

// BestContent returns the richest text available for summarization.
// A raw extract under 200 chars usually means the provider hit a
// JavaScript-only page, so we fall back to the snippet.
func (r SearchResult) BestContent() string {
	if len(r.RawContent) > 200 {
		return r.RawContent
	}
	return r.Snippet
}

// FetchStatus classifies the outcome of one page fetch.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchTimeout FetchStatus = "timeout"
	FetchBlocked FetchStatus = "blocked"
	FetchError   FetchStatus = "error"
)

// FetchResult is the outcome of fetching one URL. Non-ok results carry
// an empty Text and are handled as a dropped URL, never as a run failure.
type FetchResult struct {
	URL    string      `json:"url"`
	Text   string      `json:"text"`
	Status FetchStatus `json:"status"`
	Err    string      `json:"error,omitempty"`
}

// PageSummary is the core unit of research output: one summarized page,
// tagged with its provenance. Append-only once created.
type PageSummary struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Subquery  string  `json:"subquery"`
	Round     int     `json:"round"`
	WordCount int     `json:"word_count"`
	Relevance float64 `json:"relevance"` // set by the context filter, 0 until then
}

// ProgressEvent is one entry in the run's append-only progress log.
// Events are ordered by emission; Round and Stage locate the event
// within the state machine.
type ProgressEvent struct {
	Round     int       `json:"round"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Reflection is the reflector's verdict after a round: either a concrete
// coverage gap with a follow-up query, or permission to stop searching.
type Reflection struct {
	GapFound      bool   `json:"gap_found"`
	FollowUpQuery string `json:"follow_up_query"`
	GapDesc       string `json:"knowledge_gap"`
}

// ResearchState is the complete state of one research run. It is owned by
// exactly one Engine invocation; concurrent researchers never write to it
// directly; their results are merged in by the loop after each fan-in.
type ResearchState struct {
	Question string `json:"question"`

	// Planner output plus any reflector follow-ups, in scheduling order.
	Subqueries []string `json:"subqueries"`

	// Researcher output, across all rounds. Input to synthesis.
	PageSummaries []PageSummary `json:"page_summaries"`

	// Reflector output: one gap per round that found one.
	KnowledgeGaps []string `json:"knowledge_gaps"`

	Round  int    `json:"round"`
	Status Status `json:"status"`

	// Synthesizer output.
	Outline []string `json:"outline"`
	Report  string   `json:"report"`
	Sources []string `json:"sources"`

	// Why the run stopped. Empty for a clean complete.
	StopReason string `json:"stop_reason,omitempty"`

	// Non-fatal errors hit along the way (failed fetches, bad citations, ...).
	Errors []string `json:"errors,omitempty"`

	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	Events []ProgressEvent `json:"events"`

	// visitedURLs and visitedQueries are dedup sets, not serialized.
	visitedURLs    map[string]bool
	visitedQueries map[string]bool
}

// NewResearchState initializes the state for one run.
func NewResearchState(question string) *ResearchState {
	return &ResearchState{
		Question:       question,
		Status:         StatusPlanning,
		StartedAt:      time.Now().UTC(),
		visitedURLs:    make(map[string]bool),
		visitedQueries: make(map[string]bool),
	}
}

// AddSummary appends a page summary and marks its URL as visited.
func (s *ResearchState) AddSummary(ps PageSummary) {
	s.PageSummaries = append(s.PageSummaries, ps)
	s.visitedURLs[ps.URL] = true
}

// VisitedURL reports whether a URL has already been processed this run.
func (s *ResearchState) VisitedURL(url string) bool {
	return s.visitedURLs[url]
}

// MarkQueries records queries as processed so reflector follow-ups that
// duplicate earlier work terminate the loop instead of repeating it.
func (s *ResearchState) MarkQueries(queries []string) {
	for _, q := range queries {
		s.visitedQueries[normalizeQuery(q)] = true
	}
}

// SeenQuery reports whether a query was already scheduled this run.
func (s *ResearchState) SeenQuery(q string) bool {
	return s.visitedQueries[normalizeQuery(q)]
}

// AddError records a non-fatal error for the run journal.
func (s *ResearchState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// TotalSources is the number of page summaries collected so far.
func (s *ResearchState) TotalSources() int {
	return len(s.PageSummaries)
}

// finish moves the state into a terminal status exactly once.
func (s *ResearchState) finish(status Status, reason string) {
	if s.Status.Terminal() {
		return
	}
	s.Status = status
	s.StopReason = reason
	s.CompletedAt = time.Now().UTC()
}
