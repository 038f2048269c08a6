package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Engine drives one research run: plan, rounds of concurrent research,
// reflection, context filtering, two-shot synthesis. An Engine serves one
// run at a time; create one per run, the way the server spins one up per
// job.
type Engine struct {
	cfg      Config
	smart    llms.Model // planning, reflection, synthesis
	cheap    llms.Model // per-page summarization
	searcher SearchProvider
	fetcher  Fetcher
	embedder Embedder // nil disables relevance ranking

	logger *slog.Logger
	sink   ProgressSink

	// Per-run. state.Events is the one structure concurrent researchers
	// append to (through emit), so it gets its own mutex; everything else
	// on state is written only by the orchestrator goroutine.
	budget *Budget
	state  *ResearchState
	evMu   sync.Mutex

	// OnStateUpdate, when set, is called after planning and after each
	// round with a snapshot of the state. Callers use it to persist
	// progress; it runs on the orchestrator goroutine.
	OnStateUpdate func(state ResearchState)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgressSink sets the sink that receives every progress event.
func WithProgressSink(sink ProgressSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithEmbedder enables relevance-ranked context filtering.
func WithEmbedder(em Embedder) Option {
	return func(e *Engine) { e.embedder = em }
}

// NewEngine wires the collaborators into an orchestrator.
func NewEngine(cfg Config, smart, cheap llms.Model, searcher SearchProvider, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		smart:    smart,
		cheap:    cheap,
		searcher: searcher,
		fetcher:  fetcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full research pipeline for a question and always
// returns a ResearchState with a terminal status. It never returns an
// error and never panics outward. Invalid input is the one case that
// fails before any external call is made.
func (e *Engine) Run(ctx context.Context, question string) (state *ResearchState) {
	state = NewResearchState(question)
	e.state = state
	e.budget = NewBudget(e.cfg.CostCeilingUSD, e.cfg.TimeCeiling)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("research loop panicked", "panic", r)
			state.AddError(fmt.Sprintf("unexpected panic: %v", r))
			state.finish(StatusFailed, fmt.Sprintf("unexpected panic: %v", r))
		}
		state.CostUSD = e.budget.CostUSD()
		state.InputTokens, state.OutputTokens = e.budget.Tokens()
	}()

	clean, err := ValidateQuery(question)
	if err != nil {
		state.AddError(err.Error())
		state.finish(StatusFailed, err.Error())
		return state
	}
	state.Question = clean

	stopStatus, stopReason := e.runLoop(ctx, state)

	// The budget is consulted once more before synthesis: a run that
	// crossed the ceiling during its final round still finishes as
	// BudgetExceeded even though the round loop never re-checked.
	if stopStatus == "" {
		if exceeded, reason := e.budget.Exceeded(); exceeded {
			e.emit(state.Round, "budget", reason)
			stopStatus, stopReason = StatusBudgetExceeded, reason
		}
	}

	// Synthesis always runs on whatever was collected. Completed work is
	// never discarded, even on a budget stop or cancellation.
	state.Status = StatusSynthesizing
	e.emit(state.Round, "synthesizing", fmt.Sprintf("synthesizing from %d sources", state.TotalSources()))

	selected := e.filterContext(ctx, state)
	e.synthesize(ctx, state, selected)

	if !state.Status.Terminal() {
		if stopStatus != "" {
			state.finish(stopStatus, stopReason)
		} else {
			state.finish(StatusComplete, "")
		}
	}
	e.emit(state.Round, "done", string(state.Status))

	e.logger.Info("research run finished",
		"status", state.Status,
		"rounds", state.Round,
		"sources", state.TotalSources(),
		"cost_usd", e.budget.CostUSD(),
		"elapsed", e.budget.Elapsed().Round(time.Millisecond),
	)
	return state
}

// runLoop executes plan and research/reflect rounds, mutating state in
// place. A non-empty stopStatus tells Run which terminal status to apply
// after synthesis (BudgetExceeded for a ceiling, Degraded for a
// cancellation); empty means the loop ended for coverage reasons.
func (e *Engine) runLoop(ctx context.Context, state *ResearchState) (stopStatus Status, stopReason string) {
	// Plan. Total planning failure is not a hard stop: the original
	// question becomes the sole subquery.
	e.emit(0, "planning", "decomposing question")
	queries, err := e.plan(ctx, state.Question)
	if err != nil {
		e.logger.Warn("planning failed, falling back to original question", "error", err)
		state.AddError(err.Error())
		queries = []string{state.Question}
	}
	state.Status = StatusResearching
	e.emit(0, "planned", fmt.Sprintf("%d subqueries", len(queries)))
	e.notifyState(state)

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		select {
		case <-ctx.Done():
			state.AddError("run cancelled")
			return StatusDegraded, fmt.Sprintf("cancelled: %v", ctx.Err())
		default:
		}
		if exceeded, reason := e.budget.Exceeded(); exceeded {
			e.emit(round, "budget", reason)
			return StatusBudgetExceeded, reason
		}
		if state.TotalSources() >= e.cfg.MaxSourcesPerRun {
			e.emit(round, "budget", fmt.Sprintf("source cap %d reached", e.cfg.MaxSourcesPerRun))
			return "", ""
		}

		queries = DeduplicateQueries(queries)
		if len(queries) > e.cfg.MaxSubqueriesPerRound {
			queries = queries[:e.cfg.MaxSubqueriesPerRound]
		}

		state.Round = round
		state.Status = StatusResearching
		state.Subqueries = append(state.Subqueries, queries...)
		state.MarkQueries(queries)

		e.emit(round, "researching", fmt.Sprintf("round %d: %d subqueries", round, len(queries)))
		e.runRound(ctx, state, queries, round)
		e.emit(round, "researched", fmt.Sprintf("round %d complete, %d total sources", round, state.TotalSources()))
		e.notifyState(state)

		if round >= e.cfg.MaxRounds {
			e.emit(round, "reflecting", "max rounds reached, skipping reflection")
			return "", ""
		}
		if exceeded, reason := e.budget.Exceeded(); exceeded {
			e.emit(round, "budget", reason)
			return StatusBudgetExceeded, reason
		}

		// Reflect. The reflector is advisory: it can end the loop for
		// coverage reasons, never for budget reasons.
		state.Status = StatusReflecting
		e.emit(round, "reflecting", "evaluating coverage")
		reflection := e.reflect(ctx, state)

		if !reflection.GapFound {
			e.emit(round, "reflected", fmt.Sprintf("no gap: %s", reflection.GapDesc))
			return "", ""
		}
		if state.SeenQuery(reflection.FollowUpQuery) {
			e.emit(round, "reflected", "follow-up duplicates earlier query, stopping")
			return "", ""
		}

		state.KnowledgeGaps = append(state.KnowledgeGaps, reflection.FollowUpQuery)
		e.emit(round, "reflected", fmt.Sprintf("gap found: %s", reflection.FollowUpQuery))
		queries = []string{reflection.FollowUpQuery}
	}
	return "", ""
}

// runRound fans researchers out across the round's subqueries and merges
// their results after the fan-in barrier. Each goroutine writes only its
// own result slot; summaries land on state exclusively through this (the
// orchestrator's) goroutine after Wait returns.
func (e *Engine) runRound(ctx context.Context, state *ResearchState, queries []string, round int) {
	// Snapshot visited URLs before the fan-out; researchers read the
	// snapshot concurrently but never write it.
	visited := make(map[string]bool, len(state.visitedURLs))
	for u := range state.visitedURLs {
		visited[u] = true
	}

	type roundResult struct {
		summaries []PageSummary
		err       error
	}
	results := make([]roundResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, subquery string) {
			defer wg.Done()
			summaries, err := e.research(ctx, subquery, visited, round)
			results[i] = roundResult{summaries: summaries, err: err}
		}(i, q)
	}
	wg.Wait()

	// Merge in subquery order so round output is deterministic given the
	// same per-subquery results. Hitting the source cap stops the merge of
	// summaries but not the journaling of failed subqueries.
	capLeft := e.cfg.MaxSourcesPerRun - state.TotalSources()
	capHit := false
	for i, r := range results {
		if r.err != nil {
			// Failed search for one subquery: journal it, keep the round.
			state.AddError(r.err.Error())
			e.emit(round, "researcher", r.err.Error())
			continue
		}
		for _, s := range r.summaries {
			if capLeft <= 0 {
				capHit = true
				break
			}
			if state.VisitedURL(s.URL) {
				continue // two subqueries found the same page
			}
			state.AddSummary(s)
			capLeft--
		}
		e.logger.Info("merged subquery results", "subquery", queries[i], "new_summaries", len(r.summaries))
	}
	if capHit {
		e.logger.Info("source cap reached during merge", "cap", e.cfg.MaxSourcesPerRun)
	}
}

// emit records a progress event on the run's replay log and pushes it to
// the external sink. Researchers emit concurrently, so the append is
// mutex-guarded; the sink call is recover-guarded because a sink must
// never panic into the loop.
func (e *Engine) emit(round int, stage, message string) {
	ev := ProgressEvent{Round: round, Stage: stage, Message: message, Timestamp: time.Now().UTC()}
	e.logger.Debug("progress", "round", round, "stage", stage, "message", message)

	e.evMu.Lock()
	e.state.Events = append(e.state.Events, ev)
	e.evMu.Unlock()

	if e.sink == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		e.sink(ev)
	}()
}

func (e *Engine) notifyState(state *ResearchState) {
	if e.OnStateUpdate == nil {
		return
	}
	snapshot := *state
	e.OnStateUpdate(snapshot)
}
