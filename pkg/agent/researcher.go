package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fetchConcurrency bounds the per-URL fan-out within one subquery so a
// single researcher cannot open dozens of simultaneous fetches.
const fetchConcurrency = 3

// contentWordBudget caps how much page text goes to the cheap model.
const contentWordBudget = 2000

// research executes one subquery: search, gate each URL through the
// safety check, fetch with a per-URL timeout, summarize with the cheap
// model. Individual URL failures degrade that URL only; the method
// returns whatever summaries it produced. It returns an error only when
// the search call itself failed (ResearcherFatalError).
//
// visited holds URLs already processed in earlier rounds; the caller
// owns it and reads it before the fan-out, so no locking is needed here.
func (e *Engine) research(ctx context.Context, subquery string, visited map[string]bool, round int) ([]PageSummary, error) {
	results, err := e.searcher.Search(ctx, subquery, e.cfg.MaxSearchResults)
	if err != nil {
		return nil, &ResearcherFatalError{Subquery: subquery, Err: err}
	}
	if len(results) == 0 {
		e.emit(round, "researcher", fmt.Sprintf("no results for %q", subquery))
		return nil, nil
	}

	// Gate and dedup before fanning out.
	seen := make(map[string]bool, len(results))
	candidates := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.URL == "" || visited[r.URL] || seen[r.URL] {
			continue
		}
		if !IsSafeURL(r.URL) {
			e.emit(round, "researcher", fmt.Sprintf("dropped unsafe url %s", r.URL))
			continue
		}
		seen[r.URL] = true
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Fan out per URL; each slot is written by exactly one goroutine and
	// merged after the wait, so no mutex guards the slice.
	summaries := make([]*PageSummary, len(candidates))
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchConcurrency)

	for i, r := range candidates {
		wg.Add(1)
		go func(i int, result SearchResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			summaries[i] = e.summarizeResult(ctx, result, subquery, round)
		}(i, r)
	}
	wg.Wait()

	out := make([]PageSummary, 0, len(candidates))
	for _, s := range summaries {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// summarizeResult turns one search result into a PageSummary, or nil if
// the URL yielded no usable content. Never returns an error: a failed
// page is a dropped page.
func (e *Engine) summarizeResult(ctx context.Context, result SearchResult, subquery string, round int) *PageSummary {
	content := result.BestContent()

	// Thin search-provider content: fetch the page directly, bounded by
	// the per-URL timeout so one slow origin cannot stall the round.
	if len(strings.Fields(content)) < 100 {
		fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PerURLTimeout)
		fr := e.fetcher.Fetch(fetchCtx, result.URL)
		cancel()

		switch fr.Status {
		case FetchOK:
			content = fr.Text
		default:
			e.emit(round, "researcher", fmt.Sprintf("fetch %s for %s", fr.Status, result.URL))
			// Thin provider content is still better than nothing.
		}
	}

	if len(strings.Fields(content)) < 30 {
		return nil
	}
	content = truncateWords(content, contentWordBudget)

	title := result.Title
	if title == "" {
		title = result.URL
	}

	prompt := fmt.Sprintf(summarizePrompt, subquery, title, result.URL, content, e.cfg.MaxSummaryWords)
	text, err := e.generateWithRetry(ctx, e.cheap, tierCheap, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, func(content string) error {
		if len(strings.TrimSpace(content)) < 20 {
			return fmt.Errorf("summary too short")
		}
		return nil
	})
	if err != nil {
		e.emit(round, "researcher", fmt.Sprintf("summarize failed for %s", result.URL))
		return nil
	}

	text = strings.TrimSpace(text)
	e.emit(round, "researcher", fmt.Sprintf("summarized %s", result.URL))

	return &PageSummary{
		URL:       result.URL,
		Title:     result.Title,
		Summary:   text,
		Subquery:  subquery,
		Round:     round,
		WordCount: len(strings.Fields(text)),
	}
}
