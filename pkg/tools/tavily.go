package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/agent"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient talks to the Tavily search API and implements
// agent.SearchProvider. Raw page content is requested up front so most
// results never need a separate fetch.
type TavilyClient struct {
	apiKey   string
	depth    string // "basic" or "advanced"
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewTavilyClient constructs a search client. An empty depth means basic.
func NewTavilyClient(apiKey, depth string, logger *slog.Logger) *TavilyClient {
	if depth == "" {
		depth = "basic"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TavilyClient{
		apiKey:   apiKey,
		depth:    depth,
		endpoint: tavilyEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type tavilyRequest struct {
	Query             string `json:"query"`
	APIKey            string `json:"api_key"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Search posts one query to Tavily. Rate-limit responses are retried with
// doubling delay; every other failure is returned to the caller, which
// treats it as a dead subquery, not a dead run.
func (t *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]agent.SearchResult, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:             query,
		APIKey:            t.apiKey,
		SearchDepth:       t.depth,
		MaxResults:        maxResults,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to encode request: %w", err)
	}

	resp, err := t.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: http %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	results := make([]agent.SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, agent.SearchResult{
			URL:        r.URL,
			Title:      r.Title,
			Snippet:    r.Content,
			RawContent: r.RawContent,
			Score:      r.Score,
			Query:      query,
		})
		if len(results) >= maxResults {
			break
		}
	}

	t.logger.Debug("tavily search complete", "query", query, "results", len(results))
	return results, nil
}

// post sends the request, backing off and retrying while Tavily returns
// 429. The delay doubles up to 30 seconds; ctx cancellation ends the wait.
func (t *TavilyClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	delay := time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("tavily: failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily: request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		t.logger.Warn("tavily rate limited, backing off", "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
