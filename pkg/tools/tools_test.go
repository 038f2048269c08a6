package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikeboe/deep-research/pkg/agent"
)

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"title": "Grid Storage 2025", "url": "https://example.com/grid", "content": "snippet one", "raw_content": "long body", "score": 0.91},
			{"title": "", "url": "", "content": "no url, dropped"},
			{"title": "Battery Costs", "url": "https://example.com/costs", "content": "snippet two", "score": 0.74}
		]}`))
	}))
	defer srv.Close()

	c := NewTavilyClient("test-key", "basic", nil)
	c.endpoint = srv.URL

	results, err := c.Search(context.Background(), "grid storage costs", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0]
	if first.URL != "https://example.com/grid" || first.Title != "Grid Storage 2025" {
		t.Errorf("first result = %+v", first)
	}
	if first.RawContent != "long body" || first.Score != 0.91 {
		t.Errorf("raw content / score not carried: %+v", first)
	}
	if first.Query != "grid storage costs" {
		t.Errorf("query provenance not set: %q", first.Query)
	}
}

func TestTavilySearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [
			{"title": "a", "url": "https://example.com/a"},
			{"title": "b", "url": "https://example.com/b"},
			{"title": "c", "url": "https://example.com/c"}
		]}`))
	}))
	defer srv.Close()

	c := NewTavilyClient("test-key", "", nil)
	c.endpoint = srv.URL

	results, err := c.Search(context.Background(), "anything at all", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want capped at 2", len(results))
	}
}

func TestTavilySearchMissingKey(t *testing.T) {
	c := NewTavilyClient("", "basic", nil)
	if _, err := c.Search(context.Background(), "query", 5); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestTavilySearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewTavilyClient("test-key", "basic", nil)
	c.endpoint = srv.URL

	if _, err := c.Search(context.Background(), "query", 5); err == nil {
		t.Fatal("expected error for http 500")
	}
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		want   agent.FetchStatus
		hasTxt bool
	}{
		{name: "ok", code: http.StatusOK, want: agent.FetchOK, hasTxt: true},
		{name: "forbidden", code: http.StatusForbidden, want: agent.FetchBlocked},
		{name: "rate limited", code: http.StatusTooManyRequests, want: agent.FetchBlocked},
		{name: "not found", code: http.StatusNotFound, want: agent.FetchError},
		{name: "server error", code: http.StatusInternalServerError, want: agent.FetchError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte("<html><body><p>page text here</p></body></html>"))
			}))
			defer srv.Close()

			f := NewHTTPFetcher(nil)
			got := f.Fetch(context.Background(), srv.URL)

			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if tt.hasTxt && !strings.Contains(got.Text, "page text here") {
				t.Errorf("text not extracted: %q", got.Text)
			}
			if !tt.hasTxt && got.Text != "" {
				t.Errorf("non-ok fetch carried text: %q", got.Text)
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(nil)
	got := f.Fetch(ctx, srv.URL)
	if got.Status != agent.FetchTimeout {
		t.Errorf("status = %s, want %s", got.Status, agent.FetchTimeout)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := NewHTTPFetcher(nil)
	if got := f.Fetch(context.Background(), "  "); got.Status != agent.FetchError {
		t.Errorf("status = %s, want %s", got.Status, agent.FetchError)
	}
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style>
<script>alert("x");</script></head>
<body><nav>menu items</nav><header>site header</header>
<h1>Grid Storage</h1><p>Costs fell &amp; capacity grew.</p>
<footer>copyright</footer></body></html>`

	got := stripHTML(html)

	for _, absent := range []string{"alert", "color: red", "menu items", "site header", "copyright", "<p>"} {
		if strings.Contains(got, absent) {
			t.Errorf("stripped text still contains %q: %q", absent, got)
		}
	}
	if !strings.Contains(got, "Grid Storage") || !strings.Contains(got, "Costs fell & capacity grew.") {
		t.Errorf("content lost: %q", got)
	}
}
