package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// FindingsToolset exposes the archive to the Q&A agent: semantic search
// over archived findings, plus direct lookup by source URL.
type FindingsToolset struct {
	db         *database.PostgresDB
	embedder   *embeddings.GoogleEmbedder
	collection string

	// runID, when set, scopes every search to one research run.
	runID string
}

// NewFindingsToolset builds the toolset. An empty runID searches the
// whole archive.
func NewFindingsToolset(db *database.PostgresDB, embedder *embeddings.GoogleEmbedder, collection, runID string) *FindingsToolset {
	return &FindingsToolset{
		db:         db,
		embedder:   embedder,
		collection: collection,
		runID:      runID,
	}
}

func (t *FindingsToolset) Name() string {
	return "findings_tools"
}

func (t *FindingsToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchFindingsArgs, SearchFindingsResp](
		functiontool.Config{
			Name:        "search_findings",
			Description: "Search archived research findings using semantic search.",
		},
		t.searchFindingsTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_findings tool: %w", err)
	}

	findByURLTool, err := functiontool.New[FindByURLArgs, FindByURLResp](
		functiontool.Config{
			Name:        "find_by_url",
			Description: "Retrieve every archived finding that came from a specific source URL.",
		},
		t.findByURLTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_url tool: %w", err)
	}

	return []tool.Tool{searchTool, findByURLTool}, nil
}

type SearchFindingsArgs struct {
	Query string `json:"query" description:"The search query"`
	TopK  int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
}

type SearchFindingsResp struct {
	Results string `json:"results"`
}

func (t *FindingsToolset) searchFindingsTool(ctx tool.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
	return t.SearchFindings(ctx, args)
}

// SearchFindings embeds the query and runs a similarity search, scoped to
// the toolset's run when one is set.
func (t *FindingsToolset) SearchFindings(ctx context.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
	if args.TopK == 0 {
		args.TopK = 5
	}

	slog.Info("search findings", "query", args.Query, "topK", args.TopK, "run_id", t.runID)

	queryEmbedding, err := t.embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	store, err := vectorstore.NewPGVectorStore(t.db.Pool, t.collection)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.SimilaritySearch(ctx, queryEmbedding, args.TopK, t.runID)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("failed to search: %w", err)
	}

	var formatted []string
	for _, result := range results {
		url := "report"
		if u, ok := result.Document.Metadata["url"].(string); ok && u != "" {
			url = u
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "[Source]: %s\n[Content]: %s", url, result.Document.Content)
		if title, ok := result.Document.Metadata["title"].(string); ok && title != "" {
			fmt.Fprintf(&sb, "\n[Title]: %s", title)
		}
		formatted = append(formatted, sb.String())
	}

	return SearchFindingsResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type FindByURLArgs struct {
	URL string `json:"url" description:"The source URL to retrieve findings for"`
}

type FindByURLResp struct {
	Content string `json:"content"`
}

func (t *FindingsToolset) findByURLTool(ctx tool.Context, args FindByURLArgs) (FindByURLResp, error) {
	return t.FindByURL(ctx, args)
}

// FindByURL returns the archived chunks for one source URL.
func (t *FindingsToolset) FindByURL(ctx context.Context, args FindByURLArgs) (FindByURLResp, error) {
	store, err := vectorstore.NewPGVectorStore(t.db.Pool, t.collection)
	if err != nil {
		return FindByURLResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	docs, err := store.GetContentByURL(ctx, args.URL)
	if err != nil {
		return FindByURLResp{}, fmt.Errorf("failed to find content: %w", err)
	}

	var formatted []string
	for _, doc := range docs {
		if t.runID != "" {
			if id, ok := doc.Metadata["run_id"].(string); ok && id != t.runID {
				continue
			}
		}
		formatted = append(formatted, doc.Content)
	}

	return FindByURLResp{Content: strings.Join(formatted, "\n\n")}, nil
}
