package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mikeboe/deep-research/pkg/agent"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// embeddingDimensions must match the embedder's output width.
const embeddingDimensions = 1536

// Indexer persists a finished run's findings into the pgvector archive so
// later questions can be answered without re-researching.
type Indexer struct {
	db         *database.PostgresDB
	embedder   *embeddings.GoogleEmbedder
	splitter   textsplitter.TextSplitter
	collection string
	logger     *slog.Logger
}

// NewIndexer wires the archive writer. chunkSize and chunkOverlap control
// how the report is split before embedding.
func NewIndexer(db *database.PostgresDB, embedder *embeddings.GoogleEmbedder, collection string, chunkSize, chunkOverlap int, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:         db,
		embedder:   embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		collection: collection,
		logger:     logger,
	}
}

// EnsureSchema creates the archive table and index.
func (ix *Indexer) EnsureSchema(ctx context.Context) error {
	if err := ix.db.EnsureVectorExtension(ctx); err != nil {
		return fmt.Errorf("failed to ensure vector extension: %w", err)
	}
	if err := ix.db.CreateEmbeddingsTable(ctx, ix.collection, embeddingDimensions); err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// IndexRun archives one finished run: each page summary becomes one or
// more chunks, plus the report body itself. Runs that reached no terminal
// state or produced nothing are skipped.
func (ix *Indexer) IndexRun(ctx context.Context, runID string, state *agent.ResearchState) error {
	if !state.Status.Terminal() {
		return fmt.Errorf("run %s is not finished", runID)
	}
	if len(state.PageSummaries) == 0 && state.Report == "" {
		ix.logger.Info("nothing to archive", "run_id", runID)
		return nil
	}

	already, err := ix.HasRun(ctx, runID)
	if err != nil {
		return err
	}
	if already {
		ix.logger.Info("run already archived", "run_id", runID)
		return nil
	}

	var docs []vectorstore.Document

	for _, s := range state.PageSummaries {
		chunks, err := ix.splitter.SplitText(s.Summary)
		if err != nil {
			return fmt.Errorf("failed to split summary for %s: %w", s.URL, err)
		}
		for _, chunk := range chunks {
			docs = append(docs, vectorstore.Document{
				Content: chunk,
				Metadata: map[string]interface{}{
					"run_id":   runID,
					"question": state.Question,
					"url":      s.URL,
					"title":    s.Title,
					"round":    s.Round,
					"kind":     "finding",
				},
			})
		}
	}

	if state.Report != "" {
		chunks, err := ix.splitter.SplitText(state.Report)
		if err != nil {
			return fmt.Errorf("failed to split report: %w", err)
		}
		for _, chunk := range chunks {
			docs = append(docs, vectorstore.Document{
				Content: chunk,
				Metadata: map[string]interface{}{
					"run_id":   runID,
					"question": state.Question,
					"kind":     "report",
				},
			})
		}
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed archive chunks: %w", err)
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	store, err := vectorstore.NewPGVectorStore(ix.db.Pool, ix.collection)
	if err != nil {
		return fmt.Errorf("invalid collection name: %w", err)
	}
	if err := store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to store archive chunks: %w", err)
	}

	ix.logger.Info("archived research run", "run_id", runID, "chunks", len(docs))
	return nil
}

// HasRun reports whether a run was already archived.
func (ix *Indexer) HasRun(ctx context.Context, runID string) (bool, error) {
	store, err := vectorstore.NewPGVectorStore(ix.db.Pool, ix.collection)
	if err != nil {
		return false, fmt.Errorf("invalid collection name: %w", err)
	}
	docs, err := store.GetContentByMetadata(ctx, map[string]interface{}{"run_id": runID})
	if err != nil {
		return false, fmt.Errorf("failed to check archive: %w", err)
	}
	return len(docs) > 0, nil
}
