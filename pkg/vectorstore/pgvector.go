package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Document is one archived finding chunk. Metadata carries provenance:
// run_id, question, url, title, round and kind.
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// SimilaritySearchResult pairs a document with its cosine similarity.
type SimilaritySearchResult struct {
	Document Document
	Score    float64
}

// PGVectorStore persists finding chunks in a pgvector table.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNameRe = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName rejects anything that could smuggle SQL through the
// table identifier: alphanumerics and underscores only, PostgreSQL's
// 63-char limit, must not start with a digit.
func isValidTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// NewPGVectorStore creates a store over an existing pool.
func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name %q: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long", tableName)
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

func (vs *PGVectorStore) table() string {
	return pgx.Identifier{vs.tableName}.Sanitize()
}

// AddDocuments inserts finding chunks with their embeddings in one batch.
func (vs *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	insert := fmt.Sprintf(
		"INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)",
		vs.table(),
	)

	batch := &pgx.Batch{}
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(insert, doc.Content, metadataJSON, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}

	return nil
}

// SimilaritySearch returns the topK chunks nearest to queryEmbedding by
// cosine distance. A non-empty runID restricts the search to one
// research run's findings.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, runID string) ([]SimilaritySearchResult, error) {
	where := ""
	args := []interface{}{pgvector.NewVector(queryEmbedding)}
	if runID != "" {
		args = append(args, runID)
		where = "WHERE metadata->>'run_id' = $2"
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, vs.table(), where, len(args))

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []SimilaritySearchResult
	for rows.Next() {
		var doc Document
		var metadataJSON []byte
		var similarity float64

		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		results = append(results, SimilaritySearchResult{Document: doc, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// GetContentByURL retrieves every archived chunk for one source URL.
func (vs *PGVectorStore) GetContentByURL(ctx context.Context, url string) ([]Document, error) {
	query := fmt.Sprintf(
		"SELECT id, content, metadata FROM %s WHERE metadata->>'url' = $1",
		vs.table(),
	)
	return vs.queryDocuments(ctx, query, url)
}

// GetContentByMetadata retrieves chunks whose metadata contains every
// key/value pair in filter. An empty filter matches nothing.
func (vs *PGVectorStore) GetContentByMetadata(ctx context.Context, filter map[string]interface{}) ([]Document, error) {
	if len(filter) == 0 {
		return nil, fmt.Errorf("metadata filter must not be empty")
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata filter: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, content, metadata FROM %s WHERE metadata @> $1",
		vs.table(),
	)
	return vs.queryDocuments(ctx, query, filterJSON)
}

func (vs *PGVectorStore) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]Document, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var doc Document
		var metadataJSON []byte

		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return documents, nil
}
