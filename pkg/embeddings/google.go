package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// outputDimensions matches the pgvector column width used by the archive.
const outputDimensions = int32(1536)

// batchSize bounds one EmbedContent call; the relevance filter routinely
// sends the question plus every collected summary in a single request.
const batchSize = 64

// GoogleEmbedder produces Gemini embeddings. It backs both the engine's
// relevance filter and the run archive.
type GoogleEmbedder struct {
	client *genai.Client
	model  string
}

// NewGoogleEmbedder creates an embedder bound to one embedding model.
func NewGoogleEmbedder(ctx context.Context, model, apiKey string) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GoogleEmbedder{client: client, model: model}, nil
}

// EmbedTexts embeds texts in order, batching requests. The result always
// has one vector per input text.
func (e *GoogleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
		}

		dim := outputDimensions
		res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch of %d texts: %w", len(contents), err)
		}
		if len(res.Embeddings) != len(contents) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(contents), len(res.Embeddings))
		}
		for _, emb := range res.Embeddings {
			if len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding returned")
			}
			result = append(result, emb.Values)
		}
	}

	return result, nil
}

// EmbedText embeds a single text.
func (e *GoogleEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
