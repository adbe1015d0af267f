package graph

import (
	"context"
	"strings"

	"github.com/Divas-Gupta30/ragflow/internal/processing"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// ChunkSeparator joins retrieved chunks into one context string.
const ChunkSeparator = "\n\n---\n\n"

// Retriever finds the chunks of one workflow closest to a query.
type Retriever struct {
	Vectors      storage.VectorStore
	Embedder     processing.Embedder
	Namespace    string
	TopK         int
	DefaultModel string
	// Dimension is the expected query vector size; zero means
	// processing.EmbeddingDim.
	Dimension    int
}

// Retrieve returns the contents of the top chunks, most similar first, or
// "" when the workflow has none. topK <= 0 uses the retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, query, workflowID, model string, topK int) (string, error) {
	matches, err := r.Matches(ctx, query, workflowID, model, topK)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return strings.Join(parts, ChunkSeparator), nil
}

func (r *Retriever) Matches(ctx context.Context, query, workflowID, model string, topK int) ([]storage.ChunkMatch, error) {
	if topK <= 0 {
		topK = r.TopK
	}
	if topK <= 0 {
		topK = 4
	}
	if model == "" {
		model = r.DefaultModel
	}
	qemb, err := processing.QueryEmbedding(ctx, r.Embedder, model, query, r.Dimension)
	if err != nil {
		return nil, err
	}
	return r.Vectors.Query(ctx, r.Namespace, workflowID, qemb, topK)
}
