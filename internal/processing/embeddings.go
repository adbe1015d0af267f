package processing

import (
	"context"
	"errors"
	"fmt"
)

// EmbeddingDim is the default dimension of the embedding vector.
const EmbeddingDim = 768

func dimOrDefault(dim int) int {
	if dim <= 0 {
		return EmbeddingDim
	}
	return dim
}

// Embedder turns text into vectors with a named embedding model.
type Embedder interface {
	EmbedDocuments(ctx context.Context, model string, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, model, text string) ([]float32, error)
}

// EmbedChunks embeds texts in batches of at most batch items and checks every
// vector has dim components (EmbeddingDim when dim is zero).
func EmbedChunks(ctx context.Context, e Embedder, model string, texts []string, batch, dim int) ([][]float32, error) {
	dim = dimOrDefault(dim)
	if len(texts) == 0 {
		return nil, errors.New("no chunks")
	}
	if batch <= 0 {
		batch = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := e.EmbedDocuments(ctx, model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end-1, len(vecs))
		}
		for i, v := range vecs {
			if len(v) != dim {
				return nil, fmt.Errorf("chunk %d: expected embedding dim %d, got %d", start+i, dim, len(v))
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// QueryEmbedding produces an embedding for a query string.
func QueryEmbedding(ctx context.Context, e Embedder, model, query string, dim int) ([]float32, error) {
	dim = dimOrDefault(dim)
	if query == "" {
		return nil, errors.New("empty query")
	}
	v, err := e.EmbedQuery(ctx, model, query)
	if err != nil {
		return nil, err
	}
	if len(v) != dim {
		return nil, fmt.Errorf("expected embedding dim %d, got %d", dim, len(v))
	}
	return v, nil
}
