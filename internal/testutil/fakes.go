// Package testutil holds deterministic stand-ins for the model provider.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/Divas-Gupta30/ragflow/internal/llm"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
)

// HashEmbedder maps each word to a fixed dimension, so texts sharing words
// score higher under cosine similarity.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	Texts int
	Err   error
}

func (h *HashEmbedder) EmbedDocuments(_ context.Context, _ string, texts []string) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	h.Calls++
	h.Texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, _ string, text string) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	return Embed(text), nil
}

// Embed is the vector HashEmbedder returns for text.
func Embed(text string) []float32 {
	v := make([]float32, processing.EmbeddingDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%processing.EmbeddingDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

// ScriptedModel returns Content (or Err) and records every request.
type ScriptedModel struct {
	mu       sync.Mutex
	Content  llm.Content
	Err      error
	Requests []llm.Request
}

func (m *ScriptedModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.Response{Model: req.Model, Content: m.Content}, nil
}

// Last returns the most recent request.
func (m *ScriptedModel) Last() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return llm.Request{}
	}
	return m.Requests[len(m.Requests)-1]
}
