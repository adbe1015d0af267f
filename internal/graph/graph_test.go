package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/llm"
	"github.com/Divas-Gupta30/ragflow/internal/search"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
	"github.com/Divas-Gupta30/ragflow/internal/testutil"
)

const ns = "workflow_collection"

type stubSearcher struct {
	bundle *search.Bundle
	err    error
	calls  int
}

func (s *stubSearcher) Search(_ context.Context, _ string) (*search.Bundle, error) {
	s.calls++
	return s.bundle, s.err
}

func seedChunks(t *testing.T, vectors storage.VectorStore, workflowID string, texts ...string) {
	t.Helper()
	records := make([]storage.ChunkRecord, len(texts))
	for i, text := range texts {
		records[i] = storage.ChunkRecord{
			ID:         workflowID + ":0:" + string(rune('a'+i)),
			WorkflowID: workflowID,
			Content:    text,
			Embedding:  testutil.Embed(text),
		}
	}
	_, err := vectors.Upsert(context.Background(), ns, records)
	require.NoError(t, err)
}

func newRetriever(vectors storage.VectorStore) *Retriever {
	return &Retriever{
		Vectors:      vectors,
		Embedder:     &testutil.HashEmbedder{},
		Namespace:    ns,
		TopK:         4,
		DefaultModel: "models/gemini-embedding-001",
	}
}

func TestCompose(t *testing.T) {
	web := &search.Bundle{Articles: []search.Article{
		{Title: "Policy", Snippet: "14 days", URL: "https://a.example"},
	}}
	tests := []struct {
		name string
		rag  string
		web  *search.Bundle
		want string
	}{
		{"nothing", "", nil, ""},
		{"bundle without articles", "", &search.Bundle{}, ""},
		{"documents only", "chunk one", nil, "DOCUMENT CONTEXT:\nchunk one"},
		{"web only", "", web, "WEB CONTEXT:\n- Policy: 14 days (https://a.example)"},
		{"both", "chunk one", web, "DOCUMENT CONTEXT:\nchunk one\n\nWEB CONTEXT:\n- Policy: 14 days (https://a.example)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.rag, tt.web))
		})
	}
}

func TestRetrieveStaysInWorkflow(t *testing.T) {
	ctx := context.Background()
	vectors := storage.NewMemoryVectorStore()
	seedChunks(t, vectors, "wf-a", "refunds are issued within 14 days", "shipping is free over 50 euros")
	seedChunks(t, vectors, "wf-b", "refunds are never issued")
	r := newRetriever(vectors)

	text, err := r.Retrieve(ctx, "how long do refunds take", "wf-a", "", 0)
	require.NoError(t, err)
	assert.NotContains(t, text, "never")
	parts := strings.Split(text, ChunkSeparator)
	require.Len(t, parts, 2)
	assert.Equal(t, "refunds are issued within 14 days", parts[0])

	text, err = r.Retrieve(ctx, "refunds", "wf-a", "", 1)
	require.NoError(t, err)
	assert.Equal(t, "refunds are issued within 14 days", text)

	text, err = r.Retrieve(ctx, "refunds", "wf-empty", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestRetrieveChecksConfiguredDimension(t *testing.T) {
	r := newRetriever(storage.NewMemoryVectorStore())
	r.Dimension = 1536
	_, err := r.Retrieve(context.Background(), "refunds", "wf-a", "", 0)
	assert.ErrorContains(t, err, "expected embedding dim 1536")
}

func TestBuildPrompt(t *testing.T) {
	in := GenerateInput{Query: "refund time?", Context: "DOCUMENT CONTEXT:\n14 days", Prompt: "Answer in {context} French."}

	doc := BuildPrompt(in)
	assert.Contains(t, doc, "refund time?")
	assert.Contains(t, doc, "14 days")
	assert.NotContains(t, doc, "web context")
	assert.True(t, strings.HasSuffix(doc, "Additional instructions:\nAnswer in {context} French."))

	in.UsedWeb = true
	in.Prompt = ""
	web := BuildPrompt(in)
	assert.Contains(t, web, "web context")
	assert.NotContains(t, web, "Additional instructions")
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	vectors := storage.NewMemoryVectorStore()
	seedChunks(t, vectors, "wf", "refunds are issued within 14 days")
	model := &testutil.ScriptedModel{Content: llm.Blocks(
		llm.Block{Type: llm.BlockText, Text: "Refunds take 14 days."},
		llm.Block{Type: "function_call", Text: "ignored"},
	)}
	searcher := &stubSearcher{bundle: &search.Bundle{Query: "q", Articles: []search.Article{{Title: "T", Snippet: "S", URL: "U"}}}}
	p := &Pipeline{Retriever: newRetriever(vectors), Search: searcher, Generator: &Generator{Model: model}}

	s := &State{Query: "refund time", WorkflowID: "wf", LLMModel: "gemini-2.5-flash", Temperature: 0.2, UseWeb: true}
	require.NoError(t, p.Run(ctx, s))

	res := s.Result()
	assert.Equal(t, "Refunds take 14 days.", res.Answer)
	assert.True(t, res.UsedWeb)
	assert.Equal(t, "refunds are issued within 14 days", res.RAG)
	assert.Equal(t, 1, searcher.calls)

	req := model.Last()
	assert.Equal(t, "gemini-2.5-flash", req.Model)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Contains(t, req.Prompt, "WEB CONTEXT:\n- T: S (U)")

	used, _ := res.Value().Get("used_web")
	b, _ := used.AsBool()
	assert.True(t, b)
}

func TestPipelineEmptyAnswerFallsBack(t *testing.T) {
	p := &Pipeline{
		Retriever: newRetriever(storage.NewMemoryVectorStore()),
		Generator: &Generator{Model: &testutil.ScriptedModel{Content: llm.Blocks()}},
	}
	s := &State{Query: "anything", WorkflowID: "wf"}
	require.NoError(t, p.Run(context.Background(), s))
	assert.Equal(t, UnavailableAnswer, s.Answer)
	assert.False(t, s.Result().UsedWeb)
	assert.Nil(t, s.Web)
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()

	p := &Pipeline{
		Retriever: newRetriever(storage.NewMemoryVectorStore()),
		Search:    &stubSearcher{err: apperr.ErrSearchUnavailable},
		Generator: &Generator{Model: &testutil.ScriptedModel{Content: llm.PlainText("x")}},
	}
	err := p.Run(ctx, &State{Query: "q", WorkflowID: "wf", UseWeb: true})
	assert.ErrorIs(t, err, apperr.ErrSearchUnavailable)

	p.Generator = &Generator{Model: &testutil.ScriptedModel{Err: errors.New("quota")}}
	err = p.Run(ctx, &State{Query: "q", WorkflowID: "wf"})
	assert.ErrorIs(t, err, apperr.ErrGeneration)

	p.Search = nil
	err = p.Run(ctx, &State{Query: "q", WorkflowID: "wf", UseWeb: true})
	assert.Error(t, err)
}
