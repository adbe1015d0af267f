package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

func validDefinition() *storage.Definition {
	return &storage.Definition{
		EmbeddingModel: "models/gemini-embedding-001",
		LLMModel:       "gemini-2.5-flash",
		Prompt:         "Answer briefly.",
		Query:          "What is the refund policy?",
		Nodes: []storage.Node{
			{ID: "q", Type: storage.NodeQuery},
			{ID: "kb", Type: storage.NodeKnowledgeBase},
			{ID: "llm", Type: storage.NodeLLM},
			{ID: "out", Type: storage.NodeOutput},
		},
		Edges: []storage.Edge{
			{ID: "e1", Source: "q", Target: "kb"},
			{ID: "e2", Source: "kb", Target: "llm"},
			{ID: "e3", Source: "llm", Target: "out"},
		},
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *storage.Definition) *storage.Definition
		rule   string
	}{
		{"valid", func(d *storage.Definition) *storage.Definition { return d }, ""},
		{"missing definition", func(*storage.Definition) *storage.Definition { return nil }, "definition is missing"},
		{"no edges", func(d *storage.Definition) *storage.Definition { d.Edges = nil; return d }, "at least one node and one edge"},
		{"missing llm node", func(d *storage.Definition) *storage.Definition {
			d.Nodes[2].Type = "note"
			return d
		}, "missing llm node"},
		{"missing output node", func(d *storage.Definition) *storage.Definition {
			d.Nodes = d.Nodes[:3]
			return d
		}, "missing output node"},
		{"query not wired", func(d *storage.Definition) *storage.Definition {
			d.Edges[0].Target = "llm"
			return d
		}, "query node q is not connected to a knowledge-base node"},
		{"second knowledge base not wired", func(d *storage.Definition) *storage.Definition {
			d.Nodes = append(d.Nodes, storage.Node{ID: "kb2", Type: storage.NodeKnowledgeBase})
			return d
		}, "knowledge-base node kb2 is not connected to a llm node"},
		{"blank query", func(d *storage.Definition) *storage.Definition { d.Query = "  "; return d }, "query is required"},
		{"blank prompt", func(d *storage.Definition) *storage.Definition { d.Prompt = ""; return d }, "prompt is required"},
		{"blank llm model", func(d *storage.Definition) *storage.Definition { d.LLMModel = ""; return d }, "llmModel is required"},
		{"unknown node types are kept", func(d *storage.Definition) *storage.Definition {
			d.Nodes = append(d.Nodes, storage.Node{ID: "n", Type: "note"})
			return d
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(tt.mutate(validDefinition()))
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Rule, tt.rule)
		})
	}
}

func TestValidateWorkflow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	assert.ErrorIs(t, Validate(ctx, store, "missing"), apperr.ErrNotFound)

	wf := &storage.Workflow{Name: "wf", Definition: validDefinition()}
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	var ve *apperr.ValidationError
	require.ErrorAs(t, Validate(ctx, store, wf.ID), &ve)
	assert.Equal(t, "workflow has no documents", ve.Rule)

	require.NoError(t, store.CreateDocument(ctx, &storage.Document{WorkflowID: wf.ID, FileName: "a.txt", FileURL: "/tmp/a.txt"}))
	assert.NoError(t, Validate(ctx, store, wf.ID))
}
