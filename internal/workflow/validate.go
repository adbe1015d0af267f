// Package workflow validates workflow graphs and drives an execution from
// ingestion to the first answered message.
package workflow

import (
	"context"
	"strings"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

var requiredNodeTypes = []string{
	storage.NodeQuery,
	storage.NodeKnowledgeBase,
	storage.NodeLLM,
	storage.NodeOutput,
}

// Validate reports the first rule the workflow breaks, as an
// *apperr.ValidationError. A missing workflow is apperr.ErrNotFound.
func Validate(ctx context.Context, store storage.Store, workflowID string) error {
	wf, err := store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := ValidateDefinition(wf.Definition); err != nil {
		return err
	}
	docs, err := store.ListDocuments(ctx, workflowID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return apperr.Invalid("workflow has no documents")
	}
	return nil
}

// ValidateDefinition checks the graph and the required settings.
func ValidateDefinition(def *storage.Definition) error {
	if def == nil {
		return apperr.Invalid("definition is missing")
	}
	if len(def.Nodes) == 0 || len(def.Edges) == 0 {
		return apperr.Invalid("graph needs at least one node and one edge")
	}

	byType := make(map[string][]string, len(requiredNodeTypes))
	for _, typ := range requiredNodeTypes {
		ids := def.NodesOfType(typ)
		if len(ids) == 0 {
			return apperr.Invalid("missing %s node", typ)
		}
		byType[typ] = ids
	}

	links := []struct{ from, to string }{
		{storage.NodeQuery, storage.NodeKnowledgeBase},
		{storage.NodeKnowledgeBase, storage.NodeLLM},
		{storage.NodeLLM, storage.NodeOutput},
	}
	for _, l := range links {
		for _, id := range byType[l.from] {
			if !def.Linked(id, byType[l.to]) {
				return apperr.Invalid("%s node %s is not connected to a %s node", l.from, id, l.to)
			}
		}
	}

	required := []struct{ name, value string }{
		{"query", def.Query},
		{"prompt", def.Prompt},
		{"embeddingModel", def.EmbeddingModel},
		{"llmModel", def.LLMModel},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Invalid("%s is required", f.name)
		}
	}
	return nil
}
