// Package graph runs the answer pipeline: retrieve, compose, generate and
// check, one node after another over a shared State.
package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/llm"
	"github.com/Divas-Gupta30/ragflow/internal/meta"
	"github.com/Divas-Gupta30/ragflow/internal/search"
)

// State carries one question through the pipeline nodes.
type State struct {
	Query          string
	WorkflowID     string
	EmbeddingModel string
	LLMModel       string
	Prompt         string
	Temperature    float64
	UseWeb         bool

	RAGContext string
	Web        *search.Bundle
	Context    string
	Answer     string
	Raw        llm.Content
}

// QueryResult is what a finished pipeline produced.
type QueryResult struct {
	Answer  string         `json:"answer"`
	UsedWeb bool           `json:"used_web"`
	RAG     string         `json:"rag"`
	Web     *search.Bundle `json:"web"`
}

func (s *State) Result() *QueryResult {
	return &QueryResult{
		Answer:  s.Answer,
		UsedWeb: s.UseWeb && s.Web != nil,
		RAG:     s.RAGContext,
		Web:     s.Web,
	}
}

// Sources is the metadata form of the retrieved material.
func (r *QueryResult) Sources() meta.Value {
	return meta.Map(map[string]meta.Value{
		"rag": meta.String(r.RAG),
		"web": r.Web.Value(),
	})
}

// Value converts the result into message metadata.
func (r *QueryResult) Value() meta.Value {
	return meta.Map(map[string]meta.Value{
		"answer":   meta.String(r.Answer),
		"used_web": meta.Bool(r.UsedWeb),
		"sources":  r.Sources(),
	})
}

// Node is one pipeline step.
type Node func(ctx context.Context, s *State) error

// Pipeline holds the collaborators the nodes need.
type Pipeline struct {
	Retriever *Retriever
	Search    search.Searcher
	Generator *Generator
}

// Run executes the nodes in order and stops at the first error.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	nodes := []Node{
		p.GatherNode,
		ComposeNode,
		p.Generator.AnswerNode,
		CriticNode,
	}
	for _, n := range nodes {
		if err := n(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// GatherNode runs retrieval and, when requested, web search concurrently.
func (p *Pipeline) GatherNode(ctx context.Context, s *State) error {
	if s.UseWeb && p.Search == nil {
		return fmt.Errorf("%w: web search requested but not configured", apperr.ErrSearchUnavailable)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := p.Retriever.Retrieve(gctx, s.Query, s.WorkflowID, s.EmbeddingModel, 0)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		s.RAGContext = text
		return nil
	})
	if s.UseWeb {
		g.Go(func() error {
			b, err := p.Search.Search(gctx, s.Query)
			if err != nil {
				return fmt.Errorf("web search: %w", err)
			}
			s.Web = b
			return nil
		})
	}
	return g.Wait()
}
