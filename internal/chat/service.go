// Package chat turns a user message into a persisted, grounded assistant
// reply.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/graph"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/meta"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// Defaults apply when a workflow definition leaves a setting empty.
type Defaults struct {
	LLMModel       string
	EmbeddingModel string
	Temperature    float64
}

type Service struct {
	store    storage.Store
	pipeline *graph.Pipeline
	defaults Defaults
	log      *logging.Logger
}

func NewService(store storage.Store, pipeline *graph.Pipeline, defaults Defaults, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{store: store, pipeline: pipeline, defaults: defaults, log: log}
}

func (s *Service) CreateSession(ctx context.Context, workflowID, name string) (*storage.Session, error) {
	sess := &storage.Session{WorkflowID: workflowID, Name: strings.TrimSpace(name)}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, workflowID string) ([]*storage.Session, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, workflowID)
}

func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]*storage.Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// StartConversation opens a session named after the first message and
// answers it.
func (s *Service) StartConversation(ctx context.Context, workflowID, text string, search bool) (*storage.Session, *storage.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("%w: message must not be empty", apperr.ErrInvalidInput)
	}
	sess, err := s.CreateSession(ctx, workflowID, text)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.ProcessMessage(ctx, sess.ID, text, search)
	if err != nil {
		return sess, nil, err
	}
	return sess, msg, nil
}

// ProcessMessage stores the user message and an assistant placeholder, runs
// the answer pipeline and completes the placeholder in place. If the
// pipeline fails the placeholder is marked failed and the error returned.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, text string, search bool) (*storage.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message must not be empty", apperr.ErrInvalidInput)
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	wf, err := s.store.GetWorkflow(ctx, sess.WorkflowID)
	if err != nil {
		return nil, err
	}

	user := &storage.Message{
		SessionID: sessionID,
		Role:      storage.RoleUser,
		Message:   &text,
		Status:    storage.MessageComplete,
		Metadata:  meta.Map(map[string]meta.Value{"search": meta.Bool(search)}),
	}
	if err := s.store.InsertMessage(ctx, user); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}
	placeholder := &storage.Message{
		SessionID: sessionID,
		Role:      storage.RoleAssistant,
		Status:    storage.MessageGenerating,
		Metadata:  statusMeta(storage.MessageGenerating),
	}
	if err := s.store.InsertMessage(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("store assistant placeholder: %w", err)
	}

	log := s.log.With("session_id", sessionID, "workflow_id", wf.ID, "message_id", placeholder.ID)
	start := time.Now()
	state := s.newState(wf, text, search)
	if err := s.pipeline.Run(ctx, state); err != nil {
		log.Error("answer generation failed", "error", err)
		failed := statusMeta(storage.MessageFailed).With("error", meta.String(err.Error()))
		if _, uerr := s.store.UpdateMessage(context.WithoutCancel(ctx), placeholder.ID, nil, storage.MessageFailed, failed); uerr != nil {
			log.Error("failed to mark message failed", "error", uerr)
		}
		return nil, err
	}

	res := state.Result()
	final := statusMeta(storage.MessageComplete).
		With("sources", res.Sources()).
		With("used_web", meta.Bool(res.UsedWeb))
	msg, err := s.store.UpdateMessage(ctx, placeholder.ID, &res.Answer, storage.MessageComplete, final)
	if err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	log.Info("assistant message generated", "used_web", res.UsedWeb, "duration", time.Since(start))
	return msg, nil
}

func (s *Service) newState(wf *storage.Workflow, text string, search bool) *graph.State {
	st := &graph.State{
		Query:          text,
		WorkflowID:     wf.ID,
		EmbeddingModel: s.defaults.EmbeddingModel,
		LLMModel:       s.defaults.LLMModel,
		Temperature:    s.defaults.Temperature,
		UseWeb:         search,
	}
	if def := wf.Definition; def != nil {
		if def.EmbeddingModel != "" {
			st.EmbeddingModel = def.EmbeddingModel
		}
		if def.LLMModel != "" {
			st.LLMModel = def.LLMModel
		}
		if def.Temperature != nil {
			st.Temperature = *def.Temperature
		}
		st.Prompt = def.Prompt
	}
	return st
}

func statusMeta(status storage.MessageStatus) meta.Value {
	return meta.Map(map[string]meta.Value{"status": meta.String(string(status))})
}
