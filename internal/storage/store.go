package storage

import (
	"context"

	"github.com/Divas-Gupta30/ragflow/internal/meta"
)

// Lookups return an error wrapping apperr.ErrNotFound when the record does
// not exist. Lists are ordered by creation time, oldest first.

type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, page Page) ([]*Workflow, int, error)
	UpdateWorkflow(ctx context.Context, id string, patch WorkflowPatch) (*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	// TransitionWorkflow moves the workflow to `to` only if its current
	// status is one of from. It reports whether the row changed.
	TransitionWorkflow(ctx context.Context, id string, from []WorkflowStatus, to WorkflowStatus, reason string) (bool, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, workflowID string) ([]*Document, error)
	SetDocumentStatus(ctx context.Context, id string, status DocumentStatus, reason string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, workflowID string) ([]*Session, error)
}

type MessageStore interface {
	InsertMessage(ctx context.Context, m *Message) error
	UpdateMessage(ctx context.Context, id string, text *string, status MessageStatus, metadata meta.Value) (*Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
}

// Store is the relational side of the system.
type Store interface {
	WorkflowStore
	DocumentStore
	SessionStore
	MessageStore
}
