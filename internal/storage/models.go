package storage

import (
	"strings"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/meta"
)

type WorkflowStatus string

const (
	WorkflowDraft      WorkflowStatus = "draft"
	WorkflowActive     WorkflowStatus = "active"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowDraft, WorkflowActive, WorkflowInProgress, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

// Node types a runnable workflow graph must contain.
const (
	NodeQuery         = "query"
	NodeKnowledgeBase = "knowledge-base"
	NodeLLM           = "llm"
	NodeOutput        = "output"
)

type Workflow struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Definition   *Definition    `json:"definition"`
	Status       WorkflowStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Definition is the user-built pipeline: model choices, prompt fragment,
// seed query and the node/edge graph drawn in the editor.
type Definition struct {
	EmbeddingModel string   `json:"embeddingModel,omitempty"`
	LLMModel       string   `json:"llmModel,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Query          string   `json:"query,omitempty"`
	WebSearch      bool     `json:"webSearch,omitempty"`
	Nodes          []Node   `json:"nodes"`
	Edges          []Edge   `json:"edges"`
}

type Node struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Position *Position  `json:"position,omitempty"`
	Data     meta.Value `json:"data"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Type         string `json:"type,omitempty"`
}

// NodesOfType returns the ids of nodes with the given type, in graph order.
func (d *Definition) NodesOfType(typ string) []string {
	var ids []string
	for _, n := range d.Nodes {
		if n.Type == typ {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Linked reports whether an edge runs from source to one of targets.
func (d *Definition) Linked(source string, targets []string) bool {
	for _, e := range d.Edges {
		if e.Source != source {
			continue
		}
		for _, t := range targets {
			if e.Target == t {
				return true
			}
		}
	}
	return false
}

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

type Document struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	FileName     string         `json:"file_name"`
	FileURL      string         `json:"file_url"`
	Status       DocumentStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Session struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageStatus tracks the placeholder lifecycle of assistant messages:
// generating, then complete or failed. User messages are complete on insert.
type MessageStatus string

const (
	MessageGenerating MessageStatus = "generating"
	MessageComplete   MessageStatus = "complete"
	MessageFailed     MessageStatus = "failed"
)

type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Role      MessageRole   `json:"role"`
	Message   *string       `json:"message"`
	Status    MessageStatus `json:"status"`
	Metadata  meta.Value    `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

// WorkflowPatch lists the fields UpdateWorkflow may change; nil means keep.
// Status is not among them: it moves only through TransitionWorkflow.
type WorkflowPatch struct {
	Name        *string
	Description *string
	Definition  *Definition
}

func (p WorkflowPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Definition == nil
}

// Page selects a window of a list. Limit <= 0 returns everything.
type Page struct {
	Offset int
	Limit  int
}

// SanitizeFileName replaces characters that are unsafe in file names and
// trims leading/trailing dots and blanks.
func SanitizeFileName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		return r
	}, name)
	out = strings.Trim(out, ". ")
	if out == "" {
		return "unnamed_file"
	}
	return out
}
