package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/meta"
)

// MemoryStore is an in-process Store used by tests and by `serve --memory`.
// Records are copied in and out so callers never share state with it.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	clock     func() time.Time
	workflows map[string]*Workflow
	documents map[string]*Document
	sessions  map[string]*Session
	messages  map[string]*Message
	order     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:     time.Now,
		workflows: map[string]*Workflow{},
		documents: map[string]*Document{},
		sessions:  map[string]*Session{},
		messages:  map[string]*Message{},
		order:     map[string]int64{},
	}
}

// stamp records insertion order, which breaks ties between equal timestamps.
func (s *MemoryStore) stamp(id string) time.Time {
	s.seq++
	s.order[id] = s.seq
	return s.clock()
}

func (s *MemoryStore) before(a, b string) bool {
	return s.order[a] < s.order[b]
}

func copyWorkflow(w *Workflow) *Workflow {
	c := *w
	if w.Definition != nil {
		def := *w.Definition
		def.Nodes = append([]Node(nil), w.Definition.Nodes...)
		def.Edges = append([]Edge(nil), w.Definition.Edges...)
		if w.Definition.Temperature != nil {
			t := *w.Definition.Temperature
			def.Temperature = &t
		}
		c.Definition = &def
	}
	return &c
}

func copyMessage(m *Message) *Message {
	c := *m
	if m.Message != nil {
		text := *m.Message
		c.Message = &text
	}
	return &c
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, w *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = WorkflowDraft
	}
	w.CreatedAt = s.stamp(w.ID)
	w.UpdatedAt = w.CreatedAt
	s.workflows[w.ID] = copyWorkflow(w)
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, apperr.NotFound("workflow", id)
	}
	return copyWorkflow(w), nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, page Page) ([]*Workflow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool { return s.before(all[i].ID, all[j].ID) })

	total := len(all)
	if page.Limit > 0 {
		start := min(page.Offset, total)
		end := min(start+page.Limit, total)
		all = all[start:end]
	}
	out := make([]*Workflow, len(all))
	for i, w := range all {
		out[i] = copyWorkflow(w)
	}
	return out, total, nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, id string, patch WorkflowPatch) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, apperr.NotFound("workflow", id)
	}
	if patch.Empty() {
		return copyWorkflow(w), nil
	}
	if patch.Name != nil {
		w.Name = *patch.Name
	}
	if patch.Description != nil {
		w.Description = *patch.Description
	}
	if patch.Definition != nil {
		w.Definition = copyWorkflow(&Workflow{Definition: patch.Definition}).Definition
	}
	w.UpdatedAt = s.clock()
	return copyWorkflow(w), nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return apperr.NotFound("workflow", id)
	}
	delete(s.workflows, id)
	for docID, d := range s.documents {
		if d.WorkflowID == id {
			delete(s.documents, docID)
		}
	}
	for sessID, sess := range s.sessions {
		if sess.WorkflowID != id {
			continue
		}
		for msgID, m := range s.messages {
			if m.SessionID == sessID {
				delete(s.messages, msgID)
			}
		}
		delete(s.sessions, sessID)
	}
	return nil
}

func (s *MemoryStore) TransitionWorkflow(_ context.Context, id string, from []WorkflowStatus, to WorkflowStatus, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return false, apperr.NotFound("workflow", id)
	}
	for _, st := range from {
		if w.Status == st {
			w.Status = to
			w.StatusReason = reason
			w.UpdatedAt = s.clock()
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[d.WorkflowID]; !ok {
		return apperr.NotFound("workflow", d.WorkflowID)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentPending
	}
	d.CreatedAt = s.stamp(d.ID)
	c := *d
	s.documents[d.ID] = &c
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, apperr.NotFound("document", id)
	}
	c := *d
	return &c, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, workflowID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, d := range s.documents {
		if d.WorkflowID == workflowID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[i].ID, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) SetDocumentStatus(_ context.Context, id string, status DocumentStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return apperr.NotFound("document", id)
	}
	d.Status = status
	d.StatusReason = reason
	return nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[sess.WorkflowID]; !ok {
		return apperr.NotFound("workflow", sess.WorkflowID)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = s.stamp(sess.ID)
	c := *sess
	s.sessions[sess.ID] = &c
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	c := *sess
	return &c, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, workflowID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.WorkflowID == workflowID {
			c := *sess
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[i].ID, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return apperr.NotFound("session", m.SessionID)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = MessageComplete
	}
	if m.Metadata.IsNull() {
		m.Metadata = meta.Map(nil)
	}
	m.CreatedAt = s.stamp(m.ID)
	s.messages[m.ID] = copyMessage(m)
	return nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, id string, text *string, status MessageStatus, metadata meta.Value) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.NotFound("message", id)
	}
	if metadata.IsNull() {
		metadata = meta.Map(nil)
	}
	m.Message = nil
	if text != nil {
		t := *text
		m.Message = &t
	}
	m.Status = status
	m.Metadata = metadata
	return copyMessage(m), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, apperr.NotFound("session", sessionID)
	}
	var out []*Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[i].ID, out[j].ID) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
