package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

type messageMetadata struct {
	WorkflowID string `json:"workflow_id"`
	IsFirst    bool   `json:"is_first"`
	Search     bool   `json:"search"`
}

type messageRequest struct {
	Message  string          `json:"message"`
	Metadata messageMetadata `json:"metadata"`
}

type sessionRequest struct {
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Chat.ListSessions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*storage.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateWorkflowSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	req.WorkflowID = mux.Vars(r)["id"]
	s.createSession(w, r, req)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.WorkflowID) == "" {
		writeError(w, r, fmt.Errorf("%w: workflow_id is required", apperr.ErrInvalidInput))
		return
	}
	s.createSession(w, r, req)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New chat"
	}
	sess, err := s.Chat.CreateSession(r.Context(), strings.TrimSpace(req.WorkflowID), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Chat.ListMessages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*storage.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handlePostMessage answers a message in an existing session. The response
// carries the assistant message, or the error if the pipeline failed; the
// failed placeholder stays in history either way.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := s.Chat.ProcessMessage(r.Context(), mux.Vars(r)["id"], req.Message, req.Metadata.Search)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleFirstMessage opens a session for metadata.workflow_id and answers the
// first message in it.
func (s *Server) handleFirstMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Metadata.WorkflowID) == "" {
		writeError(w, r, fmt.Errorf("%w: metadata.workflow_id is required", apperr.ErrInvalidInput))
		return
	}
	sess, msg, err := s.Chat.StartConversation(r.Context(), req.Metadata.WorkflowID, req.Message, req.Metadata.Search)
	if err != nil {
		if sess == nil {
			writeError(w, r, err)
			return
		}
		status, code := apperr.Status(err)
		writeJSON(w, status, map[string]string{
			"session_id": sess.ID,
			"error":      err.Error(),
			"code":       code,
			"request_id": RequestID(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": sess.ID,
		"message":    msg,
	})
}
