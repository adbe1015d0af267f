// Package api exposes workflows, documents and chat over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/chat"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// Submitter queues a workflow execution.
type Submitter interface {
	Submit(ctx context.Context, workflowID string) error
}

// Models lists the selectable models.
type Models struct {
	LLM       []string
	Embedding []string
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Store       storage.Store
	// Vectors and Namespace locate a workflow's chunks so deleting the
	// workflow drops them too. Vectors may be nil.
	Vectors     storage.VectorStore
	Namespace   string
	Chat        *chat.Service
	Executions  Submitter
	Models      Models
	UploadDir   string
	CORSOrigins []string
	APIPrefix   string
	Health      func(ctx context.Context) error
	Log         *logging.Logger
}

type Server struct {
	Deps
}

// NewRouter wires every route and the middleware chain.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logging.NewNop()
	}
	s := &Server{Deps: d}

	router := mux.NewRouter()
	router.Use(s.observe)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("route", r.URL.Path))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{
			Error:     "method not allowed",
			Code:      "method_not_allowed",
			RequestID: RequestID(r.Context()),
		})
	})

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/" + strings.Trim(d.APIPrefix, "/")).Subrouter()
	if strings.Trim(d.APIPrefix, "/") == "" {
		api = router
	}

	api.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows", s.handleCreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/validate", s.handleValidateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/execute", s.handleExecuteWorkflow).Methods(http.MethodPost)

	api.HandleFunc("/workflows/{id}/documents", s.handleListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/documents", s.handleUploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleCreateDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.handleGetDocument).Methods(http.MethodGet)

	api.HandleFunc("/workflows/{id}/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/sessions", s.handleCreateWorkflowSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", s.handlePostMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleFirstMessage).Methods(http.MethodPost)

	api.HandleFunc("/metadata/available-embedding-models", s.handleEmbeddingModels).Methods(http.MethodGet)
	api.HandleFunc("/metadata/available-llm-models", s.handleLLMModels).Methods(http.MethodGet)

	// Outside the router so unmatched requests get them too.
	return s.requestID(s.cors(router))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			s.Log.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleEmbeddingModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.Models.Embedding))
}

func (s *Server) handleLLMModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.Models.LLM))
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
