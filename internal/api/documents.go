package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

const maxUploadBytes = 32 << 20

type documentRequest struct {
	WorkflowID string `json:"workflow_id"`
	FileName   string `json:"file_name"`
	FileURL    string `json:"file_url"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.Store.GetWorkflow(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := s.Store.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*storage.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Store.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleCreateDocument registers a document that already lives at file_url.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.createDocument(w, r, req)
}

// handleUploadDocument accepts either a JSON registration or a multipart
// upload in the "file" field, which is stored under UploadDir.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "multipart/form-data" {
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.WorkflowID = workflowID
		s.createDocument(w, r, req)
		return
	}

	if _, err := s.Store.GetWorkflow(r.Context(), workflowID); err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file field", apperr.ErrInvalidInput))
		return
	}
	defer file.Close()

	path, err := s.saveUpload(workflowID, header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.createDocument(w, r, documentRequest{
		WorkflowID: workflowID,
		FileName:   header.Filename,
		FileURL:    path,
	})
}

func (s *Server) saveUpload(workflowID, name string, src io.Reader) (string, error) {
	dir := filepath.Join(s.UploadDir, workflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	target := filepath.Join(dir, uuid.NewString()[:8]+"_"+storage.SanitizeFileName(name))
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve upload path: %w", err)
	}
	out, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		os.Remove(abs)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return abs, nil
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request, req documentRequest) {
	req.WorkflowID = strings.TrimSpace(req.WorkflowID)
	req.FileURL = strings.TrimSpace(req.FileURL)
	switch {
	case req.WorkflowID == "":
		writeError(w, r, fmt.Errorf("%w: workflow_id is required", apperr.ErrInvalidInput))
		return
	case req.FileURL == "":
		writeError(w, r, fmt.Errorf("%w: file_url is required", apperr.ErrInvalidInput))
		return
	}
	if err := s.checkSource(req.FileURL); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = filepath.Base(req.FileURL)
	}
	doc := &storage.Document{
		WorkflowID: req.WorkflowID,
		FileName:   storage.SanitizeFileName(name),
		FileURL:    req.FileURL,
		Status:     storage.DocumentPending,
	}
	if err := s.Store.CreateDocument(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	s.Log.Info("document registered", "document_id", doc.ID, "workflow_id", doc.WorkflowID)
	writeJSON(w, http.StatusCreated, doc)
}

// checkSource admits http(s) URLs, and local paths (bare or file://) only
// when they resolve inside UploadDir.
func (s *Server) checkSource(source string) error {
	u, err := url.Parse(source)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			if u.Host == "" {
				return fmt.Errorf("%w: file_url has no host", apperr.ErrInvalidInput)
			}
			return nil
		case "file":
			source = u.Path
		case "":
		default:
			return fmt.Errorf("%w: unsupported file_url scheme %q", apperr.ErrInvalidInput, u.Scheme)
		}
	}
	if s.UploadDir == "" {
		return fmt.Errorf("%w: local file_url is not allowed", apperr.ErrInvalidInput)
	}
	root, err := filepath.Abs(s.UploadDir)
	if err != nil {
		return fmt.Errorf("resolve upload dir: %w", err)
	}
	path, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("%w: bad file_url: %v", apperr.ErrInvalidInput, err)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: local file_url must be inside the upload directory", apperr.ErrInvalidInput)
	}
	return nil
}
