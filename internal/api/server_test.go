package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/ragflow/internal/chat"
	"github.com/Divas-Gupta30/ragflow/internal/graph"
	"github.com/Divas-Gupta30/ragflow/internal/llm"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
	"github.com/Divas-Gupta30/ragflow/internal/testutil"
)

type recordingSubmitter struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSubmitter) Submit(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type harness struct {
	store     *storage.MemoryStore
	vectors   *storage.MemoryVectorStore
	model     *testutil.ScriptedModel
	submitter *recordingSubmitter
	uploadDir string
	handler   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     storage.NewMemoryStore(),
		vectors:   storage.NewMemoryVectorStore(),
		uploadDir: t.TempDir(),
		model:     &testutil.ScriptedModel{Content: llm.PlainText("Refunds take 14 days.")},
		submitter: &recordingSubmitter{},
	}
	pipeline := &graph.Pipeline{
		Retriever: &graph.Retriever{
			Vectors:   h.vectors,
			Embedder:  &testutil.HashEmbedder{},
			Namespace: "workflow_collection",
			TopK:      4,
		},
		Generator: &graph.Generator{Model: h.model},
	}
	svc := chat.NewService(h.store, pipeline, chat.Defaults{
		LLMModel:       "gemini-2.5-flash",
		EmbeddingModel: "models/gemini-embedding-001",
		Temperature:    0.7,
	}, nil)
	h.handler = NewRouter(Deps{
		Store:       h.store,
		Vectors:     h.vectors,
		Namespace:   "workflow_collection",
		Chat:        svc,
		Executions:  h.submitter,
		Models:      Models{LLM: []string{"gemini-2.5-flash"}, Embedding: []string{"models/gemini-embedding-001"}},
		UploadDir:   h.uploadDir,
		CORSOrigins: []string{"http://localhost:3000"},
		APIPrefix:   "/api/v1",
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func runnableDefinition() *storage.Definition {
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

func TestWorkflowCRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{"name": "support"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wf storage.Workflow
	decode(t, rec, &wf)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, storage.WorkflowDraft, wf.Status)

	rec = h.do(t, http.MethodPut, "/api/v1/workflows/"+wf.ID, map[string]interface{}{"description": "refunds"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &wf)
	assert.Equal(t, "refunds", wf.Description)
	assert.Equal(t, "support", wf.Name)

	rec = h.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	_, err := h.vectors.Upsert(ctx, "workflow_collection", []storage.ChunkRecord{
		{ID: "a:0:0", WorkflowID: wf.ID, Content: "refunds", Embedding: testutil.Embed("refunds")},
		{ID: "a:0:1", WorkflowID: wf.ID, Content: "shipping", Embedding: testutil.Embed("shipping")},
	})
	require.NoError(t, err)

	rec = h.do(t, http.MethodDelete, "/api/v1/workflows/"+wf.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Workflow deleted successfully"}`, rec.Body.String())
	n, err := h.vectors.Count(ctx, "workflow_collection", wf.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec = h.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "not_found", body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestCreateWorkflowRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader("{"))
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestWorkflowStatusIsNotClientWritable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{"name": "x", "status": "in_progress"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var wf storage.Workflow
	decode(t, rec, &wf)
	assert.Equal(t, storage.WorkflowDraft, wf.Status)

	ok, err := h.store.TransitionWorkflow(ctx, wf.ID, []storage.WorkflowStatus{storage.WorkflowDraft}, storage.WorkflowInProgress, "")
	require.NoError(t, err)
	require.True(t, ok)

	for _, status := range []string{"active", "completed"} {
		rec = h.do(t, http.MethodPut, "/api/v1/workflows/"+wf.ID, map[string]interface{}{"status": status, "description": status})
		require.Equal(t, http.StatusOK, rec.Code)
		got, err := h.store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, storage.WorkflowInProgress, got.Status)
		assert.Equal(t, status, got.Description)
	}
}

func TestListWorkflowsPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.store.CreateWorkflow(context.Background(), &storage.Workflow{Name: "wf"}))
	}

	rec := h.do(t, http.MethodGet, "/api/v1/workflows?page=2&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []storage.Workflow `json:"items"`
		Total      int                `json:"total"`
		Page       int                `json:"page"`
		PerPage    int                `json:"per_page"`
		TotalPages int                `json:"total_pages"`
	}
	decode(t, rec, &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)

	rec = h.do(t, http.MethodGet, "/api/v1/workflows?page=0&per_page=500", nil)
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PerPage)
	assert.Equal(t, 1, page.TotalPages)
}

func TestExecuteValidatesBeforeQueueing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := &storage.Workflow{Name: "support", Definition: runnableDefinition()}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	rec := h.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "validation_error", body.Code)
	assert.Contains(t, body.Error, "no documents")
	assert.Empty(t, h.submitter.ids)

	require.NoError(t, h.store.CreateDocument(ctx, &storage.Document{
		WorkflowID: wf.ID, FileName: "policy.txt", FileURL: "/tmp/policy.txt",
	}))
	rec = h.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/validate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message":"Executing Workflow it may take a while...","status":"pending"}`, rec.Body.String())
	assert.Equal(t, []string{wf.ID}, h.submitter.ids)
}

func TestDocumentRegistrationAndUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := &storage.Workflow{Name: "support"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	rec := h.do(t, http.MethodPost, "/api/v1/documents", map[string]string{
		"workflow_id": wf.ID,
		"file_name":   "policy.pdf",
		"file_url":    "https://files.example/policy.pdf",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc storage.Document
	decode(t, rec, &doc)
	assert.Equal(t, storage.DocumentPending, doc.Status)

	rec = h.do(t, http.MethodPost, "/api/v1/documents", map[string]string{"workflow_id": "missing", "file_url": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "faq?.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Shipping is free."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusCreated, out.Code, out.Body.String())
	decode(t, out, &doc)
	assert.Equal(t, "faq_.txt", doc.FileName)
	data, err := os.ReadFile(doc.FileURL)
	require.NoError(t, err)
	assert.Equal(t, "Shipping is free.", string(data))

	rec = h.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/documents", nil)
	var docs []storage.Document
	decode(t, rec, &docs)
	assert.Len(t, docs, 2)
}

func TestDocumentSourceMustBeRemoteOrUploaded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := &storage.Workflow{Name: "support"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	outside := filepath.Join(t.TempDir(), "server_secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("DB_PASSWORD=hunter2"), 0o600))
	inside := filepath.Join(h.uploadDir, "faq.txt")
	require.NoError(t, os.WriteFile(inside, []byte("Shipping is free."), 0o600))

	tests := []struct {
		name   string
		source string
		status int
	}{
		{"bare path outside uploads", outside, http.StatusBadRequest},
		{"file url outside uploads", "file://" + outside, http.StatusBadRequest},
		{"escape with dot dot", filepath.Join(h.uploadDir, "..", "x.txt"), http.StatusBadRequest},
		{"system file", "/etc/passwd", http.StatusBadRequest},
		{"unsupported scheme", "ftp://files.example/a.pdf", http.StatusBadRequest},
		{"upload dir itself", h.uploadDir, http.StatusBadRequest},
		{"inside uploads", inside, http.StatusCreated},
		{"file url inside uploads", "file://" + inside, http.StatusCreated},
		{"https", "https://files.example/policy.pdf", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/v1/documents", map[string]string{
				"workflow_id": wf.ID,
				"file_url":    tt.source,
			})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := h.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/documents", map[string]string{"file_url": outside})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	docs, err := h.store.ListDocuments(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestFirstMessageOpensSession(t *testing.T) {
	h := newHarness(t)
	wf := &storage.Workflow{Name: "support"}
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))

	rec := h.do(t, http.MethodPost, "/api/v1/messages", map[string]interface{}{
		"message":  "What is the refund policy?",
		"metadata": map[string]interface{}{"workflow_id": wf.ID, "is_first": true},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		SessionID string          `json:"session_id"`
		Message   storage.Message `json:"message"`
	}
	decode(t, rec, &out)
	require.NotEmpty(t, out.SessionID)
	require.NotNil(t, out.Message.Message)
	assert.Equal(t, "Refunds take 14 days.", *out.Message.Message)

	rec = h.do(t, http.MethodPost, "/api/v1/sessions/"+out.SessionID+"/messages", map[string]interface{}{
		"message": "And exchanges?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/sessions/"+out.SessionID+"/messages", nil)
	var msgs []storage.Message
	decode(t, rec, &msgs)
	require.Len(t, msgs, 4)
	assert.Equal(t, storage.RoleUser, msgs[0].Role)
	assert.Equal(t, storage.RoleAssistant, msgs[3].Role)

	rec = h.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/sessions", nil)
	var sessions []storage.Session
	decode(t, rec, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "What is the refund policy?", sessions[0].Name)
}

func TestPostMessageValidation(t *testing.T) {
	h := newHarness(t)
	wf := &storage.Workflow{Name: "support"}
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))

	rec := h.do(t, http.MethodPost, "/api/v1/messages", map[string]interface{}{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"workflow_id": wf.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess storage.Session
	decode(t, rec, &sess)
	assert.Equal(t, "New chat", sess.Name)

	rec = h.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/sessions/unknown/messages", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetadataAndMiddleware(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/metadata/available-llm-models", nil)
	assert.JSONEq(t, `["gemini-2.5-flash"]`, rec.Body.String())
	rec = h.do(t, http.MethodGet, "/api/v1/metadata/available-embedding-models", nil)
	assert.JSONEq(t, `["models/gemini-embedding-001"]`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set(requestIDHeader, "abc-123")
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)
	assert.Equal(t, "http://localhost:3000", out.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "abc-123", out.Header().Get(requestIDHeader))

	rec = h.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "not_found", body.Code)
}
