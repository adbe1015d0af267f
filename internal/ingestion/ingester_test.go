package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
	"github.com/Divas-Gupta30/ragflow/internal/testutil"
)

type ingestFixture struct {
	store    *storage.MemoryStore
	vectors  *storage.MemoryVectorStore
	embedder *testutil.HashEmbedder
	ing      *Ingester
	wf       *storage.Workflow
	dir      string
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	ctx := context.Background()
	f := &ingestFixture{
		store:    storage.NewMemoryStore(),
		vectors:  storage.NewMemoryVectorStore(),
		embedder: &testutil.HashEmbedder{},
		dir:      t.TempDir(),
	}
	splitter, err := processing.NewSplitter(200, 20)
	require.NoError(t, err)
	f.ing = NewIngester(Config{
		Documents:  f.store,
		Vectors:    f.vectors,
		Namespace:  "workflow_collection",
		Embedder:   f.embedder,
		Fetcher:    NewFetcher(filepath.Join(f.dir, "tmp"), time.Second),
		Splitter:   splitter,
		EmbedBatch: 4,
	})
	f.wf = &storage.Workflow{Name: "policies"}
	require.NoError(t, f.store.CreateWorkflow(ctx, f.wf))
	return f
}

func (f *ingestFixture) addDocument(t *testing.T, name, body string) *storage.Document {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if body != "" {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	d := &storage.Document{WorkflowID: f.wf.ID, FileName: name, FileURL: path}
	require.NoError(t, f.store.CreateDocument(context.Background(), d))
	return d
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	body := strings.Repeat("Refunds are issued within 14 days of the request. ", 20)
	doc := f.addDocument(t, "policy.txt", body)

	res, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "models/gemini-embedding-001")
	require.NoError(t, err)
	require.Greater(t, res.ChunksAdded, 0)

	got, _ := f.store.GetDocument(ctx, doc.ID)
	assert.Equal(t, storage.DocumentProcessed, got.Status)
	count, _ := f.vectors.Count(ctx, "workflow_collection", f.wf.ID)
	assert.Equal(t, res.ChunksAdded, count)

	// Already processed: skipped without touching the provider.
	calls := f.embedder.Calls
	res2, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "models/gemini-embedding-001")
	require.NoError(t, err)
	assert.Zero(t, res2.ChunksAdded)
	assert.Equal(t, calls, f.embedder.Calls)

	// Forced re-run: ids already exist, nothing is embedded or added.
	require.NoError(t, f.store.SetDocumentStatus(ctx, doc.ID, storage.DocumentPending, ""))
	res3, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "models/gemini-embedding-001")
	require.NoError(t, err)
	assert.Zero(t, res3.ChunksAdded)
	assert.Equal(t, calls, f.embedder.Calls)
	count2, _ := f.vectors.Count(ctx, "workflow_collection", f.wf.ID)
	assert.Equal(t, count, count2)

	entries, err := os.ReadDir(filepath.Join(f.dir, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestChunkIDsUseFileURL(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	doc := f.addDocument(t, "short.txt", "Refunds take 14 days.")

	_, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "m")
	require.NoError(t, err)

	existing, err := f.vectors.ExistingIDs(ctx, "workflow_collection", f.wf.ID, []string{doc.FileURL + ":0:0"})
	require.NoError(t, err)
	assert.True(t, existing[doc.FileURL+":0:0"])
}

func TestIngestDownloadFailureMarksDocumentFailed(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	doc := f.addDocument(t, "gone.txt", "")

	_, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "m")
	assert.ErrorIs(t, err, apperr.ErrDownload)

	got, _ := f.store.GetDocument(ctx, doc.ID)
	assert.Equal(t, storage.DocumentFailed, got.Status)
	assert.NotEmpty(t, got.StatusReason)
}

func TestIngestEmbeddingFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	f.embedder.Err = errors.New("quota exceeded")
	doc := f.addDocument(t, "policy.txt", "Refunds are issued within 14 days.")

	_, err := f.ing.Ingest(ctx, doc.ID, f.wf.ID, "m")
	require.ErrorContains(t, err, "quota exceeded")

	got, _ := f.store.GetDocument(ctx, doc.ID)
	assert.Equal(t, storage.DocumentFailed, got.Status)
	assert.Contains(t, got.StatusReason, "quota exceeded")
	count, _ := f.vectors.Count(ctx, "workflow_collection", f.wf.ID)
	assert.Zero(t, count)

	entries, err := os.ReadDir(filepath.Join(f.dir, "tmp"))
	if !os.IsNotExist(err) {
		require.NoError(t, err)
	}
	assert.Empty(t, entries)
}

func TestIngestUnknownDocument(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	_, err := f.ing.Ingest(ctx, "missing", f.wf.ID, "m")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	doc := f.addDocument(t, "a.txt", "text")
	_, err = f.ing.Ingest(ctx, doc.ID, "other-workflow", "m")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
