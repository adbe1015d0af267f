// Package ingestion fetches workflow documents, splits them into chunks and
// writes their embeddings to the vector store.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/metrics"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// Result reports how many new chunks one ingestion wrote.
type Result struct {
	DocumentID  string `json:"document_id"`
	ChunksAdded int    `json:"chunks_added"`
}

// Config wires an Ingester.
type Config struct {
	Documents  storage.DocumentStore
	Vectors    storage.VectorStore
	Namespace  string
	Embedder   processing.Embedder
	Fetcher    *Fetcher
	Loader     *Loader
	Splitter   *processing.Splitter
	EmbedBatch int
	Dimension  int
	Log        *logging.Logger
}

type Ingester struct {
	Config
}

func NewIngester(cfg Config) *Ingester {
	if cfg.Loader == nil {
		cfg.Loader = &Loader{}
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}
	return &Ingester{Config: cfg}
}

// Ingest indexes one document into the workflow's partition. A document that
// is already processed is skipped. Chunks whose ids already exist in the
// partition are not embedded again, so repeated runs never duplicate data.
func (in *Ingester) Ingest(ctx context.Context, documentID, workflowID, embeddingModel string) (*Result, error) {
	doc, err := in.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.WorkflowID != workflowID {
		return nil, apperr.NotFound("document", documentID)
	}
	if doc.Status == storage.DocumentProcessed {
		return &Result{DocumentID: documentID}, nil
	}

	log := in.Log.With("document_id", documentID, "workflow_id", workflowID)
	start := time.Now()
	added, err := in.index(ctx, doc, embeddingModel)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("failed").Inc()
		log.Error("ingestion failed", "error", err)
		if serr := in.Documents.SetDocumentStatus(context.WithoutCancel(ctx), documentID, storage.DocumentFailed, err.Error()); serr != nil {
			log.Error("failed to mark document failed", "error", serr)
		}
		return nil, fmt.Errorf("ingest document %s: %w", documentID, err)
	}
	if err := in.Documents.SetDocumentStatus(ctx, documentID, storage.DocumentProcessed, ""); err != nil {
		return nil, fmt.Errorf("mark document %s processed: %w", documentID, err)
	}
	metrics.DocumentsIngestedTotal.WithLabelValues("processed").Inc()
	log.Info("document ingested", "chunks_added", added, "duration", time.Since(start))
	return &Result{DocumentID: documentID, ChunksAdded: added}, nil
}

func (in *Ingester) index(ctx context.Context, doc *storage.Document, model string) (int, error) {
	path, cleanup, err := in.Fetcher.Fetch(ctx, doc.FileURL, doc.FileName)
	defer cleanup()
	if err != nil {
		return 0, err
	}

	pages, err := in.Loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	chunks := processing.ChunkPages(doc.FileURL, pages, in.Splitter)
	if len(chunks) == 0 {
		in.Log.Warn("document has no text", "document_id", doc.ID)
		return 0, nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := in.Vectors.ExistingIDs(ctx, in.Namespace, doc.WorkflowID, ids)
	if err != nil {
		return 0, fmt.Errorf("lookup existing chunks: %w", err)
	}
	fresh := chunks[:0:0]
	for _, c := range chunks {
		if !existing[c.ID] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}
	vecs, err := processing.EmbedChunks(ctx, in.Embedder, model, texts, in.EmbedBatch, in.Dimension)
	if err != nil {
		return 0, err
	}

	records := make([]storage.ChunkRecord, len(fresh))
	for i, c := range fresh {
		records[i] = storage.ChunkRecord{
			ID:         c.ID,
			WorkflowID: doc.WorkflowID,
			DocumentID: doc.ID,
			Source:     c.Source,
			Page:       c.Page,
			Content:    c.Content,
			Embedding:  vecs[i],
		}
	}
	n, err := in.Vectors.Upsert(ctx, in.Namespace, records)
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	metrics.ChunksIngestedTotal.Add(float64(n))
	return n, nil
}
