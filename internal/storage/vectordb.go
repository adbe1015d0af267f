package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRecord is one embedded slice of a document. Within a namespace it is
// keyed by (WorkflowID, ID); WorkflowID is the retrieval partition.
type ChunkRecord struct {
	ID         string
	WorkflowID string
	DocumentID string
	Source     string
	Page       int
	Content    string
	Embedding  []float32
}

// ChunkMatch is a search hit. Score is cosine similarity, higher is closer.
type ChunkMatch struct {
	ID         string
	WorkflowID string
	DocumentID string
	Source     string
	Page       int
	Content    string
	Score      float64
}

type VectorStore interface {
	// Upsert inserts records not yet present and returns how many it added.
	// Records whose key already exists are skipped, not overwritten.
	Upsert(ctx context.Context, namespace string, records []ChunkRecord) (int, error)
	// ExistingIDs reports which of ids are already stored for the workflow.
	ExistingIDs(ctx context.Context, namespace, workflowID string, ids []string) (map[string]bool, error)
	// Query returns up to topK chunks of the workflow, nearest first.
	Query(ctx context.Context, namespace, workflowID string, vector []float32, topK int) ([]ChunkMatch, error)
	Count(ctx context.Context, namespace, workflowID string) (int, error)
	DeleteWorkflow(ctx context.Context, namespace, workflowID string) error
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PgVectorStore keeps chunks in a Postgres table with a pgvector column.
type PgVectorStore struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

func NewPgVectorStore(pool *pgxpool.Pool, table string, dimension int) (*PgVectorStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid chunk table name %q", table)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	return &PgVectorStore{pool: pool, table: table, dimension: dimension}, nil
}

// Migrate creates the extension, table and HNSW index.
func (s *PgVectorStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL,
			page INT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, workflow_id, id)
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, namespace string, records []ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	insert := fmt.Sprintf(`
		INSERT INTO %s (namespace, workflow_id, id, document_id, source, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace, workflow_id, id) DO NOTHING`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return 0, fmt.Errorf("chunk %s: expected embedding dim %d, got %d", r.ID, s.dimension, len(r.Embedding))
		}
		batch.Queue(insert, namespace, r.WorkflowID, r.ID, r.DocumentID, r.Source, r.Page, r.Content,
			pgvector.NewVector(r.Embedding))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	added := 0
	for range records {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("insert chunk: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

func (s *PgVectorStore) ExistingIDs(ctx context.Context, namespace, workflowID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE namespace = $1 AND workflow_id = $2 AND id = ANY($3)`, s.table),
		namespace, workflowID, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *PgVectorStore) Query(ctx context.Context, namespace, workflowID string, vector []float32, topK int) ([]ChunkMatch, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, workflow_id, document_id, source, page, content, 1 - (embedding <=> $3) AS score
		FROM %s
		WHERE namespace = $1 AND workflow_id = $2
		ORDER BY embedding <=> $3
		LIMIT $4`, s.table),
		namespace, workflowID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ID, &m.WorkflowID, &m.DocumentID, &m.Source, &m.Page, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *PgVectorStore) Count(ctx context.Context, namespace, workflowID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE namespace = $1 AND workflow_id = $2`, s.table),
		namespace, workflowID).Scan(&n)
	return n, err
}

func (s *PgVectorStore) DeleteWorkflow(ctx context.Context, namespace, workflowID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = $1 AND workflow_id = $2`, s.table),
		namespace, workflowID)
	return err
}

var _ VectorStore = (*PgVectorStore)(nil)
