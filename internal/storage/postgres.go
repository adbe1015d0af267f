package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/meta"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	definition JSONB,
	status VARCHAR(20) NOT NULL DEFAULT 'draft',
	status_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	file_url TEXT NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	status_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_workflow_idx ON documents (workflow_id, created_at);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_sessions_workflow_idx ON chat_sessions (workflow_id, created_at);

CREATE TABLE IF NOT EXISTS chat_messages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role VARCHAR(20) NOT NULL,
	message TEXT,
	status VARCHAR(20) NOT NULL DEFAULT 'complete',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, created_at);

CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = now();
	RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_workflows_updated_at ON workflows;
CREATE TRIGGER update_workflows_updated_at
	BEFORE UPDATE ON workflows
	FOR EACH ROW
	EXECUTE FUNCTION update_updated_at_column();
`

const workflowColumns = `id, user_id, name, description, definition, status, status_reason, created_at, updated_at`

// PostgresStore implements Store on database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// validID keeps malformed ids from reaching the UUID columns, where they
// would fail as a syntax error instead of a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	var (
		w   Workflow
		def []byte
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Description, &def,
		&w.Status, &w.StatusReason, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if len(def) > 0 && string(def) != "null" {
		w.Definition = &Definition{}
		if err := json.Unmarshal(def, w.Definition); err != nil {
			return nil, fmt.Errorf("decode definition of workflow %s: %w", w.ID, err)
		}
	}
	return &w, nil
}

func encodeDefinition(def *Definition) (interface{}, error) {
	if def == nil {
		return nil, nil
	}
	b, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return string(b), nil
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, w *Workflow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = WorkflowDraft
	}
	def, err := encodeDefinition(w.Definition)
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO workflows (id, user_id, name, description, definition, status, status_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID, w.Name, w.Description, def, w.Status, w.StatusReason).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	if !validID(id) {
		return nil, apperr.NotFound("workflow", id)
	}
	w, err := scanWorkflow(s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("workflow", id)
	}
	return w, err
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, page Page) ([]*Workflow, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at, id`
	args := []interface{}{}
	if page.Limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, page.Limit, page.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, id string, patch WorkflowPatch) (*Workflow, error) {
	if !validID(id) {
		return nil, apperr.NotFound("workflow", id)
	}
	if patch.Empty() {
		return s.GetWorkflow(ctx, id)
	}

	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if patch.Name != nil {
		setParts = append(setParts, "name = $"+strconv.Itoa(argIndex))
		args = append(args, *patch.Name)
		argIndex++
	}
	if patch.Description != nil {
		setParts = append(setParts, "description = $"+strconv.Itoa(argIndex))
		args = append(args, *patch.Description)
		argIndex++
	}
	if patch.Definition != nil {
		def, err := encodeDefinition(patch.Definition)
		if err != nil {
			return nil, err
		}
		setParts = append(setParts, "definition = $"+strconv.Itoa(argIndex))
		args = append(args, def)
		argIndex++
	}

	query := "UPDATE workflows SET " + strings.Join(setParts, ", ") +
		" WHERE id = $" + strconv.Itoa(argIndex) + " RETURNING " + workflowColumns
	args = append(args, id)

	w, err := scanWorkflow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("workflow", id)
	}
	return w, err
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("workflow", id)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("workflow", id)
	}
	return nil
}

func (s *PostgresStore) TransitionWorkflow(ctx context.Context, id string, from []WorkflowStatus, to WorkflowStatus, reason string) (bool, error) {
	if !validID(id) {
		return false, apperr.NotFound("workflow", id)
	}
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = $1, status_reason = $2
		WHERE id = $3 AND status = ANY($4)
	`, to, reason, id, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetWorkflow(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

const documentColumns = `id, workflow_id, file_name, file_url, status, status_reason, created_at`

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.WorkflowID, &d.FileName, &d.FileURL, &d.Status, &d.StatusReason, &d.CreatedAt)
	return &d, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d *Document) error {
	if !validID(d.WorkflowID) {
		return apperr.NotFound("workflow", d.WorkflowID)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, workflow_id, file_name, file_url, status, status_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.WorkflowID, d.FileName, d.FileURL, d.Status, d.StatusReason).Scan(&d.CreatedAt)
	return mapForeignKey(err, "workflow", d.WorkflowID)
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	if !validID(id) {
		return nil, apperr.NotFound("document", id)
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document", id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, workflowID string) ([]*Document, error) {
	if !validID(workflowID) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE workflow_id = $1 ORDER BY created_at, id`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, id string, status DocumentStatus, reason string) error {
	if !validID(id) {
		return apperr.NotFound("document", id)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, status_reason = $2 WHERE id = $3`, status, reason, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("document", id)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session) error {
	if !validID(sess.WorkflowID) {
		return apperr.NotFound("workflow", sess.WorkflowID)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_sessions (id, workflow_id, name) VALUES ($1, $2, $3)
		RETURNING created_at
	`, sess.ID, sess.WorkflowID, sess.Name).Scan(&sess.CreatedAt)
	return mapForeignKey(err, "workflow", sess.WorkflowID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if !validID(id) {
		return nil, apperr.NotFound("session", id)
	}
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, name, created_at FROM chat_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.WorkflowID, &sess.Name, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, workflowID string) ([]*Session, error) {
	if !validID(workflowID) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, created_at FROM chat_sessions
		WHERE workflow_id = $1 ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.WorkflowID, &sess.Name, &sess.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

const messageColumns = `id, session_id, role, message, status, metadata, created_at`

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m    Message
		text sql.NullString
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.Role, &text, &m.Status, &m.Metadata, &m.CreatedAt); err != nil {
		return nil, err
	}
	if text.Valid {
		m.Message = &text.String
	}
	return &m, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m *Message) error {
	if !validID(m.SessionID) {
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
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, message, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.SessionID, m.Role, m.Message, m.Status, m.Metadata).Scan(&m.CreatedAt)
	return mapForeignKey(err, "session", m.SessionID)
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, id string, text *string, status MessageStatus, metadata meta.Value) (*Message, error) {
	if !validID(id) {
		return nil, apperr.NotFound("message", id)
	}
	if metadata.IsNull() {
		metadata = meta.Map(nil)
	}
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		UPDATE chat_messages SET message = $1, status = $2, metadata = $3
		WHERE id = $4
		RETURNING `+messageColumns, text, status, metadata, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message", id)
	}
	return m, err
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// mapForeignKey turns a foreign key violation on insert into a NotFound for
// the parent record.
func mapForeignKey(err error, parent, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return apperr.NotFound(parent, id)
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
