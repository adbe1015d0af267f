package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/ingestion"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/metrics"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// Statuses an execution may start from.
var startable = []storage.WorkflowStatus{
	storage.WorkflowDraft,
	storage.WorkflowActive,
	storage.WorkflowFailed,
}

// Ingester indexes one document.
type Ingester interface {
	Ingest(ctx context.Context, documentID, workflowID, embeddingModel string) (*ingestion.Result, error)
}

// Conversation opens sessions and answers messages.
type Conversation interface {
	CreateSession(ctx context.Context, workflowID, name string) (*storage.Session, error)
	ProcessMessage(ctx context.Context, sessionID, text string, search bool) (*storage.Message, error)
}

type Machine struct {
	store            storage.Store
	ingester         Ingester
	chat             Conversation
	defaultEmbedding string
	log              *logging.Logger
}

func NewMachine(store storage.Store, ingester Ingester, chat Conversation, defaultEmbedding string, log *logging.Logger) *Machine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Machine{store: store, ingester: ingester, chat: chat, defaultEmbedding: defaultEmbedding, log: log}
}

// Execute moves the workflow to in_progress, ingests its pending documents,
// answers the seed query in a new session and marks the workflow completed.
// When the workflow is already in_progress or completed nothing happens and
// the current status is returned. Any failure leaves it failed with the
// error as the reason.
func (m *Machine) Execute(ctx context.Context, workflowID string) (storage.WorkflowStatus, error) {
	started, err := m.store.TransitionWorkflow(ctx, workflowID, startable, storage.WorkflowInProgress, "")
	if err != nil {
		return "", err
	}
	if !started {
		wf, err := m.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return "", err
		}
		m.log.Info("execution skipped", "workflow_id", workflowID, "status", wf.Status)
		metrics.ExecutionsTotal.WithLabelValues("skipped").Inc()
		return wf.Status, nil
	}

	log := m.log.With("workflow_id", workflowID)
	start := time.Now()
	if err := m.run(ctx, workflowID); err != nil {
		log.Error("execution failed", "error", err)
		metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
		if _, terr := m.store.TransitionWorkflow(context.WithoutCancel(ctx), workflowID,
			[]storage.WorkflowStatus{storage.WorkflowInProgress}, storage.WorkflowFailed, err.Error()); terr != nil {
			log.Error("failed to mark workflow failed", "error", terr)
		}
		return storage.WorkflowFailed, err
	}

	if _, err := m.store.TransitionWorkflow(ctx, workflowID,
		[]storage.WorkflowStatus{storage.WorkflowInProgress}, storage.WorkflowCompleted, ""); err != nil {
		return storage.WorkflowInProgress, fmt.Errorf("mark completed: %w", err)
	}
	metrics.ExecutionsTotal.WithLabelValues("completed").Inc()
	log.Info("execution completed", "duration", time.Since(start))
	return storage.WorkflowCompleted, nil
}

func (m *Machine) run(ctx context.Context, workflowID string) error {
	wf, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	def := wf.Definition
	if def == nil {
		def = &storage.Definition{}
	}
	model := def.EmbeddingModel
	if model == "" {
		model = m.defaultEmbedding
	}

	docs, err := m.store.ListDocuments(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, d := range docs {
		if d.Status == storage.DocumentProcessed {
			continue
		}
		if _, err := m.ingester.Ingest(ctx, d.ID, workflowID, model); err != nil {
			return err
		}
	}

	sess, err := m.chat.CreateSession(ctx, workflowID, def.Query)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if _, err := m.chat.ProcessMessage(ctx, sess.ID, def.Query, def.WebSearch); err != nil {
		return fmt.Errorf("answer seed query: %w", err)
	}
	return nil
}
