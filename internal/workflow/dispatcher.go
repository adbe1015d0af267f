package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

// Executor runs one workflow execution.
type Executor interface {
	Execute(ctx context.Context, workflowID string) (storage.WorkflowStatus, error)
}

// Dispatcher runs executions in the background on a bounded goroutine pool.
// Executions outlive the request that submitted them.
type Dispatcher struct {
	pool *ants.Pool
	exec Executor
	log  *logging.Logger
	wg   sync.WaitGroup
}

func NewDispatcher(size int, exec Executor, log *logging.Logger) (*Dispatcher, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("execution pool: %w", err)
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{pool: pool, exec: exec, log: log}, nil
}

// Submit queues an execution. The submitting context only carries values;
// its cancellation does not stop the execution.
func (d *Dispatcher) Submit(ctx context.Context, workflowID string) error {
	run := context.WithoutCancel(ctx)
	d.wg.Add(1)
	err := d.pool.Submit(func() {
		defer d.wg.Done()
		status, err := d.exec.Execute(run, workflowID)
		if err != nil {
			d.log.Error("background execution failed", "workflow_id", workflowID, "status", status, "error", err)
			return
		}
		d.log.Info("background execution finished", "workflow_id", workflowID, "status", status)
	})
	if err != nil {
		d.wg.Done()
		return fmt.Errorf("submit execution: %w", err)
	}
	return nil
}

// Close waits for running executions and releases the pool.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	d.pool.Release()
}
