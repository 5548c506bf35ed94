package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/state"
)

// SubmitWorkflow validates and persists a workflow definition. Structural and
// cycle errors surface here, never at execution time. New workflows get an id
// and version 1; resubmitting an existing id bumps the version.
func (e *Engine) SubmitWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := workflow.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	existing, err := e.persistence.WorkflowRepository().GetByID(ctx, workflow.ID)

	switch {
	case err == nil:
		workflow.Version = existing.Version + 1
		workflow.CreatedAt = existing.CreatedAt
	case persistence.IsWorkflowNotFound(err):
		workflow.Version = 1
		workflow.CreatedAt = now
	default:
		return err
	}

	workflow.UpdatedAt = now

	if err := e.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Workflow submitted",
		"workflow_id", workflow.ID, "name", workflow.Name, "version", workflow.Version)

	return nil
}

// StartExecution claims the workflow's execution lock, persists an
// initialized state seeded from the workflow variables overlaid with the
// initial variables, and publishes an execution request for a worker to pick
// up. The returned execution id owns the lock; RunExecution and
// ResumeExecution re-acquire under the same owner.
func (e *Engine) StartExecution(ctx context.Context, workflowID string, initialVariables map[string]any) (string, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if !workflow.Executable() {
		return "", fmt.Errorf("%w: workflow %s is %s", models.ErrWorkflowNotExecutable, workflow.ID, workflow.Status)
	}

	if err := workflow.Validate(); err != nil {
		return "", err
	}

	executionID := uuid.New().String()

	acquired, err := e.locks.Acquire(ctx, workflowID, executionID, e.cfg.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire execution lock: %w", err)
	}

	if !acquired {
		return "", fmt.Errorf("%w: workflow %s", models.ErrCompletionAlreadyInProgress, workflowID)
	}

	seed := models.DeepCopyMap(workflow.Variables)
	if seed == nil {
		seed = make(map[string]any, len(initialVariables))
	}

	for k, v := range initialVariables {
		seed[k] = v
	}

	manager := state.NewManager(executionID, workflowID, workflow.Version, seed)

	if err := e.saveState(ctx, manager); err != nil {
		e.releaseLock(ctx, workflowID, executionID)

		return "", err
	}

	// The initialized state is the first snapshot; the audit flag keeps it
	// through compaction so the full history always has its starting point.
	if _, err := e.snapshot(ctx, manager, true); err != nil {
		e.releaseLock(ctx, workflowID, executionID)

		return "", err
	}

	request := events.NewExecutionRequested(workflowID, executionID, initialVariables)
	request.WorkerID = e.cfg.WorkerID
	e.emit(ctx, workflowID, request)

	e.logger.InfoContext(ctx, "Execution started",
		"workflow_id", workflowID, "execution_id", executionID, "version", workflow.Version)

	return executionID, nil
}

// CancelExecution flags a non-terminal execution for cooperative
// cancellation. The engine honors the flag between waves: in-flight steps
// finish, no new wave starts, and the execution fails with reason cancelled.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	st, err := e.persistence.ExecutionRepository().GetState(ctx, executionID)
	if err != nil {
		return err
	}

	if st.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", models.ErrNotRunning, executionID, st.Status)
	}

	if err := e.persistence.ExecutionRepository().MarkCancelRequested(ctx, executionID); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Cancellation requested",
		"workflow_id", st.WorkflowID, "execution_id", executionID)

	return nil
}

// ResumeExecution restores the latest snapshot and drives the execution to a
// terminal state, skipping the waves whose steps already completed. The lock
// is re-acquired under the execution's own id, so resuming never races a
// concurrent execution of the same workflow.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string) error {
	snap, err := e.persistence.SnapshotRepository().Latest(ctx, executionID)
	if err != nil {
		return err
	}

	restored := snap.State
	if restored.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", models.ErrNotRunning, executionID, restored.Status)
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, restored.WorkflowID)
	if err != nil {
		return err
	}

	acquired, err := e.locks.Acquire(ctx, restored.WorkflowID, executionID, e.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire execution lock: %w", err)
	}

	if !acquired {
		return fmt.Errorf("%w: workflow %s", models.ErrCompletionAlreadyInProgress, restored.WorkflowID)
	}

	manager := state.Restore(restored)

	if manager.Status() == models.ExecutionStatusPaused {
		if err := manager.Transition(models.ExecutionStatusRunning); err != nil {
			return err
		}
	}

	// The store keeps a persisted cancel flag through this save, so a cancel
	// issued while the execution was down still lands at the first boundary.
	if err := e.saveState(ctx, manager); err != nil {
		return err
	}

	e.emit(ctx, restored.WorkflowID, events.ExecutionResumed{
		BaseEvent:            e.baseEvent(events.ExecutionResumedEvent, restored.WorkflowID),
		ExecutionID:          executionID,
		Status:               string(manager.Status()),
		FromSequence:         snap.Sequence,
		StepsAlreadyExecuted: len(restored.ExecutedSteps),
	})

	e.logger.InfoContext(ctx, "Resuming execution",
		"workflow_id", restored.WorkflowID, "execution_id", executionID,
		"from_sequence", snap.Sequence, "steps_already_executed", len(restored.ExecutedSteps))

	_, err = e.run(ctx, manager, workflow)

	return err
}

// GetExecutionState returns the persisted state of an execution.
func (e *Engine) GetExecutionState(ctx context.Context, executionID string) (*models.ExecutionState, error) {
	return e.persistence.ExecutionRepository().GetState(ctx, executionID)
}

// GetExecutionResult returns the definitive outcome of a terminal execution.
// Non-terminal executions report ErrExecutionPending.
func (e *Engine) GetExecutionResult(ctx context.Context, executionID string) (*models.ExecutionResult, error) {
	st, err := e.persistence.ExecutionRepository().GetState(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !st.Status.Terminal() {
		return nil, fmt.Errorf("%w: execution %s is %s", models.ErrExecutionPending, executionID, st.Status)
	}

	return buildResult(st), nil
}
