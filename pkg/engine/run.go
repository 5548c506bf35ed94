package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/otelhelper"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/scheduler"
	"github.com/dandpb/jung-edu-app-sub012/pkg/state"
)

// RunExecution drives one execution to a terminal state. It is the worker's
// entry point after an execution request and is idempotent: a redelivery for
// an already-terminal execution returns the existing result.
//
// A nil error means the execution reached a terminal state; failed executions
// report through the result, not the error. A non-nil error means the run
// could not proceed (missing state, lost lock, persistence failure) and the
// execution may still be running from the store's point of view.
func (e *Engine) RunExecution(ctx context.Context, executionID string) (*models.ExecutionResult, error) {
	st, err := e.persistence.ExecutionRepository().GetState(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if st.Status.Terminal() {
		return buildResult(st), nil
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, st.WorkflowID)
	if err != nil {
		return nil, err
	}

	acquired, err := e.locks.Acquire(ctx, st.WorkflowID, executionID, e.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire execution lock: %w", err)
	}

	if !acquired {
		return nil, fmt.Errorf("%w: workflow %s", models.ErrCompletionAlreadyInProgress, st.WorkflowID)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execution",
		attribute.String(otelhelper.WorkflowIDKey, st.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	result, err := e.run(ctx, state.Restore(st), workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	otelhelper.SetOK(span)

	return result, nil
}

// run executes the wave plan over the managed state. Between waves it checks
// the persisted cancel flag and the execution deadline, refreshes the lock
// TTL, and persists a wave-boundary snapshot.
func (e *Engine) run(ctx context.Context, manager *state.Manager, workflow *models.Workflow) (*models.ExecutionResult, error) {
	st := manager.State()

	if workflow.Version != st.WorkflowVersion {
		e.logger.WarnContext(ctx, "Workflow version changed since the execution started",
			"workflow_id", workflow.ID,
			"execution_version", st.WorkflowVersion,
			"current_version", workflow.Version)
	}

	plan, err := scheduler.Build(workflow.Steps)
	if err != nil {
		return nil, err
	}

	switch manager.Status() {
	case models.ExecutionStatusInitialized:
		if err := manager.Transition(models.ExecutionStatusRunning); err != nil {
			return nil, err
		}

		if err := e.saveState(ctx, manager); err != nil {
			return nil, err
		}

		e.emit(ctx, workflow.ID, events.ExecutionStarted{
			BaseEvent:       e.baseEvent(events.ExecutionStartedEvent, workflow.ID),
			ExecutionID:     st.ID,
			WorkflowName:    workflow.Name,
			WorkflowVersion: st.WorkflowVersion,
			Variables:       manager.Variables(),
		})
	case models.ExecutionStatusPaused:
		if err := manager.Transition(models.ExecutionStatusRunning); err != nil {
			return nil, err
		}

		if err := e.saveState(ctx, manager); err != nil {
			return nil, err
		}
	case models.ExecutionStatusRunning:
		// resumed or redelivered; the wave skip below avoids repeating work
	default:
		return nil, fmt.Errorf("%w: execution %s is %s", models.ErrNotRunning, st.ID, manager.Status())
	}

	runCtx := ctx

	if e.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
		defer cancel()
	}

	executed := make(map[string]struct{}, len(st.ExecutedSteps))
	for _, id := range st.ExecutedSteps {
		executed[id] = struct{}{}
	}

	e.logger.InfoContext(ctx, "Running execution",
		"workflow_id", workflow.ID, "execution_id", st.ID,
		"waves", len(plan.Waves), "steps", plan.StepCount(),
		"already_executed", len(st.ExecutedSteps))

	for waveIdx, wave := range plan.Waves {
		pending := make([]*models.WorkflowStep, 0, len(wave.Steps))

		for _, step := range wave.Steps {
			if _, done := executed[step.ID]; !done {
				pending = append(pending, step)
			}
		}

		if len(pending) == 0 {
			continue
		}

		if e.cancelRequested(runCtx, manager) {
			return e.finalize(runCtx, manager, models.FailureReasonCancelled, nil)
		}

		if err := runCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return e.finalize(runCtx, manager, models.FailureReasonTimeout, nil)
			}

			// The caller is shutting down. Leave the execution running so
			// orphan recovery resumes it from the last snapshot.
			e.logger.WarnContext(ctx, "Run interrupted before wave",
				"execution_id", st.ID, "wave", waveIdx)

			return nil, err
		}

		if err := e.refreshLock(runCtx, workflow.ID, st.ID); err != nil {
			return nil, err
		}

		manager.SetCurrentStep(pending[0].ID)

		outcomes := e.dispatchWave(runCtx, manager, workflow, pending, waveIdx, 0)

		succeeded, failed := e.collectWave(manager, outcomes)
		for _, id := range succeeded {
			executed[id] = struct{}{}
		}

		// The boundary is persisted even when the run context just expired:
		// losing a completed wave would force resume to repeat its steps.
		if failed == nil {
			persistCtx := context.WithoutCancel(runCtx)

			if err := e.saveState(persistCtx, manager); err != nil {
				return nil, err
			}

			snap, err := e.snapshot(persistCtx, manager, false)
			if err != nil {
				return nil, err
			}

			e.emit(persistCtx, workflow.ID, events.WaveCompleted{
				BaseEvent:        e.baseEvent(events.WaveCompletedEvent, workflow.ID),
				ExecutionID:      st.ID,
				Wave:             waveIdx,
				StepIDs:          succeeded,
				SnapshotSequence: snap.Sequence,
			})
		}

		if err := runCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return e.finalize(runCtx, manager, models.FailureReasonTimeout, failed)
			}

			e.logger.WarnContext(ctx, "Run interrupted after wave",
				"execution_id", st.ID, "wave", waveIdx)

			return nil, err
		}

		if failed != nil {
			return e.finalize(runCtx, manager, models.FailureReasonStepError, failed)
		}
	}

	return e.complete(ctx, manager)
}

// cancelRequested reports whether cancellation was asked for, either on this
// manager or on the persisted state. Cancellation is level-triggered: the
// flag is read back from the store so a cancel issued through another process
// is honored at the next wave boundary. A read failure only defers the check.
func (e *Engine) cancelRequested(ctx context.Context, manager *state.Manager) bool {
	if manager.CancelRequested() {
		return true
	}

	executionID := manager.State().ID

	persisted, err := e.persistence.ExecutionRepository().GetState(ctx, executionID)
	if err != nil {
		e.logger.WarnContext(ctx, "Could not refresh cancellation flag",
			"execution_id", executionID, "error", err)

		return false
	}

	if persisted.CancelRequested {
		manager.RequestCancel()

		return true
	}

	return false
}

// refreshLock extends the lock TTL at a wave boundary. Losing the lock means
// another owner took over after expiry; this run must stop without touching
// state it no longer owns.
func (e *Engine) refreshLock(ctx context.Context, workflowID, executionID string) error {
	acquired, err := e.locks.Acquire(ctx, workflowID, executionID, e.cfg.LockTTL)
	if err != nil {
		e.logger.WarnContext(ctx, "Could not refresh execution lock",
			"workflow_id", workflowID, "execution_id", executionID, "error", err)

		return nil
	}

	if !acquired {
		return fmt.Errorf("%w: lock for workflow %s lost to another owner",
			models.ErrCompletionAlreadyInProgress, workflowID)
	}

	return nil
}

// complete transitions to completed, persists the terminal state with an
// audit snapshot, releases the lock and emits the completion event.
func (e *Engine) complete(ctx context.Context, manager *state.Manager) (*models.ExecutionResult, error) {
	ctx = context.WithoutCancel(ctx)

	if err := manager.Transition(models.ExecutionStatusCompleted); err != nil {
		return nil, err
	}

	if err := e.saveState(ctx, manager); err != nil {
		return nil, err
	}

	if _, err := e.snapshot(ctx, manager, true); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist final snapshot",
			"execution_id", manager.State().ID, "error", err)
	}

	st := manager.State()
	e.releaseLock(ctx, st.WorkflowID, st.ID)

	e.emit(ctx, st.WorkflowID, events.ExecutionCompleted{
		BaseEvent:     e.baseEvent(events.ExecutionCompletedEvent, st.WorkflowID),
		ExecutionID:   st.ID,
		Status:        string(st.Status),
		DurationMs:    durationMs(st),
		StepsExecuted: len(st.ExecutedSteps),
		FinalResults:  st.Variables,
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"workflow_id", st.WorkflowID, "execution_id", st.ID,
		"steps_executed", len(st.ExecutedSteps))

	return buildResult(st), nil
}

// finalize ends the execution as failed for the given reason, persists the
// terminal state with an audit snapshot, releases the lock and emits the
// matching lifecycle event. It runs detached from the caller's cancellation
// so the terminal state always lands.
func (e *Engine) finalize(ctx context.Context, manager *state.Manager, reason string, failed *stepOutcome) (*models.ExecutionResult, error) {
	ctx = context.WithoutCancel(ctx)

	switch reason {
	case models.FailureReasonCancelled:
		manager.RecordError(&models.ExecutionError{
			Message:   "execution cancelled",
			Kind:      reason,
			Timestamp: time.Now().UTC(),
		})
	case models.FailureReasonTimeout:
		manager.RecordError(&models.ExecutionError{
			Message:   "execution deadline exceeded",
			Kind:      reason,
			Timestamp: time.Now().UTC(),
		})
	}

	manager.SetFailureReason(reason)

	if err := manager.Transition(models.ExecutionStatusFailed); err != nil {
		return nil, err
	}

	if err := e.saveState(ctx, manager); err != nil {
		return nil, err
	}

	if _, err := e.snapshot(ctx, manager, true); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist final snapshot",
			"execution_id", manager.State().ID, "error", err)
	}

	st := manager.State()
	e.releaseLock(ctx, st.WorkflowID, st.ID)

	if reason == models.FailureReasonCancelled {
		e.emit(ctx, st.WorkflowID, events.ExecutionCancelled{
			BaseEvent:     e.baseEvent(events.ExecutionCancelledEvent, st.WorkflowID),
			ExecutionID:   st.ID,
			Status:        string(st.Status),
			DurationMs:    durationMs(st),
			Reason:        reason,
			StepsExecuted: len(st.ExecutedSteps),
		})
	} else {
		e.emit(ctx, st.WorkflowID, events.ExecutionFailed{
			BaseEvent:      e.baseEvent(events.ExecutionFailedEvent, st.WorkflowID),
			ExecutionID:    st.ID,
			Status:         string(st.Status),
			DurationMs:     durationMs(st),
			Error:          failureDetail(reason, failed),
			StepsExecuted:  len(st.ExecutedSteps),
			PartialResults: st.Variables,
		})
	}

	e.logger.WarnContext(ctx, "Execution failed",
		"workflow_id", st.WorkflowID, "execution_id", st.ID,
		"reason", reason, "steps_executed", len(st.ExecutedSteps))

	return buildResult(st), nil
}

// failureDetail shapes the error block of an ExecutionFailed event.
func failureDetail(reason string, failed *stepOutcome) events.ExecutionFailure {
	if failed == nil {
		return events.ExecutionFailure{
			Message: "execution " + reason,
			Kind:    reason,
		}
	}

	kind := resilience.Classify(failed.err)

	return events.ExecutionFailure{
		StepID:   failed.stepID,
		Message:  failed.err.Error(),
		Kind:     string(kind),
		Fallback: kind.FallbackStrategy(),
	}
}

// buildResult derives the definitive outcome from a terminal state.
func buildResult(st *models.ExecutionState) *models.ExecutionResult {
	completed := st.UpdatedAt
	if st.CompletedAt != nil {
		completed = *st.CompletedAt
	}

	return &models.ExecutionResult{
		Success:       st.Status == models.ExecutionStatusCompleted,
		WorkflowID:    st.WorkflowID,
		ExecutionID:   st.ID,
		StartedAt:     st.StartedAt,
		CompletedAt:   completed,
		ExecutedSteps: append([]string(nil), st.ExecutedSteps...),
		StepResults:   st.StepResults,
		Errors:        st.Errors,
	}
}

func durationMs(st *models.ExecutionState) int64 {
	end := st.UpdatedAt
	if st.CompletedAt != nil {
		end = *st.CompletedAt
	}

	return end.Sub(st.StartedAt).Milliseconds()
}
