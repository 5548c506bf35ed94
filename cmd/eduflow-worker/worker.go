// Package main provides the eduflow worker, the process that actually runs
// workflow executions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dandpb/jung-edu-app-sub012/pkg/engine"
	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// WorkerManager consumes execution and resume requests from the event bus
// and drives each execution through the engine to a terminal state.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   *engine.Engine
	eventBus eventbus.EventBus
}

func NewWorkerManager(
	id string,
	eng *engine.Engine,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "eduflow-worker", "worker_id", id),
		engine:   eng,
		eventBus: eventBus,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ResumeRequestedEvent, w.handleResumeRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", request.WorkflowID,
		"execution_id", request.ExecutionID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	result, err := w.engine.RunExecution(ctx, request.ExecutionID)
	if err != nil {
		if dropRequest(err) {
			logger.WarnContext(ctx, "Dropping execution request", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to run execution", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution finished",
		"success", result.Success, "executed_steps", len(result.ExecutedSteps))

	return nil
}

func (w *WorkerManager) handleResumeRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ResumeRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", request.WorkflowID,
		"execution_id", request.ExecutionID,
		"reason", request.Reason,
	)
	logger.InfoContext(ctx, "Processing resume request")

	err := w.engine.ResumeExecution(ctx, request.ExecutionID)
	if err != nil {
		if dropRequest(err) {
			logger.WarnContext(ctx, "Dropping resume request", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to resume execution", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution resumed to a terminal state")

	return nil
}

// dropRequest reports whether a request can never succeed on redelivery, so
// the message should be acked and dropped instead of retried. Lock conflicts
// stay retryable: redelivery is how queued executions of one workflow wait
// their turn.
func dropRequest(err error) bool {
	return errors.Is(err, models.ErrNotRunning) ||
		errors.Is(err, persistence.ErrExecutionNotFound) ||
		errors.Is(err, persistence.ErrWorkflowNotFound) ||
		errors.Is(err, persistence.ErrSnapshotNotFound)
}
