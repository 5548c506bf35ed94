package web

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dandpb/jung-edu-app-sub012/pkg/engine"
	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// APIHandlers exposes workflow and execution management over HTTP. Writes go
// through the engine so the API and the workers share one validation and
// locking path; runs themselves happen on workers via the event bus.
type APIHandlers struct {
	logger      *slog.Logger
	engine      *engine.Engine
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	eng *engine.Engine,
	persist persistence.Persistence,
	bus eventbus.EventPublisher,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		engine:      eng,
		persistence: persist,
		bus:         bus,
		validator:   validate,
	}
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.persistence.WorkflowRepository().List(c.Context(), *opts)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func parseListOptions(c fiber.Ctx) (*persistence.ListWorkflowsOptions, error) {
	opts := &persistence.ListWorkflowsOptions{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		opts.Status = &status
	}

	opts.SortBy = c.Query("sort_by")
	opts.SortOrder = c.Query("sort_order")

	return opts, nil
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatus(req.Status),
		Steps:       req.Steps,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
	}

	if err := h.engine.SubmitWorkflow(c.Context(), workflow); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.persistence.WorkflowRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Status != nil {
		existing.Status = models.WorkflowStatus(*req.Status)
	}

	if req.Steps != nil {
		existing.Steps = req.Steps
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	// resubmission revalidates and bumps the version
	if err := h.engine.SubmitWorkflow(c.Context(), existing); err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.persistence.WorkflowRepository().Delete(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ActivateWorkflow flips a workflow to active so executions may be started.
// Activating an already-active workflow is a no-op.
func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	if workflow.Status == models.WorkflowStatusActive {
		return c.JSON(workflow)
	}

	workflow.Status = models.WorkflowStatusActive

	if err := h.engine.SubmitWorkflow(c.Context(), workflow); err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(workflow)
}

// StartExecution claims the workflow's execution slot and hands the run off
// to a worker through the event bus.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	executionID, err := h.engine.StartExecution(c.Context(), workflowID, req.Variables)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Status:      string(models.ExecutionStatusInitialized),
	})
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	states, err := h.persistence.ExecutionRepository().ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"executions": states, "total_count": len(states)})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	state, err := h.engine.GetExecutionState(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) GetExecutionResult(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	result, err := h.engine.GetExecutionResult(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetExecutionHistory(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	// resolve 404 before listing; unknown executions have empty histories
	if _, err := h.engine.GetExecutionState(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	history, err := h.persistence.SnapshotRepository().History(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	summaries := make([]SnapshotSummary, 0, len(history))
	for _, snapshot := range history {
		summaries = append(summaries, SummarizeSnapshot(snapshot))
	}

	return c.JSON(fiber.Map{"execution_id": id, "snapshots": summaries})
}

// CancelExecution records the cancellation request; the worker honors it at
// the next wave boundary.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.engine.CancelExecution(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
		"status":       "cancellation_requested",
	})
}

// ResumeExecution asks a worker to continue a non-terminal execution from its
// latest snapshot.
func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	state, err := h.engine.GetExecutionState(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	if state.Status.Terminal() {
		return conflict(c, "execution_not_running", "execution already reached a terminal state")
	}

	request := events.NewResumeRequested(state.WorkflowID, id, events.ResumeReasonManual)

	if err := h.bus.Publish(c.Context(), state.WorkflowID, request); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to publish resume request",
			"execution_id", id, "error", err)

		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
		"status":       "resume_requested",
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := fiber.StatusOK
	checkers := fiber.Map{"persistence": "ok"}

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = fiber.StatusInternalServerError
		checkers["persistence"] = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
