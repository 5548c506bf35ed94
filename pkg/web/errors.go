package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps the engine and persistence error taxonomy onto
// problem responses. Structural rejections are client errors; state-machine
// rejections are conflicts; unknown errors stay opaque 500s.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidStructure):
		return badRequest(c, err.Error())

	case errors.Is(err, models.ErrCyclicDependency):
		problem := problems.NewStatusProblem(fiber.StatusBadRequest).
			WithInstance(c.Path()).
			WithType("cyclic_dependency").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case errors.Is(err, models.ErrWorkflowNotExecutable):
		return conflict(c, "workflow_not_executable", err.Error())

	case errors.Is(err, models.ErrCompletionAlreadyInProgress):
		return conflict(c, "execution_in_progress", err.Error())

	case errors.Is(err, models.ErrNotRunning):
		return conflict(c, "execution_not_running", err.Error())

	case errors.Is(err, models.ErrExecutionPending):
		return conflict(c, "execution_pending", err.Error())

	case errors.Is(err, persistence.ErrInvalidSortField):
		return badRequest(c, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	case errors.Is(err, persistence.ErrSnapshotNotFound):
		return notFound(c, "snapshot_not_found", "no snapshots for execution")

	default:
		return internalError(c, err)
	}
}
