// Package log provides the log step handler for workflow actions.
package log

import (
	"context"
	"fmt"
	"log/slog"

	logpkg "github.com/dandpb/jung-edu-app-sub012/pkg/log"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/template"
)

// Handler logs a rendered message at the configured level.
type Handler struct {
	Message string
	Level   string

	logger *slog.Logger
}

// NewHandler creates a log handler from configuration.
func NewHandler(config map[string]any) *Handler {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Handler{
		Message: message,
		Level:   level,
		logger:  logpkg.WithModule("log_handler"),
	}
}

func (h *Handler) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.StepExecutionResult, error) {
	rendered, err := template.RenderWithContext(h.Message, executionCtx)
	if err != nil {
		return nil, resilience.NewStepError(resilience.FailureValidation, fmt.Errorf("failed to render message template: %w", err))
	}

	message := template.Stringify(rendered)

	logger := h.logger.With(
		"execution_id", executionCtx.ID,
		"workflow_id", executionCtx.WorkflowID,
		"step_id", executionCtx.StepID,
	)

	switch h.Level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn", "warning":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return &models.StepExecutionResult{
		Success: true,
		Output: map[string]any{
			"message": message,
			"level":   h.Level,
		},
	}, nil
}
