// Package transform provides the data transformation step handler.
package transform

import (
	"context"
	"fmt"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/template"
)

// Handler evaluates a transformation expression against the execution
// context and exposes the result as the step output. Object-shaped
// expressions are rendered leaf by leaf.
type Handler struct {
	Expression any
	OutputVar  string
}

// NewHandler creates a transform handler from configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	expression, exists := config["expression"]
	if !exists {
		return nil, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("missing 'expression' in configuration"))
	}

	outputVar, _ := config["output_var"].(string)

	return &Handler{Expression: expression, OutputVar: outputVar}, nil
}

func (h *Handler) Execute(_ context.Context, executionCtx *models.ExecutionContext) (*models.StepExecutionResult, error) {
	result, err := h.evaluate(executionCtx)
	if err != nil {
		return nil, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("transformation failed: %w", err))
	}

	if h.OutputVar != "" {
		executionCtx.SetVariable(h.OutputVar, result)
	}

	return &models.StepExecutionResult{
		Success: true,
		Output:  result,
	}, nil
}

func (h *Handler) evaluate(executionCtx *models.ExecutionContext) (any, error) {
	switch expr := h.Expression.(type) {
	case string:
		return template.RenderWithContext(expr, executionCtx)
	case map[string]any:
		return template.RenderConfig(expr, template.ContextData(executionCtx))
	default:
		return nil, fmt.Errorf("expression must be a string or object, got %T", h.Expression)
	}
}
