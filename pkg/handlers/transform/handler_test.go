package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
)

func TestNewHandlerRequiresExpression(t *testing.T) {
	_, err := NewHandler(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, resilience.FailureValidation, resilience.Classify(err))
}

func TestHandlerStringExpression(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"expression": "{{.variables.first}} {{.variables.last}}",
	})
	require.NoError(t, err)

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"first": "Ada",
		"last":  "Lovelace",
	}, nil)

	result, err := handler.Execute(context.Background(), executionCtx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Ada Lovelace", result.Output)
}

func TestHandlerObjectExpression(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"expression": map[string]any{
			"greeting": "hello {{.variables.name}}",
			"constant": float64(42),
		},
	})
	require.NoError(t, err)

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"name": "world",
	}, nil)

	result, err := handler.Execute(context.Background(), executionCtx)
	require.NoError(t, err)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello world", output["greeting"])
	assert.Equal(t, float64(42), output["constant"])
}

func TestHandlerReadsStepResults(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"expression": "{{.step_results.fetch.count}}",
	})
	require.NoError(t, err)

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", nil, map[string]*models.StepExecutionResult{
		"fetch": {StepID: "fetch", Success: true, Output: map[string]any{"count": float64(3)}},
	})

	result, err := handler.Execute(context.Background(), executionCtx)
	require.NoError(t, err)
	assert.Equal(t, float64(3), result.Output)
}

func TestHandlerOutputVar(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"expression": "{{.variables.score}}",
		"output_var": "normalized",
	})
	require.NoError(t, err)

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"score": float64(7),
	}, nil)

	_, err = handler.Execute(context.Background(), executionCtx)
	require.NoError(t, err)

	value, ok := executionCtx.Variable("normalized")
	require.True(t, ok)
	assert.Equal(t, float64(7), value)
	assert.Contains(t, executionCtx.Changes(), "normalized")
}

func TestHandlerInvalidExpressionType(t *testing.T) {
	handler, err := NewHandler(map[string]any{"expression": 12})
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil, nil))
	require.Error(t, err)
	assert.Equal(t, resilience.FailureValidation, resilience.Classify(err))
}
