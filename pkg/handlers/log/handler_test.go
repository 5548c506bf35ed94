package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	assert.Equal(t, "log", factory.ID())
	assert.Equal(t, "Log", factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.NotNil(t, factory.Schema())
}

func TestFactoryCreate(t *testing.T) {
	factory := NewFactory()

	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "nil config", config: nil},
		{name: "empty config", config: map[string]any{}},
		{name: "full config", config: map[string]any{"message": "hello", "level": "debug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, err := factory.Create(tt.config)
			require.NoError(t, err)
			assert.IsType(t, &Handler{}, handler)
		})
	}
}

func TestHandlerExecute(t *testing.T) {
	handler := NewHandler(map[string]any{
		"message": "processing order {{.variables.order_id}}",
		"level":   "info",
	})

	executionCtx := models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"order_id": "ord-42",
	}, nil)

	result, err := handler.Execute(context.Background(), executionCtx)
	require.NoError(t, err)
	require.True(t, result.Success)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "processing order ord-42", output["message"])
	assert.Equal(t, "info", output["level"])
}

func TestHandlerExecuteDefaultsLevel(t *testing.T) {
	handler := NewHandler(map[string]any{"message": "plain"})

	result, err := handler.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil, nil))
	require.NoError(t, err)

	output := result.Output.(map[string]any)
	assert.Equal(t, "info", output["level"])
}

func TestHandlerExecuteInvalidTemplate(t *testing.T) {
	handler := NewHandler(map[string]any{"message": "{{.variables.broken"})

	result, err := handler.Execute(context.Background(), models.NewExecutionContext("exec-1", "wf-1", nil, nil))
	require.Error(t, err)
	assert.Nil(t, result)
}
