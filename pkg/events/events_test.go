package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{ExecutionRequested{}, ExecutionRequestedEvent},
		{ResumeRequested{}, ResumeRequestedEvent},
		{ExecutionStarted{}, ExecutionStartedEvent},
		{ExecutionCompleted{}, ExecutionCompletedEvent},
		{ExecutionFailed{}, ExecutionFailedEvent},
		{ExecutionCancelled{}, ExecutionCancelledEvent},
		{ExecutionResumed{}, ExecutionResumedEvent},
		{StepStarted{}, StepStartedEvent},
		{StepCompleted{}, StepCompletedEvent},
		{StepFailed{}, StepFailedEvent},
		{WaveCompleted{}, WaveCompletedEvent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.GetType())
	}
}

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(ExecutionStartedEvent, "wf-123")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, ExecutionStartedEvent, event.Type)
	assert.Equal(t, "wf-123", event.WorkflowID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

func TestNewExecutionRequested(t *testing.T) {
	event := NewExecutionRequested("wf-123", "exec-456", map[string]any{"tenant": "acme"})

	assert.Equal(t, "wf-123", event.WorkflowID)
	assert.Equal(t, "exec-456", event.ExecutionID)
	assert.Equal(t, "acme", event.Variables["tenant"])
	assert.NotEmpty(t, event.ID)
}

func TestExecutionFailedSerialization(t *testing.T) {
	original := ExecutionFailed{
		BaseEvent:   NewBaseEvent(ExecutionFailedEvent, "wf-123"),
		ExecutionID: "exec-456",
		Status:      "failed",
		DurationMs:  1500,
		Error: ExecutionFailure{
			StepID:   "fetch-users",
			Message:  "dial tcp: i/o timeout",
			Kind:     "network_timeout",
			Fallback: "retry",
		},
		StepsExecuted: 3,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"execution.failed"`)
	assert.Contains(t, string(jsonData), `"step_id":"fetch-users"`)
	assert.Contains(t, string(jsonData), `"kind":"network_timeout"`)

	var decoded ExecutionFailed

	require.NoError(t, json.Unmarshal(jsonData, &decoded))
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, original.Error, decoded.Error)
	assert.Equal(t, original.StepsExecuted, decoded.StepsExecuted)
}
