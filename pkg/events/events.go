// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const ExecutionTopic = "eduflow.executions" // Topic for execution lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Control-plane events. The API and the janitor publish these; workers
	// consume them and drive the engine.
	ExecutionRequestedEvent EventType = "execution.requested"
	ResumeRequestedEvent    EventType = "execution.resume.requested"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Step-level events.
	StepStartedEvent   EventType = "execution.step.started"
	StepCompletedEvent EventType = "execution.step.completed"
	StepFailedEvent    EventType = "execution.step.failed"
	WaveCompletedEvent EventType = "execution.wave.completed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID     string         `json:"execution_id"`
	WorkflowName    string         `json:"workflow_name"`
	WorkflowVersion int            `json:"workflow_version"`
	Variables       map[string]any `json:"variables,omitempty"`
	Initiator       string         `json:"initiator,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	Status        string         `json:"status"`
	DurationMs    int64          `json:"duration_ms"`
	StepsExecuted int            `json:"steps_executed"`
	FinalResults  map[string]any `json:"final_results,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionFailure carries the failing step and its classification so
// consumers can route on the fallback strategy without re-parsing messages.
type ExecutionFailure struct {
	StepID   string `json:"step_id"`
	Message  string `json:"message"`
	Kind     string `json:"kind"`
	Fallback string `json:"fallback,omitempty"`
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID    string           `json:"execution_id"`
	Status         string           `json:"status"`
	DurationMs     int64            `json:"duration_ms"`
	Error          ExecutionFailure `json:"error"`
	StepsExecuted  int              `json:"steps_executed"`
	PartialResults map[string]any   `json:"partial_results,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	Reason        string `json:"reason,omitempty"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
	StepsExecuted int    `json:"steps_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID          string `json:"execution_id"`
	Status               string `json:"status"`
	ResumedBy            string `json:"resumed_by,omitempty"`
	FromSequence         int64  `json:"from_sequence"`
	StepsAlreadyExecuted int    `json:"steps_already_executed"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// Step-level events

type StepStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	StepName    string `json:"step_name,omitempty"`
	StepType    string `json:"step_type"`
	Wave        int    `json:"wave"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	Output      any    `json:"output,omitempty"`
	Attempts    int    `json:"attempts"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	Attempts    int    `json:"attempts"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type WaveCompleted struct {
	BaseEvent

	ExecutionID      string   `json:"execution_id"`
	Wave             int      `json:"wave"`
	StepIDs          []string `json:"step_ids"`
	SnapshotSequence int64    `json:"snapshot_sequence,omitempty"`
}

func (e WaveCompleted) GetType() EventType {
	return WaveCompletedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
