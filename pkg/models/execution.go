package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusInitialized ExecutionStatus = "initialized"
	ExecutionStatusRunning     ExecutionStatus = "running"
	ExecutionStatusPaused      ExecutionStatus = "paused"
	ExecutionStatusCompleted   ExecutionStatus = "completed"
	ExecutionStatusFailed      ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Failure reasons recorded on ExecutionState when an execution ends early.
const (
	FailureReasonCancelled = "cancelled"
	FailureReasonTimeout   = "timeout"
	FailureReasonStepError = "step_error"
)

// ExecutionState is the mutable record of one run. It is mutated exclusively
// by the engine through the state manager and retained after termination for
// audit and resume.
type ExecutionState struct {
	ID              string                          `json:"id"`
	WorkflowID      string                          `json:"workflow_id"`
	WorkflowVersion int                             `json:"workflow_version"`
	Status          ExecutionStatus                 `json:"status"`
	CurrentStepID   string                          `json:"current_step_id,omitempty"`
	Variables       map[string]any                  `json:"variables"`
	StepResults     map[string]*StepExecutionResult `json:"step_results"`
	ExecutedSteps   []string                        `json:"executed_steps"`
	Errors          []*ExecutionError               `json:"errors,omitempty"`
	FailureReason   string                          `json:"failure_reason,omitempty"`
	CancelRequested bool                            `json:"cancel_requested,omitempty"`
	StartedAt       time.Time                       `json:"started_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
	CompletedAt     *time.Time                      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy. Used before forking parallel branches so
// concurrent steps never observe each other's uncommitted writes.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Variables = DeepCopyMap(s.Variables)
	clone.StepResults = make(map[string]*StepExecutionResult, len(s.StepResults))

	for id, r := range s.StepResults {
		rc := *r
		rc.Output = DeepCopyValue(r.Output)
		clone.StepResults[id] = &rc
	}

	clone.ExecutedSteps = append([]string(nil), s.ExecutedSteps...)

	clone.Errors = make([]*ExecutionError, len(s.Errors))
	for i, e := range s.Errors {
		ec := *e
		clone.Errors[i] = &ec
	}

	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}

// ExecutionError is one recorded failure, ordered by occurrence.
type ExecutionError struct {
	StepID    string    `json:"step_id,omitempty"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StepExecutionResult is the outcome of one step invocation. Owned by the
// engine; callers hold references and never mutate it.
type StepExecutionResult struct {
	StepID    string        `json:"step_id"`
	Success   bool          `json:"success"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// ExecutionResult is the definitive outcome of an execution, derived from the
// terminal state. Produced once, immutable thereafter.
type ExecutionResult struct {
	Success       bool                            `json:"success"`
	WorkflowID    string                          `json:"workflow_id"`
	ExecutionID   string                          `json:"execution_id"`
	StartedAt     time.Time                       `json:"started_at"`
	CompletedAt   time.Time                       `json:"completed_at"`
	ExecutedSteps []string                        `json:"executed_steps"`
	StepResults   map[string]*StepExecutionResult `json:"step_results"`
	Errors        []*ExecutionError               `json:"errors,omitempty"`
}
