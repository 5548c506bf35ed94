package events

// ExecutionRequested asks a worker to pick up an initialized execution and
// run it. The API publishes one after validating the workflow and claiming
// the execution lock.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

// NewExecutionRequested creates an execution request event.
func NewExecutionRequested(workflowID, executionID string, variables map[string]any) ExecutionRequested {
	return ExecutionRequested{
		BaseEvent:   NewBaseEvent(ExecutionRequestedEvent, workflowID),
		ExecutionID: executionID,
		Variables:   variables,
	}
}

// Resume request reasons.
const (
	ResumeReasonManual         = "manual"
	ResumeReasonOrphanRecovery = "orphan_recovery"
)

// ResumeRequested asks a worker to continue a paused or orphaned execution
// from its latest snapshot.
type ResumeRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason"`
}

func (e ResumeRequested) GetType() EventType {
	return ResumeRequestedEvent
}

// NewResumeRequested creates a resume request event.
func NewResumeRequested(workflowID, executionID, reason string) ResumeRequested {
	return ResumeRequested{
		BaseEvent:   NewBaseEvent(ResumeRequestedEvent, workflowID),
		ExecutionID: executionID,
		Reason:      reason,
	}
}
