// Package web provides the HTTP handlers and request/response types for the
// workflow and execution REST API.
package web

import (
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// CreateWorkflowRequest is the body for registering a new workflow. Steps are
// validated structurally (dependencies, cycles, branch and loop shape) before
// the workflow is stored.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"              validate:"required,min=3"`
	Description string                 `json:"description"`
	Status      string                 `json:"status,omitempty"  validate:"omitempty,oneof=draft active archived"`
	Steps       []*models.WorkflowStep `json:"steps"             validate:"required,min=1"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest is the body for updating a workflow. All fields are
// optional to support partial updates; any accepted update bumps the version.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Status      *string                `json:"status,omitempty"      validate:"omitempty,oneof=draft active archived"`
	Steps       []*models.WorkflowStep `json:"steps,omitempty"       validate:"omitempty,min=1"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
}

// StartExecutionRequest carries caller-supplied variables overlaid onto the
// workflow's declared variables.
type StartExecutionRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

// StartExecutionResponse acknowledges an accepted execution request.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
}

// SnapshotSummary is the history listing entry: snapshot metadata without the
// full captured state.
type SnapshotSummary struct {
	Sequence      int64                  `json:"sequence"`
	Status        models.ExecutionStatus `json:"status"`
	StepsExecuted int                    `json:"steps_executed"`
	Audit         bool                   `json:"audit"`
	Checksum      string                 `json:"checksum"`
	CreatedAt     time.Time              `json:"created_at"`
}

// SummarizeSnapshot projects a snapshot into its history listing entry.
func SummarizeSnapshot(snapshot *models.ExecutionSnapshot) SnapshotSummary {
	summary := SnapshotSummary{
		Sequence:  snapshot.Sequence,
		Audit:     snapshot.Audit,
		Checksum:  snapshot.Checksum,
		CreatedAt: snapshot.CreatedAt,
	}

	if snapshot.State != nil {
		summary.Status = snapshot.State.Status
		summary.StepsExecuted = len(snapshot.State.ExecutedSteps)
	}

	return summary
}
