// Package models defines the core domain models for the workflow execution engine.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// Workflow is the immutable description of a step graph: the steps, their
// dependencies, branch/loop configuration, and versioning metadata.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Status      WorkflowStatus  `json:"status"      validate:"required,oneof=draft active archived"`
	Version     int             `json:"version"`
	Steps       []*WorkflowStep `json:"steps"       validate:"required,min=1,dive"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Executable reports whether executions may be started for this workflow.
func (w *Workflow) Executable() bool {
	return w.Status == WorkflowStatusActive
}
