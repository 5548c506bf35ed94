// Package testutil provides test data builders shared across package tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// CreateTestStep creates an action step with default values that can be
// overridden.
func CreateTestStep(overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:   uuid.New().String(),
		Name: "Test Step",
		Type: models.StepTypeAction,
		Action: &models.ActionConfig{
			Type:          "log",
			Configuration: map[string]any{"message": "test", "level": "info"},
		},
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithStepID sets the step ID.
func WithStepID(id string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ID = id
		s.Name = id
	}
}

// WithDependsOn sets the step dependencies.
func WithDependsOn(deps ...string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.DependsOn = deps
	}
}

// WithAction sets the action type and configuration.
func WithAction(actionType string, config map[string]any) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Action = &models.ActionConfig{Type: actionType, Configuration: config}
	}
}

// WithParallelGroup assigns the step to a parallel group.
func WithParallelGroup(group string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ParallelGroup = group
	}
}

// CreateTestWorkflow creates an active workflow with a single log step.
// Overrides are applied after the defaults.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Status:      models.WorkflowStatusActive,
		Steps:       []*models.WorkflowStep{CreateTestStep(WithStepID("step-1"))},
		Variables:   map[string]any{"env": "test"},
		Metadata:    map[string]any{"category": "test"},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowStatus sets the workflow status.
func WithWorkflowStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithSteps replaces the workflow steps.
func WithSteps(steps ...*models.WorkflowStep) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Steps = steps
	}
}

// WithVariables replaces the workflow variables.
func WithVariables(variables map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = variables
	}
}

// CreateTestExecutionState creates an execution state in the given status,
// stamped with the given update time.
func CreateTestExecutionState(status models.ExecutionStatus, updatedAt time.Time, overrides ...func(*models.ExecutionState)) *models.ExecutionState {
	state := &models.ExecutionState{
		ID:          uuid.New().String(),
		WorkflowID:  uuid.New().String(),
		Status:      status,
		Variables:   map[string]any{},
		StepResults: map[string]*models.StepExecutionResult{},
		StartedAt:   updatedAt.Add(-time.Minute),
		UpdatedAt:   updatedAt,
	}

	for _, override := range overrides {
		override(state)
	}

	return state
}

// WithWorkflowID sets the owning workflow of an execution state.
func WithWorkflowID(workflowID string) func(*models.ExecutionState) {
	return func(s *models.ExecutionState) {
		s.WorkflowID = workflowID
	}
}
