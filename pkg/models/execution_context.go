package models

import "time"

// Reserved context keys exposed to template expressions. Loop variable names
// must not collide with these.
var ReservedContextKeys = []string{
	"execution",
	"variables",
	"vars",
	"step_results",
	"metadata",
	"env",
}

// ExecutionContext is the per-step handle handed to step handlers. It wraps
// an isolated copy of the execution variables: reads see the snapshot plus
// the step's own writes, and writes are collected as a delta the engine
// merges back once the surrounding wave completes.
type ExecutionContext struct {
	ID          string                          `json:"id"`
	WorkflowID  string                          `json:"workflow_id"`
	StepID      string                          `json:"step_id,omitempty"`
	Variables   map[string]any                  `json:"variables"`
	StepResults map[string]*StepExecutionResult `json:"step_results"`
	Metadata    map[string]any                  `json:"metadata,omitempty"`

	changes map[string]any
	errs    []*ExecutionError
}

// NewExecutionContext builds a context over already-isolated maps. Callers
// clone state before constructing one; the context itself never aliases the
// shared execution state.
func NewExecutionContext(executionID, workflowID string, variables map[string]any, results map[string]*StepExecutionResult) *ExecutionContext {
	if variables == nil {
		variables = make(map[string]any)
	}

	if results == nil {
		results = make(map[string]*StepExecutionResult)
	}

	return &ExecutionContext{
		ID:          executionID,
		WorkflowID:  workflowID,
		Variables:   variables,
		StepResults: results,
		Metadata:    make(map[string]any),
		changes:     make(map[string]any),
	}
}

// ForStep returns a child context scoped to one step, sharing the isolated
// variable view but tracking its own delta.
func (c *ExecutionContext) ForStep(stepID string) *ExecutionContext {
	child := NewExecutionContext(c.ID, c.WorkflowID, DeepCopyMap(c.Variables), c.StepResults)
	child.StepID = stepID
	child.Metadata = c.Metadata

	return child
}

// Variable reads a variable visible to this step.
func (c *ExecutionContext) Variable(key string) (any, bool) {
	v, ok := c.Variables[key]

	return v, ok
}

// SetVariable records a write. Later reads within the same step observe it;
// sibling steps in the same wave do not until the wave merge.
func (c *ExecutionContext) SetVariable(key string, value any) {
	c.Variables[key] = value
	c.changes[key] = value
}

// Changes returns the accumulated variable delta for the wave merge.
func (c *ExecutionContext) Changes() map[string]any {
	return c.changes
}

// RecordError accumulates a step-level error for the engine to collect.
func (c *ExecutionContext) RecordError(stepID string, kind string, err error) {
	c.errs = append(c.errs, &ExecutionError{
		StepID:    stepID,
		Message:   err.Error(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	})
}

// Errors returns the accumulated errors in occurrence order.
func (c *ExecutionContext) Errors() []*ExecutionError {
	return c.errs
}
