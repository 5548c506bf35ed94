// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrExecutionNotFound indicates no execution state exists for the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSnapshotNotFound indicates no snapshot exists for the requested execution or sequence.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCorruptSnapshot indicates a stored snapshot failed integrity validation.
	ErrCorruptSnapshot = errors.New("snapshot is corrupt")

	// ErrInvalidSortField indicates a list request named a sort field that is
	// not allowed. Backends validate rather than interpolate.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// ValidSortFields enumerates the sort fields list operations accept. An empty
// field sorts by created_at.
var ValidSortFields = map[string]bool{
	"":           true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

// WorkflowError wraps workflow-related errors with operation context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionStateError wraps execution-state errors with operation context.
type ExecutionStateError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID
	Err         error  // Underlying error
}

func (e *ExecutionStateError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionStateError) Unwrap() error {
	return e.Err
}

func (e *ExecutionStateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionStateError creates a new execution-state error with context.
func NewExecutionStateError(op, executionID string, err error) *ExecutionStateError {
	return &ExecutionStateError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// SnapshotError wraps snapshot errors with operation context.
type SnapshotError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID
	Sequence    int64  // Snapshot sequence if applicable
	Err         error  // Underlying error
}

func (e *SnapshotError) Error() string {
	if e.Sequence > 0 {
		return fmt.Sprintf("%s operation failed for snapshot %d of execution %s: %v", e.Op, e.Sequence, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for snapshots of execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSnapshotError creates a new snapshot error with context.
func NewSnapshotError(op, executionID string, sequence int64, err error) *SnapshotError {
	return &SnapshotError{
		Op:          op,
		ExecutionID: executionID,
		Sequence:    sequence,
		Err:         err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsSnapshotNotFound checks if an error indicates a snapshot was not found.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsCorruptSnapshot checks if an error indicates snapshot integrity failure.
func IsCorruptSnapshot(err error) bool {
	return errors.Is(err, ErrCorruptSnapshot)
}

// IsInvalidSortField checks if an error indicates an invalid sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}
