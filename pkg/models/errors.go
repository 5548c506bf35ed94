package models

import (
	"errors"
	"fmt"
)

// Engine-level error taxonomy. Structural errors surface synchronously at
// submit/start time and are never retried; the rest are runtime outcomes.
var (
	ErrInvalidStructure            = errors.New("invalid workflow structure")
	ErrCyclicDependency            = errors.New("cyclic dependency in step graph")
	ErrNoMatchingBranch            = errors.New("no branch matches condition outcome")
	ErrInvalidTransition           = errors.New("invalid execution state transition")
	ErrCompletionAlreadyInProgress = errors.New("an execution for this workflow is already in progress")
	ErrNotRunning                  = errors.New("execution is not running")
	ErrCancelled                   = errors.New("execution cancelled")
	ErrExecutionPending            = errors.New("execution has not reached a terminal state")
	ErrLoopLimitExceeded           = errors.New("loop iteration limit exceeded")
	ErrWorkflowNotExecutable       = errors.New("workflow status does not allow execution")
)

// StructureError wraps ErrInvalidStructure with the offending step path so
// validation failures point at the broken step.
func StructureError(path, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidStructure, path, detail)
}

// CycleError wraps ErrCyclicDependency with the step where the cycle closed.
func CycleError(stepID string) error {
	return fmt.Errorf("%w: detected at step %q", ErrCyclicDependency, stepID)
}

// TransitionError wraps ErrInvalidTransition with both endpoints.
func TransitionError(from, to ExecutionStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
