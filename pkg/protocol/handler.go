// Package protocol defines the interfaces and contracts for pluggable step handlers.
package protocol

import (
	"context"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// StepHandler executes one action step against the execution context.
// Handlers render their own templated config fields; retry and circuit
// breaking happen outside, in the engine.
type StepHandler interface {
	Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.StepExecutionResult, error)
}

// StepHandlerFactory creates handler instances and provides metadata about
// the action type.
type StepHandlerFactory interface {
	// Create creates a handler instance with the given configuration
	Create(config map[string]any) (StepHandler, error)

	// ID returns the unique identifier for this action type
	ID() string

	// Name returns the human-readable name for this action type
	Name() string

	// Description returns a description of what this handler does
	Description() string

	// Schema returns the JSON schema for configuring this handler
	Schema() map[string]any
}
