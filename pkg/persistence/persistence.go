// Package persistence provides the data storage abstraction for workflows,
// execution state, snapshots, and execution locks.
package persistence

import (
	"context"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	Status    *models.WorkflowStatus
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// WorkflowListResult carries one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	// Save creates or replaces a workflow definition.
	Save(ctx context.Context, workflow *models.Workflow) error

	// GetByID returns the workflow or ErrWorkflowNotFound.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// List returns paginated and filtered workflows.
	List(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)

	// Delete removes a workflow definition.
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores the live state of executions.
type ExecutionRepository interface {
	// SaveState creates or replaces the state of an execution. A cancel
	// request that is already persisted survives the write: cancellation is
	// level-triggered and must not be lost to a concurrent state save.
	SaveState(ctx context.Context, state *models.ExecutionState) error

	// GetState returns the execution state or ErrExecutionNotFound.
	GetState(ctx context.Context, executionID string) (*models.ExecutionState, error)

	// ListByWorkflow returns all executions of one workflow.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error)

	// ListByStatus returns all executions currently in the given status.
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionState, error)

	// MarkCancelRequested sets the cancel flag on a persisted execution.
	MarkCancelRequested(ctx context.Context, executionID string) error

	// DeleteState removes an execution's state.
	DeleteState(ctx context.Context, executionID string) error
}

// SnapshotRepository stores the append-only snapshot log per execution.
type SnapshotRepository interface {
	// Create appends a snapshot, assigning the next sequence number for its
	// execution before persisting.
	Create(ctx context.Context, snapshot *models.ExecutionSnapshot) error

	// Latest returns the highest-sequence snapshot or ErrSnapshotNotFound.
	Latest(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error)

	// GetBySequence returns one snapshot or ErrSnapshotNotFound.
	GetBySequence(ctx context.Context, executionID string, sequence int64) (*models.ExecutionSnapshot, error)

	// History returns all snapshots of an execution in sequence order.
	History(ctx context.Context, executionID string) ([]*models.ExecutionSnapshot, error)

	// Compact removes old snapshots, keeping the keepLatest most recent ones.
	// Audit snapshots are never removed. Returns how many were deleted.
	Compact(ctx context.Context, executionID string, keepLatest int) (int, error)

	// DeleteAll removes every snapshot of an execution.
	DeleteAll(ctx context.Context, executionID string) error
}

// LockRepository serializes execution per workflow. At most one live owner
// per workflow ID; locks expire after their TTL so crashed workers cannot
// hold a workflow hostage.
type LockRepository interface {
	// Acquire attempts to take the workflow lock for ownerID. It returns
	// true when the lock was taken or is already held by the same owner
	// (the TTL is refreshed), and false when another owner holds it.
	Acquire(ctx context.Context, workflowID, ownerID string, ttl time.Duration) (bool, error)

	// Release frees the lock if ownerID still holds it.
	Release(ctx context.Context, workflowID, ownerID string) error

	// ReleaseExpired frees all locks past their TTL and returns how many.
	// Backends with native expiry may have nothing to do here.
	ReleaseExpired(ctx context.Context) (int, error)
}

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	SnapshotRepository() SnapshotRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
