// Package memory provides in-memory persistence for tests and local runs.
// Everything is lost on process exit.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// Persistence implements persistence.Persistence over process-local maps.
// All reads and writes deep-copy so callers never share map internals.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.ExecutionState
	snapshots  map[string][]*models.ExecutionSnapshot
}

// NewPersistence creates an empty in-memory persistence.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.ExecutionState),
		snapshots:  make(map[string][]*models.ExecutionSnapshot),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p
}

func (p *Persistence) SnapshotRepository() persistence.SnapshotRepository {
	return p
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// Workflow repository

func (p *Persistence) Save(_ context.Context, workflow *models.Workflow) error {
	clone, err := cloneWorkflow(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = clone

	return nil
}

func (p *Persistence) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow)
}

func (p *Persistence) List(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if !persistence.ValidSortFields[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	p.mu.RLock()

	filtered := make([]*models.Workflow, 0, len(p.workflows))

	for _, workflow := range p.workflows {
		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		clone, err := cloneWorkflow(workflow)
		if err != nil {
			p.mu.RUnlock()

			return nil, err
		}

		filtered = append(filtered, clone)
	}

	p.mu.RUnlock()

	sortOrder := opts.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	sort.Slice(filtered, func(i, j int) bool {
		var less bool

		switch opts.SortBy {
		case "updated_at":
			less = filtered[i].UpdatedAt.Before(filtered[j].UpdatedAt)
		case "name":
			less = filtered[i].Name < filtered[j].Name
		default:
			less = filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	totalCount := int64(len(filtered))

	start := opts.Offset
	if start >= len(filtered) {
		return &persistence.WorkflowListResult{Workflows: []*models.Workflow{}, TotalCount: totalCount}, nil
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &persistence.WorkflowListResult{
		Workflows:   filtered[start:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}, nil
}

func (p *Persistence) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(p.workflows, id)

	return nil
}

// Execution repository

func (p *Persistence) SaveState(_ context.Context, state *models.ExecutionState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	toSave := state.Clone()

	if existing, ok := p.executions[state.ID]; ok && existing.CancelRequested {
		toSave.CancelRequested = true
	}

	p.executions[state.ID] = toSave

	return nil
}

func (p *Persistence) GetState(_ context.Context, executionID string) (*models.ExecutionState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, ok := p.executions[executionID]
	if !ok {
		return nil, persistence.NewExecutionStateError("GetState", executionID, persistence.ErrExecutionNotFound)
	}

	return state.Clone(), nil
}

func (p *Persistence) ListByWorkflow(_ context.Context, workflowID string) ([]*models.ExecutionState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]*models.ExecutionState, 0)

	for _, state := range p.executions {
		if state.WorkflowID == workflowID {
			states = append(states, state.Clone())
		}
	}

	return states, nil
}

func (p *Persistence) ListByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.ExecutionState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]*models.ExecutionState, 0)

	for _, state := range p.executions {
		if state.Status == status {
			states = append(states, state.Clone())
		}
	}

	return states, nil
}

func (p *Persistence) MarkCancelRequested(_ context.Context, executionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.executions[executionID]
	if !ok {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, persistence.ErrExecutionNotFound)
	}

	state.CancelRequested = true

	return nil
}

func (p *Persistence) DeleteState(_ context.Context, executionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.executions[executionID]; !ok {
		return persistence.NewExecutionStateError("DeleteState", executionID, persistence.ErrExecutionNotFound)
	}

	delete(p.executions, executionID)

	return nil
}

// Snapshot repository

func (p *Persistence) Create(_ context.Context, snapshot *models.ExecutionSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.snapshots[snapshot.ExecutionID]

	snapshot.Sequence = 1
	if len(log) > 0 {
		snapshot.Sequence = log[len(log)-1].Sequence + 1
	}

	p.snapshots[snapshot.ExecutionID] = append(log, cloneSnapshot(snapshot))

	return nil
}

func (p *Persistence) Latest(_ context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	log := p.snapshots[executionID]
	if len(log) == 0 {
		return nil, persistence.NewSnapshotError("Latest", executionID, 0, persistence.ErrSnapshotNotFound)
	}

	return p.checked(cloneSnapshot(log[len(log)-1]))
}

func (p *Persistence) GetBySequence(_ context.Context, executionID string, sequence int64) (*models.ExecutionSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, snapshot := range p.snapshots[executionID] {
		if snapshot.Sequence == sequence {
			return p.checked(cloneSnapshot(snapshot))
		}
	}

	return nil, persistence.NewSnapshotError("GetBySequence", executionID, sequence, persistence.ErrSnapshotNotFound)
}

func (p *Persistence) History(_ context.Context, executionID string) ([]*models.ExecutionSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	log := p.snapshots[executionID]

	history := make([]*models.ExecutionSnapshot, 0, len(log))
	for _, snapshot := range log {
		history = append(history, cloneSnapshot(snapshot))
	}

	return history, nil
}

func (p *Persistence) Compact(_ context.Context, executionID string, keepLatest int) (int, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.snapshots[executionID]
	if len(log) <= keepLatest {
		return 0, nil
	}

	kept := make([]*models.ExecutionSnapshot, 0, keepLatest)
	deleted := 0

	for i, snapshot := range log {
		if i >= len(log)-keepLatest || snapshot.Audit {
			kept = append(kept, snapshot)

			continue
		}

		deleted++
	}

	p.snapshots[executionID] = kept

	return deleted, nil
}

func (p *Persistence) DeleteAll(_ context.Context, executionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.snapshots, executionID)

	return nil
}

func (p *Persistence) checked(snapshot *models.ExecutionSnapshot) (*models.ExecutionSnapshot, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, persistence.NewSnapshotError("Get", snapshot.ExecutionID, snapshot.Sequence,
			fmt.Errorf("%w: %w", persistence.ErrCorruptSnapshot, err))
	}

	return snapshot, nil
}

func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	data, err := json.Marshal(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to clone workflow: %w", err)
	}

	var clone models.Workflow

	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone workflow: %w", err)
	}

	return &clone, nil
}

func cloneSnapshot(snapshot *models.ExecutionSnapshot) *models.ExecutionSnapshot {
	clone := *snapshot
	if snapshot.State != nil {
		clone.State = snapshot.State.Clone()
	}

	return &clone
}
