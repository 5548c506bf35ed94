package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// ExecutionRepository stores execution state as JSON files, one per execution.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionRepository creates a new execution state repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(executionID string) string {
	return filepath.Join(er.dir(), executionID+".json")
}

// SaveState creates or replaces the persisted state. An already-persisted
// cancel request survives the write even when the incoming state predates it.
func (er *ExecutionRepository) SaveState(_ context.Context, state *models.ExecutionState) error {
	if err := validateID(state.ID); err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	toSave := state.Clone()

	existing, err := er.read(state.ID)
	if err == nil && existing.CancelRequested {
		toSave.CancelRequested = true
	}

	if err := os.MkdirAll(er.dir(), dirPerm); err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, fmt.Errorf("failed to create executions directory: %w", err))
	}

	data, err := json.Marshal(toSave)
	if err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, fmt.Errorf("failed to marshal state: %w", err))
	}

	if err := os.WriteFile(er.path(state.ID), data, filePerm); err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, fmt.Errorf("failed to write state: %w", err))
	}

	return nil
}

// GetState returns the execution state or ErrExecutionNotFound.
func (er *ExecutionRepository) GetState(_ context.Context, executionID string) (*models.ExecutionState, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewExecutionStateError("GetState", executionID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	return er.read(executionID)
}

func (er *ExecutionRepository) read(executionID string) (*models.ExecutionState, error) {
	data, err := os.ReadFile(er.path(executionID)) // #nosec G304 -- id is validated against traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionStateError("GetState", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionStateError("GetState", executionID, err)
	}

	var state models.ExecutionState

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewExecutionStateError("GetState", executionID, fmt.Errorf("failed to unmarshal state: %w", err))
	}

	return &state, nil
}

// ListByWorkflow returns all executions of one workflow.
func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error) {
	return er.list(ctx, func(state *models.ExecutionState) bool {
		return state.WorkflowID == workflowID
	})
}

// ListByStatus returns all executions currently in the given status.
func (er *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionState, error) {
	return er.list(ctx, func(state *models.ExecutionState) bool {
		return state.Status == status
	})
}

func (er *ExecutionRepository) list(_ context.Context, keep func(*models.ExecutionState) bool) ([]*models.ExecutionState, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.dir()); os.IsNotExist(err) {
		return []*models.ExecutionState{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(er.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	states := make([]*models.ExecutionState, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		state, err := er.read(file[:len(file)-len(".json")])
		if err != nil {
			return nil, err
		}

		if keep(state) {
			states = append(states, state)
		}
	}

	return states, nil
}

// MarkCancelRequested sets the cancel flag on a persisted execution.
func (er *ExecutionRepository) MarkCancelRequested(_ context.Context, executionID string) error {
	if err := validateID(executionID); err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	state, err := er.read(executionID)
	if err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, persistence.ErrExecutionNotFound)
	}

	state.CancelRequested = true

	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, fmt.Errorf("failed to marshal state: %w", err))
	}

	if err := os.WriteFile(er.path(executionID), data, filePerm); err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, fmt.Errorf("failed to write state: %w", err))
	}

	return nil
}

// DeleteState removes an execution's state.
func (er *ExecutionRepository) DeleteState(_ context.Context, executionID string) error {
	if err := validateID(executionID); err != nil {
		return persistence.NewExecutionStateError("DeleteState", executionID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if err := os.Remove(er.path(executionID)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewExecutionStateError("DeleteState", executionID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionStateError("DeleteState", executionID, err)
	}

	return nil
}
