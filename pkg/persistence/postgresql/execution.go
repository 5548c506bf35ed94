package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// ExecutionRepository handles execution state database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// SaveState upserts the state document. The cancel_requested column is OR'd
// with the incoming value so a persisted cancel survives a save from an
// engine holding a stale in-memory copy.
func (r *ExecutionRepository) SaveState(ctx context.Context, state *models.ExecutionState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, fmt.Errorf("failed to marshal state: %w", err))
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, cancel_requested, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cancel_requested = executions.cancel_requested OR EXCLUDED.cancel_requested,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		state.ID,
		state.WorkflowID,
		state.Status,
		state.CancelRequested,
		data,
		state.UpdatedAt,
	)
	if err != nil {
		return persistence.NewExecutionStateError("SaveState", state.ID, fmt.Errorf("failed to save state: %w", err))
	}

	return nil
}

// GetState loads the state document. The cancel_requested column overrides
// the document field because the column is the authoritative value.
func (r *ExecutionRepository) GetState(ctx context.Context, executionID string) (*models.ExecutionState, error) {
	var (
		data            []byte
		cancelRequested bool
	)

	query := "SELECT data, cancel_requested FROM executions WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, executionID).Scan(&data, &cancelRequested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionStateError("GetState", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionStateError("GetState", executionID, fmt.Errorf("failed to query state: %w", err))
	}

	var state models.ExecutionState

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewExecutionStateError("GetState", executionID, fmt.Errorf("failed to unmarshal state: %w", err))
	}

	state.CancelRequested = state.CancelRequested || cancelRequested

	return &state, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error) {
	query := "SELECT data, cancel_requested FROM executions WHERE workflow_id = $1 ORDER BY updated_at DESC"

	return r.list(ctx, query, workflowID)
}

func (r *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionState, error) {
	query := "SELECT data, cancel_requested FROM executions WHERE status = $1 ORDER BY updated_at DESC"

	return r.list(ctx, query, string(status))
}

func (r *ExecutionRepository) list(ctx context.Context, query string, arg any) ([]*models.ExecutionState, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	states := make([]*models.ExecutionState, 0)

	for rows.Next() {
		var (
			data            []byte
			cancelRequested bool
		)

		if err := rows.Scan(&data, &cancelRequested); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var state models.ExecutionState

		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		state.CancelRequested = state.CancelRequested || cancelRequested
		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return states, nil
}

func (r *ExecutionRepository) MarkCancelRequested(ctx context.Context, executionID string) error {
	query := "UPDATE executions SET cancel_requested = TRUE, updated_at = NOW() WHERE id = $1"

	result, err := r.db.ExecContext(ctx, query, executionID)
	if err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, fmt.Errorf("failed to mark cancel: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewExecutionStateError("MarkCancelRequested", executionID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) DeleteState(ctx context.Context, executionID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", executionID)
	if err != nil {
		return persistence.NewExecutionStateError("DeleteState", executionID, fmt.Errorf("failed to delete state: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionStateError("DeleteState", executionID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		return persistence.NewExecutionStateError("DeleteState", executionID, persistence.ErrExecutionNotFound)
	}

	return nil
}
