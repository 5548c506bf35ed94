package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// SnapshotRepository handles snapshot database operations.
type SnapshotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Create appends the snapshot, assigning the next sequence number for the
// execution within the insert itself. Concurrent inserts for the same
// execution are rejected by the primary key; the engine serializes snapshot
// writes per execution through the workflow lock.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.ExecutionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, 0, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	query := `
		INSERT INTO snapshots (execution_id, sequence, audit, data, created_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4
		FROM snapshots
		WHERE execution_id = $1
		RETURNING sequence
	`

	err = r.db.QueryRowContext(ctx, query,
		snapshot.ExecutionID,
		snapshot.Audit,
		data,
		snapshot.CreatedAt,
	).Scan(&snapshot.Sequence)
	if err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, 0, fmt.Errorf("failed to insert snapshot: %w", err))
	}

	return nil
}

func (r *SnapshotRepository) Latest(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	query := "SELECT data, sequence FROM snapshots WHERE execution_id = $1 ORDER BY sequence DESC LIMIT 1"

	snapshot, err := r.queryOne(ctx, query, executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSnapshotError("Latest", executionID, 0, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("Latest", executionID, 0, err)
	}

	return snapshot, nil
}

func (r *SnapshotRepository) GetBySequence(ctx context.Context, executionID string, sequence int64) (*models.ExecutionSnapshot, error) {
	query := "SELECT data, sequence FROM snapshots WHERE execution_id = $1 AND sequence = $2"

	snapshot, err := r.queryOne(ctx, query, executionID, sequence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSnapshotError("GetBySequence", executionID, sequence, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("GetBySequence", executionID, sequence, err)
	}

	return snapshot, nil
}

func (r *SnapshotRepository) History(ctx context.Context, executionID string) ([]*models.ExecutionSnapshot, error) {
	query := "SELECT data, sequence FROM snapshots WHERE execution_id = $1 ORDER BY sequence ASC"

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewSnapshotError("History", executionID, 0, fmt.Errorf("failed to query snapshots: %w", err))
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	history := make([]*models.ExecutionSnapshot, 0)

	for rows.Next() {
		var (
			data     []byte
			sequence int64
		)

		if err := rows.Scan(&data, &sequence); err != nil {
			return nil, persistence.NewSnapshotError("History", executionID, 0, fmt.Errorf("failed to scan snapshot: %w", err))
		}

		snapshot, err := r.decode(data, sequence)
		if err != nil {
			return nil, persistence.NewSnapshotError("History", executionID, sequence, err)
		}

		history = append(history, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewSnapshotError("History", executionID, 0, fmt.Errorf("error iterating snapshots: %w", err))
	}

	return history, nil
}

// Compact deletes non-audit snapshots outside the newest keepLatest.
func (r *SnapshotRepository) Compact(ctx context.Context, executionID string, keepLatest int) (int, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}

	query := `
		DELETE FROM snapshots
		WHERE execution_id = $1
		  AND audit = FALSE
		  AND sequence NOT IN (
			SELECT sequence FROM snapshots
			WHERE execution_id = $1
			ORDER BY sequence DESC
			LIMIT $2
		  )
	`

	result, err := r.db.ExecContext(ctx, query, executionID, keepLatest)
	if err != nil {
		return 0, persistence.NewSnapshotError("Compact", executionID, 0, fmt.Errorf("failed to compact snapshots: %w", err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewSnapshotError("Compact", executionID, 0, fmt.Errorf("failed to read affected rows: %w", err))
	}

	return int(deleted), nil
}

func (r *SnapshotRepository) DeleteAll(ctx context.Context, executionID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM snapshots WHERE execution_id = $1", executionID)
	if err != nil {
		return persistence.NewSnapshotError("DeleteAll", executionID, 0, fmt.Errorf("failed to delete snapshots: %w", err))
	}

	return nil
}

func (r *SnapshotRepository) queryOne(ctx context.Context, query string, args ...any) (*models.ExecutionSnapshot, error) {
	var (
		data     []byte
		sequence int64
	)

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data, &sequence); err != nil {
		return nil, err
	}

	return r.decode(data, sequence)
}

// decode unmarshals and integrity-checks a stored snapshot. The sequence
// column overrides the document field: the document was marshaled before the
// insert assigned the sequence.
func (r *SnapshotRepository) decode(data []byte, sequence int64) (*models.ExecutionSnapshot, error) {
	var snapshot models.ExecutionSnapshot

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", persistence.ErrCorruptSnapshot, err)
	}

	snapshot.Sequence = sequence

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", persistence.ErrCorruptSnapshot, err)
	}

	return &snapshot, nil
}
