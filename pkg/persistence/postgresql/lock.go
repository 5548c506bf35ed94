package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LockRepository implements workflow locks on a plain table. Acquisition is
// a single upsert so two workers can never both win; the database clock is
// the only time source.
type LockRepository struct {
	db *sql.DB
}

// NewLockRepository creates a lock repository over an existing connection.
func NewLockRepository(db *sql.DB) *LockRepository {
	return &LockRepository{db: db}
}

func (r *LockRepository) Acquire(ctx context.Context, workflowID, ownerID string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO workflow_locks (workflow_id, owner_id, expires_at)
		VALUES ($1, $2, NOW() + ($3 * INTERVAL '1 second'))
		ON CONFLICT (workflow_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			expires_at = EXCLUDED.expires_at
		WHERE workflow_locks.owner_id = EXCLUDED.owner_id
		   OR workflow_locks.expires_at < NOW()
		RETURNING workflow_id
	`

	var acquired string

	err := r.db.QueryRowContext(ctx, query, workflowID, ownerID, ttl.Seconds()).Scan(&acquired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A live lock held by another owner. The upsert declined.
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire lock for workflow %s: %w", workflowID, err)
	}

	return true, nil
}

func (r *LockRepository) Release(ctx context.Context, workflowID, ownerID string) error {
	query := "DELETE FROM workflow_locks WHERE workflow_id = $1 AND owner_id = $2"

	_, err := r.db.ExecContext(ctx, query, workflowID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock for workflow %s: %w", workflowID, err)
	}

	return nil
}

func (r *LockRepository) ReleaseExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_locks WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(released), nil
}
