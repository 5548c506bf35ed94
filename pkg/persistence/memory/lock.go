package memory

import (
	"context"
	"sync"
	"time"
)

type lockEntry struct {
	ownerID   string
	expiresAt time.Time
}

// LockRepository implements persistence.LockRepository with a process-local
// map. Locks held by crashed goroutines expire through their TTL.
type LockRepository struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

// NewLockRepository creates an empty in-memory lock repository.
func NewLockRepository() *LockRepository {
	return &LockRepository{locks: make(map[string]lockEntry)}
}

func (r *LockRepository) Acquire(_ context.Context, workflowID, ownerID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	entry, held := r.locks[workflowID]
	if held && entry.ownerID != ownerID && entry.expiresAt.After(now) {
		return false, nil
	}

	r.locks[workflowID] = lockEntry{ownerID: ownerID, expiresAt: now.Add(ttl)}

	return true, nil
}

func (r *LockRepository) Release(_ context.Context, workflowID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, held := r.locks[workflowID]; held && entry.ownerID == ownerID {
		delete(r.locks, workflowID)
	}

	return nil
}

func (r *LockRepository) ReleaseExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	released := 0

	for workflowID, entry := range r.locks {
		if entry.expiresAt.Before(now) {
			delete(r.locks, workflowID)

			released++
		}
	}

	return released, nil
}

func (r *LockRepository) Close(_ context.Context) error {
	return nil
}
