package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepository_AcquireAndConflict(t *testing.T) {
	locks := NewLockRepository()
	ctx := context.Background()

	ok, err := locks.Acquire(ctx, "wf-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locks.Acquire(ctx, "wf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second owner must not steal a live lock")

	ok, err = locks.Acquire(ctx, "wf-2", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per workflow")
}

func TestLockRepository_ReentrantAcquireRefreshesTTL(t *testing.T) {
	locks := NewLockRepository()
	ctx := context.Background()

	ok, err := locks.Acquire(ctx, "wf-1", "worker-a", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locks.Acquire(ctx, "wf-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the holder may re-acquire its own lock")

	time.Sleep(60 * time.Millisecond)

	// Without the refresh the original 30ms TTL would have expired by now.
	ok, err = locks.Acquire(ctx, "wf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockRepository_ExpiredLockCanBeTaken(t *testing.T) {
	locks := NewLockRepository()
	ctx := context.Background()

	ok, err := locks.Acquire(ctx, "wf-1", "worker-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	ok, err = locks.Acquire(ctx, "wf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lock is up for grabs")
}

func TestLockRepository_ReleaseIsOwnerChecked(t *testing.T) {
	locks := NewLockRepository()
	ctx := context.Background()

	ok, err := locks.Acquire(ctx, "wf-1", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locks.Release(ctx, "wf-1", "worker-b"))

	ok, err = locks.Acquire(ctx, "wf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a stranger's release must not free the lock")

	require.NoError(t, locks.Release(ctx, "wf-1", "worker-a"))

	ok, err = locks.Acquire(ctx, "wf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockRepository_ReleaseExpired(t *testing.T) {
	locks := NewLockRepository()
	ctx := context.Background()

	ok, err := locks.Acquire(ctx, "wf-1", "worker-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locks.Acquire(ctx, "wf-2", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	released, err := locks.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	ok, err = locks.Acquire(ctx, "wf-2", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live locks survive the sweep")
}
