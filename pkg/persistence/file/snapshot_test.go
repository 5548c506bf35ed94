package file

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSnapshot(t *testing.T, state *models.ExecutionState, audit bool) *models.ExecutionSnapshot {
	t.Helper()

	snap, err := models.NewSnapshot(state, audit)
	require.NoError(t, err)

	return snap
}

func TestSnapshotRepository_CreateAssignsSequences(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()
	state := testState("exec-1", "wf-1")

	for want := int64(1); want <= 3; want++ {
		snap := mustSnapshot(t, state, false)
		require.NoError(t, repo.Create(ctx, snap))
		assert.Equal(t, want, snap.Sequence)
	}
}

func TestSnapshotRepository_Latest(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()

	first := testState("exec-1", "wf-1")
	require.NoError(t, repo.Create(ctx, mustSnapshot(t, first, false)))

	second := testState("exec-1", "wf-1")
	second.ExecutedSteps = []string{"fetch", "notify"}
	require.NoError(t, repo.Create(ctx, mustSnapshot(t, second, false)))

	latest, err := repo.Latest(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Sequence)
	assert.Equal(t, []string{"fetch", "notify"}, latest.State.ExecutedSteps)
}

func TestSnapshotRepository_Latest_NotFound(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())

	_, err := repo.Latest(context.Background(), "exec-none")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrSnapshotNotFound)
	assert.True(t, persistence.IsSnapshotNotFound(err))
}

func TestSnapshotRepository_GetBySequence(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()
	state := testState("exec-1", "wf-1")

	require.NoError(t, repo.Create(ctx, mustSnapshot(t, state, false)))
	require.NoError(t, repo.Create(ctx, mustSnapshot(t, state, false)))

	snap, err := repo.GetBySequence(ctx, "exec-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Sequence)

	_, err = repo.GetBySequence(ctx, "exec-1", 99)
	assert.ErrorIs(t, err, persistence.ErrSnapshotNotFound)
}

func TestSnapshotRepository_History(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()
	state := testState("exec-1", "wf-1")

	for range 3 {
		require.NoError(t, repo.Create(ctx, mustSnapshot(t, state, false)))
	}

	history, err := repo.History(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	for i, snap := range history {
		assert.Equal(t, int64(i+1), snap.Sequence)
	}
}

func TestSnapshotRepository_Compact_KeepsLatestAndAudit(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()
	state := testState("exec-1", "wf-1")

	// Sequences 1..5, with 2 flagged as an audit snapshot.
	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, mustSnapshot(t, state, i == 2)))
	}

	deleted, err := repo.Compact(ctx, "exec-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	history, err := repo.History(ctx, "exec-1")
	require.NoError(t, err)

	remaining := make([]int64, 0, len(history))
	for _, snap := range history {
		remaining = append(remaining, snap.Sequence)
	}

	assert.Equal(t, []int64{2, 4, 5}, remaining)
}

func TestSnapshotRepository_Compact_NothingToDo(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, mustSnapshot(t, testState("exec-1", "wf-1"), false)))

	deleted, err := repo.Compact(ctx, "exec-1", 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestSnapshotRepository_DetectsTamperedSnapshot(t *testing.T) {
	root := t.TempDir()
	repo := NewSnapshotRepository(root)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, mustSnapshot(t, testState("exec-1", "wf-1"), false)))

	// Flip a state value on disk without refreshing the checksum.
	path := filepath.Join(root, "snapshots", "exec-1", fmt.Sprintf(snapshotFileFormat, int64(1)))
	data, err := os.ReadFile(path) // #nosec G304 -- test-owned temp path
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte("jung-101"), []byte("jung-999"), 1)
	require.NotEqual(t, data, tampered, "fixture must contain the marker value")
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, err = repo.Latest(ctx, "exec-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrCorruptSnapshot)
	assert.True(t, persistence.IsCorruptSnapshot(err))
}

func TestSnapshotRepository_DeleteAll(t *testing.T) {
	repo := NewSnapshotRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, mustSnapshot(t, testState("exec-1", "wf-1"), false)))
	require.NoError(t, repo.DeleteAll(ctx, "exec-1"))

	_, err := repo.Latest(ctx, "exec-1")
	assert.ErrorIs(t, err, persistence.ErrSnapshotNotFound)
}
