package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/memory"
	"github.com/dandpb/jung-edu-app-sub012/pkg/testutil"
)

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *recordingBus) published() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]eventbus.Event, len(b.events))
	copy(out, b.events)

	return out
}

func newTestJanitor(t *testing.T) (*Janitor, *memory.Persistence, *memory.LockRepository, *recordingBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	persist := memory.NewPersistence()
	locks := memory.NewLockRepository()
	bus := &recordingBus{}

	janitor := NewJanitor(logger, persist, locks, bus, 2, 5*time.Minute)

	return janitor, persist, locks, bus
}

func saveExecution(t *testing.T, persist *memory.Persistence, status models.ExecutionStatus, updatedAt time.Time) *models.ExecutionState {
	t.Helper()

	st := testutil.CreateTestExecutionState(status, updatedAt)

	require.NoError(t, persist.ExecutionRepository().SaveState(context.Background(), st))

	return st
}

func appendSnapshot(t *testing.T, persist *memory.Persistence, st *models.ExecutionState, audit bool) {
	t.Helper()

	snap, err := models.NewSnapshot(st, audit)
	require.NoError(t, err)

	snap.ID = uuid.New().String()

	require.NoError(t, persist.SnapshotRepository().Create(context.Background(), snap))
}

func TestSweepCompactsTerminalSnapshots(t *testing.T) {
	t.Parallel()

	janitor, persist, _, _ := newTestJanitor(t)
	ctx := context.Background()

	done := saveExecution(t, persist, models.ExecutionStatusCompleted, time.Now().UTC())

	// audit bracket around four working snapshots
	appendSnapshot(t, persist, done, true)
	for range 4 {
		appendSnapshot(t, persist, done, false)
	}

	appendSnapshot(t, persist, done, true)

	live := saveExecution(t, persist, models.ExecutionStatusRunning, time.Now().UTC())
	for range 4 {
		appendSnapshot(t, persist, live, false)
	}

	janitor.Sweep(ctx)

	history, err := persist.SnapshotRepository().History(ctx, done.ID)
	require.NoError(t, err)

	// audit snapshots survive; the rest is trimmed to the two most recent
	sequences := make([]int64, 0, len(history))
	for _, snap := range history {
		sequences = append(sequences, snap.Sequence)
	}

	assert.Equal(t, []int64{1, 5, 6}, sequences)

	// non-terminal executions are never compacted
	liveHistory, err := persist.SnapshotRepository().History(ctx, live.ID)
	require.NoError(t, err)
	assert.Len(t, liveHistory, 4)
}

func TestSweepRecoversStaleExecutions(t *testing.T) {
	t.Parallel()

	janitor, persist, _, bus := newTestJanitor(t)
	ctx := context.Background()

	now := time.Now().UTC()

	staleRunning := saveExecution(t, persist, models.ExecutionStatusRunning, now.Add(-10*time.Minute))
	staleInitialized := saveExecution(t, persist, models.ExecutionStatusInitialized, now.Add(-time.Hour))

	// fresh executions are still progressing, terminal ones are done for good
	saveExecution(t, persist, models.ExecutionStatusRunning, now)
	saveExecution(t, persist, models.ExecutionStatusFailed, now.Add(-time.Hour))
	saveExecution(t, persist, models.ExecutionStatusCompleted, now.Add(-time.Hour))

	janitor.Sweep(ctx)

	recovered := make(map[string]string)

	for _, event := range bus.published() {
		request, ok := event.(events.ResumeRequested)
		require.True(t, ok, "janitor should only publish resume requests")
		assert.Equal(t, events.ResumeReasonOrphanRecovery, request.Reason)

		recovered[request.ExecutionID] = request.WorkflowID
	}

	assert.Len(t, recovered, 2)
	assert.Equal(t, staleRunning.WorkflowID, recovered[staleRunning.ID])
	assert.Equal(t, staleInitialized.WorkflowID, recovered[staleInitialized.ID])
}

func TestSweepReleasesExpiredLocks(t *testing.T) {
	t.Parallel()

	janitor, _, locks, _ := newTestJanitor(t)
	ctx := context.Background()

	acquired, err := locks.Acquire(ctx, "wf-expired", "owner-a", -time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = locks.Acquire(ctx, "wf-live", "owner-b", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	janitor.Sweep(ctx)

	// the expired lock is gone, the live one still excludes other owners
	taken, err := locks.Acquire(ctx, "wf-live", "owner-c", time.Hour)
	require.NoError(t, err)
	assert.False(t, taken)

	released, err := locks.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, released, "sweep should already have released the expired lock")
}
