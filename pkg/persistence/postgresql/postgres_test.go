package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_locks", "snapshots", "executions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("eduflow_test"),
			postgres.WithUsername("eduflow"),
			postgres.WithPassword("eduflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func newTestWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		ID:     uuid.New().String(),
		Name:   name,
		Status: models.WorkflowStatusActive,
		Steps: []*models.WorkflowStep{
			{
				ID:     "greet",
				Name:   "Greet",
				Type:   models.StepTypeAction,
				Action: &models.ActionConfig{Type: "log", Configuration: map[string]any{"message": "hi"}},
			},
		},
		Version: 1,
	}
}

func newTestState(workflowID string) *models.ExecutionState {
	return &models.ExecutionState{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		Status:        models.ExecutionStatusRunning,
		Variables:     map[string]any{"course": "jung-101"},
		StepResults:   map[string]*models.StepExecutionResult{},
		ExecutedSteps: []string{},
		StartedAt:     time.Now().UTC(),
	}
}

func TestNewPersistence_MigrationsAndHealth(t *testing.T) {
	p, ctx := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := newTestWorkflow("Enrollment pipeline")
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Enrollment pipeline", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "greet", loaded.Steps[0].ID)

	_, err = repo.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestWorkflowRepository_ListFiltersByStatus(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.WorkflowRepository()

	active := newTestWorkflow("Active flow")
	archived := newTestWorkflow("Archived flow")
	archived.Status = models.WorkflowStatusArchived

	require.NoError(t, repo.Save(ctx, active))
	require.NoError(t, repo.Save(ctx, archived))

	status := models.WorkflowStatusActive
	result, err := repo.List(ctx, persistence.ListWorkflowsOptions{Status: &status})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, active.ID, result.Workflows[0].ID)
	assert.Equal(t, int64(1), result.TotalCount)

	_, err = repo.List(ctx, persistence.ListWorkflowsOptions{SortBy: "evil; --"})
	assert.True(t, persistence.IsInvalidSortField(err))
}

func TestExecutionRepository_CancelFlagSurvivesStaleSave(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ExecutionRepository()

	state := newTestState(uuid.New().String())
	require.NoError(t, repo.SaveState(ctx, state))
	require.NoError(t, repo.MarkCancelRequested(ctx, state.ID))

	stale := state.Clone()
	stale.CancelRequested = false
	stale.ExecutedSteps = []string{"greet"}
	require.NoError(t, repo.SaveState(ctx, stale))

	loaded, err := repo.GetState(ctx, state.ID)
	require.NoError(t, err)
	assert.True(t, loaded.CancelRequested)
	assert.Equal(t, []string{"greet"}, loaded.ExecutedSteps)
}

func TestSnapshotRepository_SequencesAndCompact(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.SnapshotRepository()

	state := newTestState(uuid.New().String())

	for i := 1; i <= 5; i++ {
		snap, err := models.NewSnapshot(state, i == 2)
		require.NoError(t, err)
		snap.ID = uuid.New().String()

		require.NoError(t, repo.Create(ctx, snap))
		assert.Equal(t, int64(i), snap.Sequence)
	}

	latest, err := repo.Latest(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest.Sequence)

	deleted, err := repo.Compact(ctx, state.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	history, err := repo.History(ctx, state.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, int64(2), history[0].Sequence)
	assert.True(t, history[0].Audit)
}

func TestLockRepository_SingleWinner(t *testing.T) {
	p, ctx := setupTestDB(t)
	locks := p.LockRepository()

	workflowID := uuid.New().String()

	ok, err := locks.Acquire(ctx, workflowID, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locks.Acquire(ctx, workflowID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-acquire by the holder refreshes.
	ok, err = locks.Acquire(ctx, workflowID, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, locks.Release(ctx, workflowID, "worker-a"))

	ok, err = locks.Acquire(ctx, workflowID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockRepository_ExpiredLockIsReleasable(t *testing.T) {
	p, ctx := setupTestDB(t)
	locks := p.LockRepository()

	workflowID := uuid.New().String()

	ok, err := locks.Acquire(ctx, workflowID, "worker-a", 1*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(1500 * time.Millisecond)

	released, err := locks.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	ok, err = locks.Acquire(ctx, workflowID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
