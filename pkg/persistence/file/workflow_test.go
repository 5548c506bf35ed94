package file

import (
	"context"
	"testing"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(id, name string, status models.WorkflowStatus, createdAt time.Time) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   name,
		Status: status,
		Steps: []*models.WorkflowStep{
			{
				ID:     "greet",
				Name:   "Greet",
				Type:   models.StepTypeAction,
				Action: &models.ActionConfig{Type: "log", Configuration: map[string]any{"message": "hi"}},
			},
		},
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestWorkflowRepository_SaveAndGetByID(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())
	ctx := context.Background()

	workflow := testWorkflow("wf-1", "Enrollment pipeline", models.WorkflowStatusActive, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Enrollment pipeline", loaded.Name)
	assert.Equal(t, models.WorkflowStatusActive, loaded.Status)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "greet", loaded.Steps[0].ID)
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_GetByID_RejectsPathTraversal(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	for _, id := range []string{"", "..", "../../etc/passwd", "a/b", `a\b`} {
		_, err := repo.GetByID(context.Background(), id)
		require.Error(t, err, "id %q should be rejected", id)
	}
}

func TestWorkflowRepository_Delete(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testWorkflow("wf-1", "Doomed flow", models.WorkflowStatusDraft, time.Now().UTC())))
	require.NoError(t, repo.Delete(ctx, "wf-1"))

	_, err := repo.GetByID(ctx, "wf-1")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	err = repo.Delete(ctx, "wf-1")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestWorkflowRepository_List_EmptyDirectory(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	result, err := repo.List(context.Background(), persistence.ListWorkflowsOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Workflows)
	assert.Zero(t, result.TotalCount)
	assert.False(t, result.HasNextPage)
}

func TestWorkflowRepository_List_FiltersAndPaginates(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-a", "Alpha", models.WorkflowStatusActive, base)))
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-b", "Bravo", models.WorkflowStatusActive, base.Add(time.Hour))))
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-c", "Charlie", models.WorkflowStatusArchived, base.Add(2*time.Hour))))

	active := models.WorkflowStatusActive
	result, err := repo.List(ctx, persistence.ListWorkflowsOptions{Status: &active, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 2)
	assert.Equal(t, "Alpha", result.Workflows[0].Name)
	assert.Equal(t, "Bravo", result.Workflows[1].Name)
	assert.Equal(t, int64(2), result.TotalCount)

	page, err := repo.List(ctx, persistence.ListWorkflowsOptions{SortBy: "created_at", SortOrder: "asc", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Workflows, 2)
	assert.Equal(t, "wf-a", page.Workflows[0].ID)
	assert.True(t, page.HasNextPage)

	rest, err := repo.List(ctx, persistence.ListWorkflowsOptions{SortBy: "created_at", SortOrder: "asc", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest.Workflows, 1)
	assert.Equal(t, "wf-c", rest.Workflows[0].ID)
	assert.False(t, rest.HasNextPage)
}

func TestWorkflowRepository_List_SortOrders(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-a", "Alpha", models.WorkflowStatusActive, base)))
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-b", "Bravo", models.WorkflowStatusActive, base.Add(time.Hour))))

	desc, err := repo.List(ctx, persistence.ListWorkflowsOptions{SortBy: "created_at", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, desc.Workflows, 2)
	assert.Equal(t, "wf-b", desc.Workflows[0].ID)

	byName, err := repo.List(ctx, persistence.ListWorkflowsOptions{SortBy: "name", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Equal(t, "Bravo", byName.Workflows[0].Name)
}

func TestWorkflowRepository_List_InvalidSortField(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	tests := []struct {
		name    string
		sortBy  string
		wantErr bool
	}{
		{name: "unknown column", sortBy: "unknown_column", wantErr: true},
		{name: "injection attempt", sortBy: "name; DROP TABLE workflows; --", wantErr: true},
		{name: "empty defaults to created_at", sortBy: ""},
		{name: "name is valid", sortBy: "name"},
		{name: "updated_at is valid", sortBy: "updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.List(context.Background(), persistence.ListWorkflowsOptions{SortBy: tt.sortBy})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, persistence.IsInvalidSortField(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
