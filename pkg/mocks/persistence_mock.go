package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of the
// persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.WorkflowListResult), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of the
// persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveState(ctx context.Context, state *models.ExecutionState) error {
	args := m.Called(ctx, state)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetState(ctx context.Context, executionID string) (*models.ExecutionState, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionState), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionState, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionState), args.Error(1)
}

func (m *MockExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionState, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionState), args.Error(1)
}

func (m *MockExecutionRepository) MarkCancelRequested(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

func (m *MockExecutionRepository) DeleteState(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of the
// persistence.SnapshotRepository interface.
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snapshot *models.ExecutionSnapshot) error {
	args := m.Called(ctx, snapshot)

	return args.Error(0)
}

func (m *MockSnapshotRepository) Latest(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetBySequence(ctx context.Context, executionID string, sequence int64) (*models.ExecutionSnapshot, error) {
	args := m.Called(ctx, executionID, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) History(ctx context.Context, executionID string) ([]*models.ExecutionSnapshot, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Compact(ctx context.Context, executionID string, keepLatest int) (int, error) {
	args := m.Called(ctx, executionID, keepLatest)

	return args.Int(0), args.Error(1)
}

func (m *MockSnapshotRepository) DeleteAll(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

// MockLockRepository is a mock implementation of the
// persistence.LockRepository interface.
type MockLockRepository struct {
	mock.Mock
}

func (m *MockLockRepository) Acquire(ctx context.Context, workflowID, ownerID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, workflowID, ownerID, ttl)

	return args.Bool(0), args.Error(1)
}

func (m *MockLockRepository) Release(ctx context.Context, workflowID, ownerID string) error {
	args := m.Called(ctx, workflowID, ownerID)

	return args.Error(0)
}

func (m *MockLockRepository) ReleaseExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

// MockPersistence is a mock implementation of the persistence.Persistence
// interface, bundling mock repositories.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
	snapshotRepo  *MockSnapshotRepository
}

// NewMockPersistence creates a MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
		snapshotRepo:  &MockSnapshotRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository
// for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockExecutionRepository returns the underlying mock execution repository
// for setting up expectations.
func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

// GetMockSnapshotRepository returns the underlying mock snapshot repository
// for setting up expectations.
func (m *MockPersistence) GetMockSnapshotRepository() *MockSnapshotRepository {
	return m.snapshotRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) SnapshotRepository() persistence.SnapshotRepository {
	return m.snapshotRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
