package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/memory"
	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
	"github.com/dandpb/jung-edu-app-sub012/pkg/registry"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
)

type stubHandler struct {
	fn func(ctx context.Context, ectx *models.ExecutionContext) (*models.StepExecutionResult, error)
}

func (h *stubHandler) Execute(ctx context.Context, ectx *models.ExecutionContext) (*models.StepExecutionResult, error) {
	return h.fn(ctx, ectx)
}

type stubFactory struct {
	id string
	fn func(ctx context.Context, ectx *models.ExecutionContext) (*models.StepExecutionResult, error)
}

func (f *stubFactory) ID() string             { return f.id }
func (f *stubFactory) Name() string           { return f.id }
func (f *stubFactory) Description() string    { return "test handler" }
func (f *stubFactory) Schema() map[string]any { return nil }

func (f *stubFactory) Create(_ map[string]any) (protocol.StepHandler, error) {
	return &stubHandler{fn: f.fn}, nil
}

func succeed(_ context.Context, _ *models.ExecutionContext) (*models.StepExecutionResult, error) {
	return &models.StepExecutionResult{Success: true, Output: "ok"}, nil
}

// recordingBus captures published events in order for assertions.
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

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, len(b.events))
	for i, event := range b.events {
		types[i] = event.GetType()
	}

	return types
}

func newTestRegistry(factories ...protocol.StepHandlerFactory) *registry.Registry {
	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	for _, factory := range factories {
		reg.Register(factory)
	}

	return reg
}

func newTestEngine(t *testing.T, reg *registry.Registry, bus eventbus.EventPublisher, cfg Config) *Engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewEngine(logger, memory.NewPersistence(), memory.NewLockRepository(), reg, bus, cfg)
}

// fastCfg disables retries and keeps timeouts short so failure paths resolve
// quickly and deterministically.
func fastCfg() Config {
	return Config{
		WorkerID:         "test-worker",
		StepTimeout:      2 * time.Second,
		ExecutionTimeout: 30 * time.Second,
		Retry:            resilience.RetryPolicy{MaxRetries: 0, Delay: time.Millisecond},
	}
}

func actionStep(id, actionType string, deps ...string) *models.WorkflowStep {
	return &models.WorkflowStep{
		ID:        id,
		Name:      id,
		Type:      models.StepTypeAction,
		Action:    &models.ActionConfig{Type: actionType},
		DependsOn: deps,
	}
}

func activeWorkflow(id string, variables map[string]any, steps ...*models.WorkflowStep) *models.Workflow {
	return &models.Workflow{
		ID:        id,
		Name:      "Flow " + id,
		Status:    models.WorkflowStatusActive,
		Steps:     steps,
		Variables: variables,
	}
}

func mustSubmit(t *testing.T, e *Engine, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, e.SubmitWorkflow(context.Background(), workflow))
}

func mustRun(t *testing.T, e *Engine, workflowID string, variables map[string]any) *models.ExecutionResult {
	t.Helper()

	executionID, err := e.StartExecution(context.Background(), workflowID, variables)
	require.NoError(t, err)

	result, err := e.RunExecution(context.Background(), executionID)
	require.NoError(t, err)

	return result
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()

	assert.NotEmpty(t, cfg.WorkerID)
	assert.Equal(t, DefaultStepTimeout, cfg.StepTimeout)
	assert.Equal(t, DefaultExecutionTimeout, cfg.ExecutionTimeout)
	assert.Equal(t, DefaultMaxLoopIterations, cfg.MaxLoopIterations)
	assert.Equal(t, DefaultLockTTL, cfg.LockTTL)
	assert.Equal(t, resilience.DefaultRetryPolicy(), cfg.Retry)
}

func TestParallelismPresets(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, parallelismFor(ConcurrencyHigh))
	assert.Equal(t, 4, parallelismFor(ConcurrencyMedium))
	assert.Equal(t, 1, parallelismFor(ConcurrencyLow))
	assert.Equal(t, 4, parallelismFor("whatever"))
}

func TestSubmitWorkflowAssignsVersions(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	workflow := activeWorkflow("wf-versions", nil, actionStep("only", "noop"))
	require.NoError(t, engine.SubmitWorkflow(ctx, workflow))
	assert.Equal(t, 1, workflow.Version)

	resubmitted := activeWorkflow("wf-versions", nil, actionStep("only", "noop"))
	require.NoError(t, engine.SubmitWorkflow(ctx, resubmitted))
	assert.Equal(t, 2, resubmitted.Version)
	assert.True(t, resubmitted.CreatedAt.Equal(workflow.CreatedAt), "resubmission keeps the original creation time")
}

func TestSubmitWorkflowRejectsCycles(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	workflow := activeWorkflow("wf-cycle", nil,
		actionStep("step-a", "noop", "step-b"),
		actionStep("step-b", "noop", "step-a"),
	)

	err := engine.SubmitWorkflow(ctx, workflow)
	require.ErrorIs(t, err, models.ErrCyclicDependency)

	// rejected workflows are never persisted
	_, err = engine.persistence.WorkflowRepository().GetByID(ctx, "wf-cycle")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestSubmitWorkflowRejectsUnknownDependency(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())

	workflow := activeWorkflow("wf-bad-dep", nil, actionStep("step-a", "noop", "ghost"))

	err := engine.SubmitWorkflow(context.Background(), workflow)
	require.ErrorIs(t, err, models.ErrInvalidStructure)
}

func TestStartExecutionRequiresActiveWorkflow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	draft := activeWorkflow("wf-draft", nil, actionStep("only", "noop"))
	draft.Status = models.WorkflowStatusDraft
	mustSubmit(t, engine, draft)

	_, err := engine.StartExecution(ctx, "wf-draft", nil)
	require.ErrorIs(t, err, models.ErrWorkflowNotExecutable)
}

func TestStartExecutionUnknownWorkflow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(), nil, fastCfg())

	_, err := engine.StartExecution(context.Background(), "missing", nil)
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

// Exactly one StartExecution wins while an execution is live; the loser gets
// CompletionAlreadyInProgress. Once the winner terminates the workflow can
// be started again.
func TestStartExecutionSingleWinner(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	mustSubmit(t, engine, activeWorkflow("wf-lock", nil, actionStep("only", "noop")))

	first, err := engine.StartExecution(ctx, "wf-lock", nil)
	require.NoError(t, err)

	_, err = engine.StartExecution(ctx, "wf-lock", nil)
	require.ErrorIs(t, err, models.ErrCompletionAlreadyInProgress)

	result, err := engine.RunExecution(ctx, first)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// terminal transition released the lock
	_, err = engine.StartExecution(ctx, "wf-lock", nil)
	require.NoError(t, err)
}

func TestGetExecutionResultPending(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	mustSubmit(t, engine, activeWorkflow("wf-pending", nil, actionStep("only", "noop")))

	executionID, err := engine.StartExecution(ctx, "wf-pending", nil)
	require.NoError(t, err)

	_, err = engine.GetExecutionResult(ctx, executionID)
	require.ErrorIs(t, err, models.ErrExecutionPending)

	state, err := engine.GetExecutionState(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInitialized, state.Status)
}

func TestRunExecutionEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), bus, fastCfg())

	mustSubmit(t, engine, activeWorkflow("wf-events", nil,
		actionStep("step-1", "noop"),
		actionStep("step-2", "noop", "step-1"),
	))

	result := mustRun(t, engine, "wf-events", nil)
	require.True(t, result.Success)

	assert.Equal(t, []events.EventType{
		events.ExecutionRequestedEvent,
		events.ExecutionStartedEvent,
		events.StepStartedEvent,
		events.StepCompletedEvent,
		events.WaveCompletedEvent,
		events.StepStartedEvent,
		events.StepCompletedEvent,
		events.WaveCompletedEvent,
		events.ExecutionCompletedEvent,
	}, bus.types())

	var sequences []int64

	for _, event := range bus.events {
		if wave, ok := event.(events.WaveCompleted); ok {
			sequences = append(sequences, wave.SnapshotSequence)
		}
	}

	// sequence 1 is the initialized audit snapshot
	assert.Equal(t, []int64{2, 3}, sequences)
}

func TestCancelExecutionBeforeRun(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, newTestRegistry(&stubFactory{id: "noop", fn: succeed}), nil, fastCfg())
	ctx := context.Background()

	mustSubmit(t, engine, activeWorkflow("wf-cancel-early", nil,
		actionStep("step-1", "noop"),
		actionStep("step-2", "noop", "step-1"),
	))

	executionID, err := engine.StartExecution(ctx, "wf-cancel-early", nil)
	require.NoError(t, err)

	require.NoError(t, engine.CancelExecution(ctx, executionID))

	result, err := engine.RunExecution(ctx, executionID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.ExecutedSteps)

	state, err := engine.GetExecutionState(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, state.Status)
	assert.Equal(t, models.FailureReasonCancelled, state.FailureReason)

	// terminal executions reject further cancels
	err = engine.CancelExecution(ctx, executionID)
	require.ErrorIs(t, err, models.ErrNotRunning)
}
