package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/engine"
	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	loghandler "github.com/dandpb/jung-edu-app-sub012/pkg/handlers/log"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/memory"
	"github.com/dandpb/jung-edu-app-sub012/pkg/registry"
	"github.com/dandpb/jung-edu-app-sub012/pkg/testutil"
)

type mockEventBus struct {
	published []eventbus.Event
}

func (m *mockEventBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	m.published = append(m.published, event)

	return nil
}

func (m *mockEventBus) Handle(_ events.EventType, _ eventbus.EventHandler) error {
	return nil
}

func (m *mockEventBus) Subscribe(_ context.Context) error {
	return nil
}

func (m *mockEventBus) Close() error {
	return nil
}

func (m *mockEventBus) GenerateID() string {
	return "mock-event-id"
}

func newTestWorker(t *testing.T) (*WorkerManager, *engine.Engine) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	reg := registry.NewRegistry(logger)
	reg.Register(loghandler.NewFactory())

	eventBus := &mockEventBus{}
	eng := engine.NewEngine(
		logger,
		memory.NewPersistence(),
		memory.NewLockRepository(),
		reg,
		eventBus,
		engine.Config{WorkerID: "test-worker"},
	)

	return NewWorkerManager("test-worker", eng, eventBus, logger), eng
}

func submitLogWorkflow(t *testing.T, eng *engine.Engine) *models.Workflow {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(testutil.WithSteps(
		testutil.CreateTestStep(
			testutil.WithStepID("emit"),
			testutil.WithAction("log", map[string]any{"message": "processed {{.variables.order}}"}),
		),
	))

	require.NoError(t, eng.SubmitWorkflow(context.Background(), workflow))

	return workflow
}

func TestNewWorkerManager(t *testing.T) {
	t.Parallel()

	wm, eng := newTestWorker(t)

	assert.Equal(t, "test-worker", wm.id)
	assert.Same(t, eng, wm.engine)
	assert.NotNil(t, wm.eventBus)
	assert.NotNil(t, wm.logger)
}

func TestWorkerManager_HandleExecutionRequested(t *testing.T) {
	t.Parallel()

	wm, eng := newTestWorker(t)
	ctx := context.Background()

	workflow := submitLogWorkflow(t, eng)

	executionID, err := eng.StartExecution(ctx, workflow.ID, map[string]any{"order": "ord-1"})
	require.NoError(t, err)

	event := events.NewExecutionRequested(workflow.ID, executionID, nil)
	require.NoError(t, wm.handleExecutionRequested(ctx, &event))

	result, err := eng.GetExecutionResult(ctx, executionID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"emit"}, result.ExecutedSteps)
}

func TestWorkerManager_HandleExecutionRequested_InvalidEvent(t *testing.T) {
	t.Parallel()

	wm, _ := newTestWorker(t)

	// malformed payloads are logged and acked, not redelivered forever
	require.NoError(t, wm.handleExecutionRequested(context.Background(), "not-an-event"))
}

func TestWorkerManager_HandleExecutionRequested_UnknownExecution(t *testing.T) {
	t.Parallel()

	wm, _ := newTestWorker(t)

	event := events.NewExecutionRequested("wf-ghost", "exec-ghost", nil)
	require.NoError(t, wm.handleExecutionRequested(context.Background(), &event))
}

func TestWorkerManager_HandleResumeRequested_TerminalExecution(t *testing.T) {
	t.Parallel()

	wm, eng := newTestWorker(t)
	ctx := context.Background()

	workflow := submitLogWorkflow(t, eng)

	executionID, err := eng.StartExecution(ctx, workflow.ID, nil)
	require.NoError(t, err)
	require.NoError(t, eng.CancelExecution(ctx, executionID))

	_, err = eng.RunExecution(ctx, executionID)
	require.NoError(t, err)

	// resuming a finished execution can never succeed, so the request is dropped
	event := events.NewResumeRequested(workflow.ID, executionID, events.ResumeReasonManual)
	require.NoError(t, wm.handleResumeRequested(ctx, &event))

	state, err := eng.GetExecutionState(ctx, executionID)
	require.NoError(t, err)
	assert.True(t, state.Status.Terminal())
}

func TestWorkerManager_HandleResumeRequested_InvalidEvent(t *testing.T) {
	t.Parallel()

	wm, _ := newTestWorker(t)

	require.NoError(t, wm.handleResumeRequested(context.Background(), 42))
}
