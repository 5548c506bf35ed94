// Package engine drives workflow executions: it plans dependency waves,
// dispatches steps to registered handlers under the failure policy, merges
// per-step deltas back into the execution state, and persists a snapshot
// trail that supports cancellation and resume.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dandpb/jung-edu-app-sub012/pkg/eventbus"
	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/registry"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/state"
)

// Concurrency presets bound how many steps of one wave run at once.
const (
	ConcurrencyHigh   = "high"
	ConcurrencyMedium = "medium"
	ConcurrencyLow    = "low"
)

// Defaults applied when Config leaves fields zero.
const (
	DefaultStepTimeout       = 30 * time.Second
	DefaultExecutionTimeout  = 5 * time.Minute
	DefaultMaxLoopIterations = 100
	DefaultLockTTL           = 10 * time.Minute
)

// Config tunes one engine instance. The zero value is usable: every field
// falls back to a default.
type Config struct {
	// WorkerID identifies this engine in events and logs.
	WorkerID string

	// Concurrency is one of the presets above; unknown values mean medium.
	Concurrency string

	// StepTimeout bounds a single handler attempt. Steps may override it
	// with their own timeout.
	StepTimeout time.Duration

	// ExecutionTimeout bounds one run of an execution. Resumed runs get a
	// fresh budget.
	ExecutionTimeout time.Duration

	// MaxLoopIterations caps loops that declare no cap of their own.
	MaxLoopIterations int

	// LockTTL is how long the execution lock lives between refreshes. It
	// must comfortably exceed the longest wave.
	LockTTL time.Duration

	// Retry is the engine-wide retry policy; steps may override the retry
	// count and delay.
	Retry resilience.RetryPolicy

	// Breaker configures the per-action-type circuit breakers.
	Breaker resilience.BreakerSettings
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = "engine-" + uuid.New().String()
	}

	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}

	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}

	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = DefaultMaxLoopIterations
	}

	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}

	if c.Retry == (resilience.RetryPolicy{}) {
		c.Retry = resilience.DefaultRetryPolicy()
	}

	return c
}

func parallelismFor(preset string) int {
	switch preset {
	case ConcurrencyHigh:
		return 8
	case ConcurrencyLow:
		return 1
	default:
		return 4
	}
}

// Engine executes workflows against a persistence backend. Executions of the
// same workflow are serialized through the lock repository; a single engine
// may run many executions of different workflows concurrently.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	locks       persistence.LockRepository
	registry    *registry.Registry
	bus         eventbus.EventPublisher
	tracer      trace.Tracer
	breakers    *resilience.BreakerGroup
	cfg         Config
	maxParallel int
}

// NewEngine wires an engine. The event bus may be nil; publish failures are
// logged and never fail an execution. Tracing uses the global provider, so
// spans are no-ops until the binary installs one.
func NewEngine(
	logger *slog.Logger,
	persist persistence.Persistence,
	locks persistence.LockRepository,
	reg *registry.Registry,
	bus eventbus.EventPublisher,
	cfg Config,
) *Engine {
	cfg = cfg.withDefaults()

	return &Engine{
		logger:      logger.With("module", "engine", "worker_id", cfg.WorkerID),
		persistence: persist,
		locks:       locks,
		registry:    reg,
		bus:         bus,
		tracer:      otel.Tracer("eduflow-engine"),
		breakers:    resilience.NewBreakerGroup(cfg.Breaker),
		cfg:         cfg,
		maxParallel: parallelismFor(cfg.Concurrency),
	}
}

// baseEvent stamps a lifecycle event with this engine's worker id.
func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = e.cfg.WorkerID

	return base
}

// emit publishes an event when a bus is wired. Event delivery is best effort:
// execution correctness never depends on it.
func (e *Engine) emit(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) saveState(ctx context.Context, manager *state.Manager) error {
	if err := e.persistence.ExecutionRepository().SaveState(ctx, manager.State()); err != nil {
		return fmt.Errorf("save execution state: %w", err)
	}

	return nil
}

// snapshot captures the managed state and appends it to the execution's
// snapshot log. The repository assigns the sequence number.
func (e *Engine) snapshot(ctx context.Context, manager *state.Manager, audit bool) (*models.ExecutionSnapshot, error) {
	snap, err := models.NewSnapshot(manager.State(), audit)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	snap.ID = uuid.New().String()

	if err := e.persistence.SnapshotRepository().Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	return snap, nil
}

func (e *Engine) releaseLock(ctx context.Context, workflowID, executionID string) {
	if err := e.locks.Release(ctx, workflowID, executionID); err != nil {
		e.logger.ErrorContext(ctx, "Failed to release execution lock",
			"workflow_id", workflowID, "execution_id", executionID, "error", err)
	}
}
