package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/otelhelper"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/scheduler"
	"github.com/dandpb/jung-edu-app-sub012/pkg/state"
	"github.com/dandpb/jung-edu-app-sub012/pkg/template"
)

// stepOutcome is the result of one step invocation, collected after a wave
// finishes. The delta holds variable writes for the first-wins wave merge;
// nested carries step results and errors produced inside composite steps.
type stepOutcome struct {
	stepID string
	delta  state.Delta
	result *models.StepExecutionResult
	nested *models.ExecutionState
	err    error
}

func (o stepOutcome) fail(step *models.WorkflowStep, started time.Time, err error) stepOutcome {
	o.err = err
	o.result = &models.StepExecutionResult{
		StepID:    step.ID,
		Success:   false,
		Error:     err.Error(),
		Attempts:  1,
		Duration:  time.Since(started),
		StartedAt: started,
	}

	return o
}

// dispatchWave runs one wave's steps concurrently, bounded by the engine's
// parallelism, and returns the outcomes in wave-declared order.
func (e *Engine) dispatchWave(ctx context.Context, manager *state.Manager, workflow *models.Workflow, steps []*models.WorkflowStep, wave, depth int) []stepOutcome {
	outcomes := make([]stepOutcome, len(steps))

	if len(steps) == 1 {
		outcomes[0] = e.runStep(ctx, manager, workflow, steps[0], wave, depth, true)

		return outcomes
	}

	sem := make(chan struct{}, e.maxParallel)

	var wg sync.WaitGroup

	for i, step := range steps {
		wg.Add(1)

		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = e.runStep(ctx, manager, workflow, step, wave, depth, false)
		}()
	}

	wg.Wait()

	return outcomes
}

// collectWave folds one wave's outcomes into the manager: step results and
// nested residue are recorded for every step, variable deltas merge first
// wins in wave-declared order, and successful step ids are appended to the
// executed list. Failures are recorded but do not block sibling merges.
func (e *Engine) collectWave(manager *state.Manager, outcomes []stepOutcome) ([]string, *stepOutcome) {
	deltas := make([]state.Delta, 0, len(outcomes))
	succeeded := make([]string, 0, len(outcomes))

	var failed *stepOutcome

	for i := range outcomes {
		out := &outcomes[i]

		if out.result != nil {
			manager.RecordStepResult(out.result)
		}

		if out.nested != nil {
			manager.MergeState(&models.ExecutionState{
				StepResults: out.nested.StepResults,
				Errors:      out.nested.Errors,
			})
		}

		if out.err != nil {
			manager.RecordError(&models.ExecutionError{
				StepID:    out.stepID,
				Message:   out.err.Error(),
				Kind:      string(resilience.Classify(out.err)),
				Timestamp: time.Now().UTC(),
			})

			if failed == nil {
				failed = out
			}

			continue
		}

		deltas = append(deltas, out.delta)
		succeeded = append(succeeded, out.stepID)
	}

	manager.ApplyDeltas(deltas)
	manager.MarkExecuted(succeeded...)

	return succeeded, failed
}

// runStep executes one step of any type against an isolated view of the
// execution state and emits the step lifecycle events.
func (e *Engine) runStep(ctx context.Context, manager *state.Manager, workflow *models.Workflow, step *models.WorkflowStep, wave, depth int, solo bool) stepOutcome {
	view := manager.Clone()
	ectx := models.NewExecutionContext(view.ID, view.WorkflowID, view.Variables, view.StepResults)
	ectx.StepID = step.ID

	stepCtx := ctx
	if step.Type != models.StepTypeAction && step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	stepCtx, span := otelhelper.StartSpan(stepCtx, e.tracer, "engine.step",
		attribute.String(otelhelper.ExecutionIDKey, ectx.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
		attribute.Int(otelhelper.WaveKey, wave),
	)
	defer span.End()

	e.emit(stepCtx, ectx.WorkflowID, events.StepStarted{
		BaseEvent:   e.baseEvent(events.StepStartedEvent, ectx.WorkflowID),
		ExecutionID: ectx.ID,
		StepID:      step.ID,
		StepName:    step.Name,
		StepType:    string(step.Type),
		Wave:        wave,
	})

	var outcome stepOutcome

	switch step.Type {
	case models.StepTypeAction:
		outcome = e.runAction(stepCtx, ectx, step)
	case models.StepTypeConditional:
		outcome = e.runConditional(stepCtx, ectx, workflow, step, depth)
	case models.StepTypeLoop:
		var onIteration func(context.Context, int)

		// Iteration snapshots only make sense when the loop is the whole
		// wave: with siblings in flight the shared state is not at a
		// consistent boundary.
		if depth == 0 && solo {
			onIteration = func(iterCtx context.Context, iteration int) {
				if _, err := e.snapshot(iterCtx, manager, false); err != nil {
					e.logger.WarnContext(iterCtx, "Failed to persist loop iteration snapshot",
						"step_id", step.ID, "iteration", iteration, "error", err)
				}
			}
		}

		outcome = e.runLoop(stepCtx, ectx, workflow, step, depth, onIteration)
	default:
		started := time.Now().UTC()
		outcome = stepOutcome{stepID: step.ID}.fail(step, started,
			models.StructureError(step.ID, fmt.Sprintf("unknown step type %q", step.Type)))
	}

	if outcome.err != nil {
		otelhelper.SetError(span, outcome.err)
		e.emit(stepCtx, ectx.WorkflowID, events.StepFailed{
			BaseEvent:   e.baseEvent(events.StepFailedEvent, ectx.WorkflowID),
			ExecutionID: ectx.ID,
			StepID:      step.ID,
			Error:       outcome.err.Error(),
			Kind:        string(resilience.Classify(outcome.err)),
			Attempts:    outcome.result.Attempts,
			DurationMs:  outcome.result.Duration.Milliseconds(),
		})

		return outcome
	}

	otelhelper.SetOK(span)
	e.emit(stepCtx, ectx.WorkflowID, events.StepCompleted{
		BaseEvent:   e.baseEvent(events.StepCompletedEvent, ectx.WorkflowID),
		ExecutionID: ectx.ID,
		StepID:      step.ID,
		Output:      outcome.result.Output,
		Attempts:    outcome.result.Attempts,
		DurationMs:  outcome.result.Duration.Milliseconds(),
	})

	return outcome
}

// runAction resolves the handler from the registry and invokes it through the
// failure policy: the retrier wraps the per-action-type breaker, and each
// attempt gets its own timeout so a timed-out attempt is retryable.
func (e *Engine) runAction(ctx context.Context, ectx *models.ExecutionContext, step *models.WorkflowStep) stepOutcome {
	started := time.Now().UTC()
	outcome := stepOutcome{stepID: step.ID}
	action := step.Action

	handler, err := e.registry.Create(action.Type, action.Configuration)
	if err != nil {
		return outcome.fail(step, started, resilience.NewStepError(resilience.FailureValidation, err))
	}

	policy := e.cfg.Retry
	if action.MaxRetries != nil {
		policy.MaxRetries = *action.MaxRetries
	}

	if action.RetryDelayMS != nil {
		policy.Delay = time.Duration(*action.RetryDelayMS) * time.Millisecond
	}

	timeout := e.cfg.StepTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}

	attempts := 0

	var result *models.StepExecutionResult

	err = policy.Run(ctx, func(ctx context.Context) error {
		attempts++

		return e.breakers.Run(action.Type, func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, execErr := handler.Execute(attemptCtx, ectx)
			if execErr != nil {
				return execErr
			}

			result = res

			return nil
		})
	})
	if err != nil {
		outcome.err = err
		outcome.result = &models.StepExecutionResult{
			StepID:    step.ID,
			Success:   false,
			Error:     err.Error(),
			Attempts:  attempts,
			Duration:  time.Since(started),
			StartedAt: started,
		}

		return outcome
	}

	if result == nil {
		result = &models.StepExecutionResult{Success: true}
	}

	result.StepID = step.ID
	result.Attempts = attempts
	result.Duration = time.Since(started)
	result.StartedAt = started

	outcome.result = result
	outcome.delta = state.Delta{StepID: step.ID, Changes: ectx.Changes()}

	return outcome
}

// runConditional evaluates the expression, stringifies the outcome into a
// branch tag and recurses into the single matching branch as an owned
// sub-plan over an isolated child state.
func (e *Engine) runConditional(ctx context.Context, ectx *models.ExecutionContext, workflow *models.Workflow, step *models.WorkflowStep, depth int) stepOutcome {
	started := time.Now().UTC()
	outcome := stepOutcome{stepID: step.ID}
	cfg := step.Conditional

	value, err := template.RenderWithContext(cfg.Expression, ectx)
	if err != nil {
		return outcome.fail(step, started, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("evaluate condition: %w", err)))
	}

	tag := template.Stringify(value)

	var matched *models.Branch

	for _, branch := range cfg.Branches {
		if branch.When == tag {
			matched = branch

			break
		}
	}

	if matched == nil {
		return outcome.fail(step, started,
			fmt.Errorf("%w: step %s evaluated to %q", models.ErrNoMatchingBranch, step.ID, tag))
	}

	child := e.childManager(ectx)

	if err := e.runOwnedPlan(ctx, child, workflow, matched.Steps, depth+1); err != nil {
		outcome.nested = child.State()

		return outcome.fail(step, started, err)
	}

	outcome.nested = child.State()
	outcome.delta = state.Delta{StepID: step.ID, Changes: variableDiff(ectx.Variables, child.Variables())}
	outcome.result = &models.StepExecutionResult{
		StepID:    step.ID,
		Success:   true,
		Output:    map[string]any{"branch": tag},
		Attempts:  1,
		Duration:  time.Since(started),
		StartedAt: started,
	}

	return outcome
}

// runLoop iterates the nested sub-plan strictly sequentially, binding the
// element and index variables each pass. The bindings never leak: they are
// scrubbed from the merged delta.
func (e *Engine) runLoop(ctx context.Context, ectx *models.ExecutionContext, workflow *models.Workflow, step *models.WorkflowStep, depth int, onIteration func(context.Context, int)) stepOutcome {
	started := time.Now().UTC()
	outcome := stepOutcome{stepID: step.ID}
	cfg := step.Loop

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxLoopIterations
	}

	elementVar, indexVar := cfg.Element(), cfg.Index()

	var elements []any

	if cfg.Kind == models.LoopKindFor {
		source, ok := ectx.Variable(cfg.Source)
		if !ok {
			return outcome.fail(step, started, resilience.NewStepError(resilience.FailureValidation,
				fmt.Errorf("loop source variable %q is not set", cfg.Source)))
		}

		elements, ok = source.([]any)
		if !ok {
			return outcome.fail(step, started, resilience.NewStepError(resilience.FailureValidation,
				fmt.Errorf("loop source variable %q is not a list", cfg.Source)))
		}
	}

	child := e.childManager(ectx)
	iterations := 0

	for {
		if err := ctx.Err(); err != nil {
			outcome.nested = child.State()

			return outcome.fail(step, started, err)
		}

		proceed, err := loopGuard(cfg, child, elements, iterations)
		if err != nil {
			outcome.nested = child.State()

			return outcome.fail(step, started, resilience.NewStepError(resilience.FailureValidation, err))
		}

		if !proceed {
			break
		}

		if iterations >= maxIterations {
			outcome.nested = child.State()

			return outcome.fail(step, started,
				fmt.Errorf("%w: step %s reached %d iterations", models.ErrLoopLimitExceeded, step.ID, maxIterations))
		}

		if onIteration != nil {
			onIteration(ctx, iterations)
		}

		binding := map[string]any{indexVar: iterations}
		if cfg.Kind == models.LoopKindFor {
			binding[elementVar] = elements[iterations]
		}

		child.UpdateVariables(binding)

		if err := e.runOwnedPlan(ctx, child, workflow, cfg.Steps, depth+1); err != nil {
			outcome.nested = child.State()

			return outcome.fail(step, started, err)
		}

		iterations++
	}

	outcome.nested = child.State()
	outcome.delta = state.Delta{
		StepID:  step.ID,
		Changes: variableDiff(ectx.Variables, child.Variables(), elementVar, indexVar),
	}
	outcome.result = &models.StepExecutionResult{
		StepID:    step.ID,
		Success:   true,
		Output:    map[string]any{"iterations": iterations},
		Attempts:  1,
		Duration:  time.Since(started),
		StartedAt: started,
	}

	return outcome
}

// loopGuard decides whether another iteration runs: element bounds for
// for-kind loops, condition re-evaluation against the accumulated child
// state for while-kind loops.
func loopGuard(cfg *models.LoopConfig, child *state.Manager, elements []any, iteration int) (bool, error) {
	if cfg.Kind == models.LoopKindFor {
		return iteration < len(elements), nil
	}

	st := child.State()
	view := models.NewExecutionContext(st.ID, st.WorkflowID, st.Variables, st.StepResults)

	proceed, err := template.EvaluateBool(cfg.Condition, template.ContextData(view))
	if err != nil {
		return false, fmt.Errorf("evaluate loop condition: %w", err)
	}

	return proceed, nil
}

// runOwnedPlan plans and runs a nested step list to completion against the
// child manager. The first failed step aborts the remaining waves.
func (e *Engine) runOwnedPlan(ctx context.Context, child *state.Manager, workflow *models.Workflow, steps []*models.WorkflowStep, depth int) error {
	plan, err := scheduler.Build(steps)
	if err != nil {
		return err
	}

	for waveIdx, wave := range plan.Waves {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcomes := e.dispatchWave(ctx, child, workflow, wave.Steps, waveIdx, depth)

		_, failed := e.collectWave(child, outcomes)
		if failed != nil {
			return fmt.Errorf("step %s: %w", failed.stepID, failed.err)
		}
	}

	return nil
}

// childManager forks an isolated state for a nested sub-plan. The child sees
// the parent's variable view and step results; its writes stay local until
// the composite step's delta merges back.
func (e *Engine) childManager(ectx *models.ExecutionContext) *state.Manager {
	now := time.Now().UTC()

	return state.Restore(&models.ExecutionState{
		ID:          ectx.ID,
		WorkflowID:  ectx.WorkflowID,
		Status:      models.ExecutionStatusRunning,
		Variables:   ectx.Variables,
		StepResults: ectx.StepResults,
		StartedAt:   now,
		UpdatedAt:   now,
	})
}

// variableDiff returns the keys whose values differ between two variable
// views. Keys listed in skip (loop bindings) are excluded.
func variableDiff(before, after map[string]any, skip ...string) map[string]any {
	excluded := make(map[string]struct{}, len(skip))
	for _, k := range skip {
		excluded[k] = struct{}{}
	}

	changes := make(map[string]any)

	for k, v := range after {
		if _, drop := excluded[k]; drop {
			continue
		}

		if prev, ok := before[k]; !ok || !reflect.DeepEqual(prev, v) {
			changes[k] = v
		}
	}

	return changes
}
