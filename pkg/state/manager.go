// Package state owns the per-execution variable map and status lifecycle.
// Every mutation goes through the Manager; the engine never touches the
// underlying ExecutionState directly.
package state

import (
	"sync"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// allowed transitions: initialized -> running -> {completed | failed},
// running <-> paused. Everything else is rejected.
var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecutionStatusInitialized: {models.ExecutionStatusRunning},
	models.ExecutionStatusRunning: {
		models.ExecutionStatusPaused,
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
	},
	models.ExecutionStatusPaused: {models.ExecutionStatusRunning},
}

// Delta is one step's variable changes, tagged for deterministic merging.
type Delta struct {
	StepID  string
	Changes map[string]any
}

// Manager guards one execution's state behind a RWMutex. Reads hand out deep
// copies so callers can never mutate shared state from outside.
type Manager struct {
	mu    sync.RWMutex
	state *models.ExecutionState
}

// NewManager initializes state for a fresh execution, seeded with the
// workflow's initial variables.
func NewManager(executionID, workflowID string, workflowVersion int, seed map[string]any) *Manager {
	now := time.Now().UTC()

	return &Manager{
		state: &models.ExecutionState{
			ID:              executionID,
			WorkflowID:      workflowID,
			WorkflowVersion: workflowVersion,
			Status:          models.ExecutionStatusInitialized,
			Variables:       models.DeepCopyMap(seed),
			StepResults:     make(map[string]*models.StepExecutionResult),
			ExecutedSteps:   []string{},
			StartedAt:       now,
			UpdatedAt:       now,
		},
	}
}

// Restore wraps an existing state, copying it in. Used when resuming from a
// snapshot or picking an execution up from persistence.
func Restore(st *models.ExecutionState) *Manager {
	restored := st.Clone()
	if restored.Variables == nil {
		restored.Variables = make(map[string]any)
	}

	if restored.StepResults == nil {
		restored.StepResults = make(map[string]*models.StepExecutionResult)
	}

	return &Manager{state: restored}
}

// Transition moves the execution to the next status, enforcing the lifecycle.
// Terminal statuses set CompletedAt.
func (m *Manager) Transition(next models.ExecutionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ok := range transitions[m.state.Status] {
		if ok == next {
			m.state.Status = next
			m.state.UpdatedAt = time.Now().UTC()

			if next.Terminal() {
				t := m.state.UpdatedAt
				m.state.CompletedAt = &t
			}

			return nil
		}
	}

	return models.TransitionError(m.state.Status, next)
}

// Status returns the current lifecycle status.
func (m *Manager) Status() models.ExecutionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Status
}

// UpdateVariables merges the patch into the variable map, last write wins.
func (m *Manager) UpdateVariables(patch map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range patch {
		m.state.Variables[k] = models.DeepCopyValue(v)
	}

	m.state.UpdatedAt = time.Now().UTC()
}

// Variables returns a deep copy of the variable map.
func (m *Manager) Variables() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return models.DeepCopyMap(m.state.Variables)
}

// State returns a deep copy of the full execution state.
func (m *Manager) State() *models.ExecutionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Clone()
}

// Clone is the fork point for parallel branches: a deep copy whose mutation
// never reaches the shared state until the engine merges a delta back.
func (m *Manager) Clone() *models.ExecutionState {
	return m.State()
}

// SetState replaces the managed state wholesale, copying the input.
func (m *Manager) SetState(st *models.ExecutionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = st.Clone()
}

// MergeState folds a partial state into the managed one: variables last write
// wins, results and errors are merged, executed steps are appended in order
// without duplicates.
func (m *Manager) MergeState(partial *models.ExecutionState) {
	if partial == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range partial.Variables {
		m.state.Variables[k] = models.DeepCopyValue(v)
	}

	for id, r := range partial.StepResults {
		rc := *r
		rc.Output = models.DeepCopyValue(r.Output)
		m.state.StepResults[id] = &rc
	}

	seen := make(map[string]struct{}, len(m.state.ExecutedSteps))
	for _, id := range m.state.ExecutedSteps {
		seen[id] = struct{}{}
	}

	for _, id := range partial.ExecutedSteps {
		if _, dup := seen[id]; !dup {
			m.state.ExecutedSteps = append(m.state.ExecutedSteps, id)
			seen[id] = struct{}{}
		}
	}

	for _, e := range partial.Errors {
		ec := *e
		m.state.Errors = append(m.state.Errors, &ec)
	}

	if partial.CurrentStepID != "" {
		m.state.CurrentStepID = partial.CurrentStepID
	}

	m.state.UpdatedAt = time.Now().UTC()
}

// Reset returns the execution to a fresh initialized state, keeping identity.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.state = &models.ExecutionState{
		ID:              m.state.ID,
		WorkflowID:      m.state.WorkflowID,
		WorkflowVersion: m.state.WorkflowVersion,
		Status:          models.ExecutionStatusInitialized,
		Variables:       make(map[string]any),
		StepResults:     make(map[string]*models.StepExecutionResult),
		ExecutedSteps:   []string{},
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplyDeltas merges one wave's per-step deltas in wave-declared order. The
// first cluster member to write a key wins; later siblings' writes to the
// same key are dropped. This is an explicit policy, covered by tests.
func (m *Manager) ApplyDeltas(deltas []Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := make(map[string]struct{})

	for _, d := range deltas {
		for k, v := range d.Changes {
			if _, taken := claimed[k]; taken {
				continue
			}

			claimed[k] = struct{}{}
			m.state.Variables[k] = models.DeepCopyValue(v)
		}
	}

	m.state.UpdatedAt = time.Now().UTC()
}

// SetCurrentStep records the step pointer for observability and snapshots.
func (m *Manager) SetCurrentStep(stepID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CurrentStepID = stepID
	m.state.UpdatedAt = time.Now().UTC()
}

// MarkExecuted appends completed step ids in the given order.
func (m *Manager) MarkExecuted(stepIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ExecutedSteps = append(m.state.ExecutedSteps, stepIDs...)
	m.state.UpdatedAt = time.Now().UTC()
}

// ExecutedSteps returns the ordered completed step ids.
func (m *Manager) ExecutedSteps() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.state.ExecutedSteps...)
}

// RecordStepResult stores the outcome of one step invocation.
func (m *Manager) RecordStepResult(result *models.StepExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.StepResults[result.StepID] = result
	m.state.UpdatedAt = time.Now().UTC()
}

// RecordError appends to the ordered error list.
func (m *Manager) RecordError(execErr *models.ExecutionError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Errors = append(m.state.Errors, execErr)
	m.state.UpdatedAt = time.Now().UTC()
}

// SetFailureReason records why a failed execution ended.
func (m *Manager) SetFailureReason(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.FailureReason = reason
}

// RequestCancel flags the execution for cooperative cancellation.
func (m *Manager) RequestCancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CancelRequested = true
	m.state.UpdatedAt = time.Now().UTC()
}

// CancelRequested reports whether cancellation has been requested.
func (m *Manager) CancelRequested() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.CancelRequested
}
