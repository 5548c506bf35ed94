package models

// StepType discriminates the tagged union of step configurations.
type StepType string

const (
	StepTypeAction      StepType = "action"
	StepTypeConditional StepType = "conditional"
	StepTypeLoop        StepType = "loop"
)

// WorkflowStep is a single node of the step graph. Exactly one of Action,
// Conditional or Loop must be populated, matching Type.
type WorkflowStep struct {
	ID             string             `json:"id"   validate:"required"`
	Name           string             `json:"name" validate:"required"`
	Type           StepType           `json:"type" validate:"required,oneof=action conditional loop"`
	Action         *ActionConfig      `json:"action,omitempty"`
	Conditional    *ConditionalConfig `json:"conditional,omitempty"`
	Loop           *LoopConfig        `json:"loop,omitempty"`
	Order          int                `json:"order"`
	DependsOn      []string           `json:"depends_on,omitempty"`
	Parallelizable bool               `json:"parallelizable,omitempty"`
	ParallelGroup  string             `json:"parallel_group,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
}

// ActionConfig invokes a registered step handler. Configuration values may
// contain template expressions rendered against the execution context.
type ActionConfig struct {
	Type          string         `json:"type" validate:"required"`
	Configuration map[string]any `json:"configuration,omitempty"`
	MaxRetries    *int           `json:"max_retries,omitempty"`
	RetryDelayMS  *int           `json:"retry_delay_ms,omitempty"`
}

// ConditionalConfig evaluates an expression and routes into exactly one
// matching branch. Branch tags must be unique within the step.
type ConditionalConfig struct {
	Expression string    `json:"expression" validate:"required"`
	Branches   []*Branch `json:"branches"   validate:"required,min=1,dive"`
}

// Branch owns a nested step list guarded by a discriminated tag. Boolean
// expressions match against "true"/"false".
type Branch struct {
	When  string          `json:"when"  validate:"required"`
	Steps []*WorkflowStep `json:"steps" validate:"required,min=1,dive"`
}

// LoopKind selects bounded iteration over a variable or a condition guard.
type LoopKind string

const (
	LoopKindFor   LoopKind = "for"
	LoopKindWhile LoopKind = "while"
)

// LoopConfig executes its nested steps once per iteration, strictly
// sequentially. For-kind loops iterate the variable named by Source;
// while-kind loops re-evaluate Condition before each pass. Iterations are
// hard-capped by MaxIterations (engine default applies when zero).
type LoopConfig struct {
	Kind          LoopKind        `json:"kind" validate:"required,oneof=for while"`
	Source        string          `json:"source,omitempty"`
	Condition     string          `json:"condition,omitempty"`
	ElementVar    string          `json:"element_var,omitempty"`
	IndexVar      string          `json:"index_var,omitempty"`
	MaxIterations int             `json:"max_iterations,omitempty"`
	Steps         []*WorkflowStep `json:"steps" validate:"required,min=1,dive"`
}

// DefaultElementVar and DefaultIndexVar name the per-iteration bindings when
// a loop config leaves them unset.
const (
	DefaultElementVar = "item"
	DefaultIndexVar   = "index"
)

// Element returns the variable name the current element is bound to.
func (l *LoopConfig) Element() string {
	if l.ElementVar != "" {
		return l.ElementVar
	}

	return DefaultElementVar
}

// Index returns the variable name the iteration counter is bound to.
func (l *LoopConfig) Index() string {
	if l.IndexVar != "" {
		return l.IndexVar
	}

	return DefaultIndexVar
}

// SubSteps returns the nested step list owned by this step, or nil for
// action steps.
func (s *WorkflowStep) SubSteps() [][]*WorkflowStep {
	switch s.Type {
	case StepTypeConditional:
		if s.Conditional == nil {
			return nil
		}

		lists := make([][]*WorkflowStep, 0, len(s.Conditional.Branches))
		for _, b := range s.Conditional.Branches {
			lists = append(lists, b.Steps)
		}

		return lists
	case StepTypeLoop:
		if s.Loop == nil {
			return nil
		}

		return [][]*WorkflowStep{s.Loop.Steps}
	case StepTypeAction:
		return nil
	}

	return nil
}
