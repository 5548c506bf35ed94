package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Issue codes attached to validation findings.
const (
	IssueInvalidStructure = "invalid_structure"
	IssueCyclicDependency = "cyclic_dependency"
)

// ValidationIssue is a single finding with the path of the offending element.
type ValidationIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects every finding so authoring callers can fix a
// workflow in one pass.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// Err maps the first finding to the engine error taxonomy, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}

	first := r.Issues[0]
	if first.Code == IssueCyclicDependency {
		return fmt.Errorf("%w: %s: %s", ErrCyclicDependency, first.Path, first.Message)
	}

	return fmt.Errorf("%w: %s: %s", ErrInvalidStructure, first.Path, first.Message)
}

// Validate checks structure and graph acyclicity, returning the first
// violation as an error. Pure function over the workflow; no side effects.
func (w *Workflow) Validate() error {
	return ValidateWorkflow(w).Err()
}

// ValidateWorkflow runs field validation, structural checks, and cycle
// detection over the workflow and every owned sub-plan.
func ValidateWorkflow(w *Workflow) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if err := validate.Struct(w); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok {
			for _, fe := range fieldErrs {
				result.add(fe.Namespace(), IssueInvalidStructure, "failed "+fe.Tag()+" validation")
			}
		} else {
			result.add("workflow", IssueInvalidStructure, err.Error())
		}
	}

	validateScope(result, "steps", w.Steps)

	return result
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors) //nolint:errorlint // validator returns the slice directly
	if ok {
		*target = ve
	}

	return ok
}

func (r *ValidationResult) add(path, code, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Path: path, Code: code, Message: message})
}

// validateScope checks one owned step list. Nested branch and loop bodies are
// independent scopes: their ids and graphs are local to the parent step.
func validateScope(result *ValidationResult, path string, steps []*WorkflowStep) {
	index := make(map[string]*WorkflowStep, len(steps))

	for i, step := range steps {
		stepPath := fmt.Sprintf("%s[%d]", path, i)

		if step.ID == "" || step.Name == "" || step.Type == "" {
			result.add(stepPath, IssueInvalidStructure, "step requires id, name and type")

			continue
		}

		if _, dup := index[step.ID]; dup {
			result.add(stepPath, IssueInvalidStructure, fmt.Sprintf("duplicate step id %q", step.ID))
		}

		index[step.ID] = step

		validateStepConfig(result, stepPath, step)
	}

	for i, step := range steps {
		stepPath := fmt.Sprintf("%s[%d]", path, i)

		for _, dep := range step.DependsOn {
			if _, ok := index[dep]; !ok {
				result.add(stepPath, IssueInvalidStructure, fmt.Sprintf("depends_on references unknown step %q", dep))
			}
		}
	}

	validateParallelGroups(result, path, steps)

	if stepID, cyclic := detectCycle(steps, index); cyclic {
		result.add(path, IssueCyclicDependency, fmt.Sprintf("cycle detected at step %q", stepID))
	}
}

// validateStepConfig enforces the tagged union: exactly one config populated,
// matching the declared type, plus type-specific invariants.
func validateStepConfig(result *ValidationResult, path string, step *WorkflowStep) {
	populated := 0
	for _, set := range []bool{step.Action != nil, step.Conditional != nil, step.Loop != nil} {
		if set {
			populated++
		}
	}

	if populated != 1 {
		result.add(path, IssueInvalidStructure, "exactly one of action, conditional or loop must be set")

		return
	}

	switch step.Type {
	case StepTypeAction:
		if step.Action == nil {
			result.add(path, IssueInvalidStructure, "action step requires an action config")
		}
	case StepTypeConditional:
		if step.Conditional == nil {
			result.add(path, IssueInvalidStructure, "conditional step requires a conditional config")

			return
		}

		validateConditional(result, path+".conditional", step.Conditional)
	case StepTypeLoop:
		if step.Loop == nil {
			result.add(path, IssueInvalidStructure, "loop step requires a loop config")

			return
		}

		validateLoop(result, path+".loop", step.Loop)
	default:
		result.add(path, IssueInvalidStructure, fmt.Sprintf("unknown step type %q", step.Type))
	}
}

func validateConditional(result *ValidationResult, path string, cfg *ConditionalConfig) {
	seen := make(map[string]struct{}, len(cfg.Branches))

	for i, branch := range cfg.Branches {
		branchPath := fmt.Sprintf("%s.branches[%d]", path, i)

		if _, dup := seen[branch.When]; dup {
			result.add(branchPath, IssueInvalidStructure, fmt.Sprintf("duplicate branch tag %q", branch.When))
		}

		seen[branch.When] = struct{}{}

		validateScope(result, branchPath+".steps", branch.Steps)
	}
}

func validateLoop(result *ValidationResult, path string, cfg *LoopConfig) {
	switch cfg.Kind {
	case LoopKindFor:
		if cfg.Source == "" {
			result.add(path, IssueInvalidStructure, "for loop requires a source variable")
		}
	case LoopKindWhile:
		if cfg.Condition == "" {
			result.add(path, IssueInvalidStructure, "while loop requires a condition")
		}
	}

	if cfg.Element() == cfg.Index() {
		result.add(path, IssueInvalidStructure, "element and index variables must differ")
	}

	for _, reserved := range ReservedContextKeys {
		if cfg.Element() == reserved || cfg.Index() == reserved {
			result.add(path, IssueInvalidStructure, fmt.Sprintf("loop variable collides with reserved key %q", reserved))
		}
	}

	if cfg.MaxIterations < 0 {
		result.add(path, IssueInvalidStructure, "max_iterations must not be negative")
	}

	validateScope(result, path+".steps", cfg.Steps)
}

// validateParallelGroups enforces that steps sharing a group declare
// identical dependency sets: the group becomes runnable only once that shared
// set is satisfied.
func validateParallelGroups(result *ValidationResult, path string, steps []*WorkflowStep) {
	groups := make(map[string]map[string]struct{})

	for i, step := range steps {
		if step.ParallelGroup == "" {
			continue
		}

		deps := make(map[string]struct{}, len(step.DependsOn))
		for _, d := range step.DependsOn {
			deps[d] = struct{}{}
		}

		prev, ok := groups[step.ParallelGroup]
		if !ok {
			groups[step.ParallelGroup] = deps

			continue
		}

		if !sameDeps(prev, deps) {
			result.add(fmt.Sprintf("%s[%d]", path, i), IssueInvalidStructure,
				fmt.Sprintf("parallel group %q members must share one dependency set", step.ParallelGroup))
		}
	}
}

func sameDeps(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}

	return true
}

// Three-color depth-first search over dependsOn edges. Gray means on the
// current path, so reaching a gray step closes a cycle.
const (
	colorWhite = iota
	colorGray
	colorBlack
)

func detectCycle(steps []*WorkflowStep, index map[string]*WorkflowStep) (string, bool) {
	color := make(map[string]int, len(steps))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		color[id] = colorGray

		step := index[id]
		for _, dep := range step.DependsOn {
			next, ok := index[dep]
			if !ok {
				continue // unknown reference, reported as a structure issue
			}

			switch color[next.ID] {
			case colorGray:
				return next.ID, true
			case colorWhite:
				if at, found := visit(next.ID); found {
					return at, true
				}
			}
		}

		color[id] = colorBlack

		return "", false
	}

	for _, step := range steps {
		if color[step.ID] == colorWhite {
			if at, found := visit(step.ID); found {
				return at, true
			}
		}
	}

	return "", false
}
