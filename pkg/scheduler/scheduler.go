// Package scheduler turns a step list into an ordered plan of concurrent
// waves that respects depends_on edges and parallel-group clustering.
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// Wave is a set of steps whose dependencies are simultaneously satisfied and
// which share a parallel group (or a single groupless step). Steps within a
// wave run concurrently; waves run strictly in order.
type Wave struct {
	Group string
	Steps []*models.WorkflowStep
}

// StepIDs returns the wave's step ids in declaration order.
func (w Wave) StepIDs() []string {
	ids := make([]string, len(w.Steps))
	for i, s := range w.Steps {
		ids[i] = s.ID
	}

	return ids
}

// Plan is the ordered wave sequence for one step list.
type Plan struct {
	Waves []Wave
}

// StepCount counts the steps across all waves.
func (p *Plan) StepCount() int {
	n := 0
	for _, w := range p.Waves {
		n += len(w.Steps)
	}

	return n
}

// Build computes the execution plan. In-degrees are derived from depends_on
// edges; the zero-in-degree frontier is extracted repeatedly, clustered by
// parallel group (groupless steps become singleton clusters) and emitted as
// waves, then dependents' in-degrees are decremented. Tie-break within a
// frontier is stable by the step order hint, then declaration index.
func Build(steps []*models.WorkflowStep) (*Plan, error) {
	index := make(map[string]int, len(steps))
	for i, step := range steps {
		if _, dup := index[step.ID]; dup {
			return nil, models.StructureError(step.ID, "duplicate step id")
		}

		index[step.ID] = i
	}

	g := newStepGraph(len(steps))
	indegree := make([]int, len(steps))

	for i, step := range steps {
		for _, dep := range step.DependsOn {
			from, ok := index[dep]
			if !ok {
				return nil, models.StructureError(step.ID, fmt.Sprintf("depends_on references unknown step %q", dep))
			}

			g.addEdge(from, i)
			indegree[i]++
		}
	}

	if !g.acyclic() {
		return nil, fmt.Errorf("%w: step graph is not acyclic", models.ErrCyclicDependency)
	}

	plan := &Plan{}
	scheduled := make([]bool, len(steps))
	remaining := len(steps)

	for remaining > 0 {
		frontier := make([]int, 0, remaining)

		for i := range steps {
			if !scheduled[i] && indegree[i] == 0 {
				frontier = append(frontier, i)
			}
		}

		if len(frontier) == 0 {
			return nil, fmt.Errorf("%w: unschedulable steps: %s",
				models.ErrCyclicDependency, strings.Join(unscheduledIDs(steps, scheduled), ", "))
		}

		sort.SliceStable(frontier, func(a, b int) bool {
			if steps[frontier[a]].Order != steps[frontier[b]].Order {
				return steps[frontier[a]].Order < steps[frontier[b]].Order
			}

			return frontier[a] < frontier[b]
		})

		plan.Waves = append(plan.Waves, clusterFrontier(steps, frontier)...)

		for _, i := range frontier {
			scheduled[i] = true
			remaining--

			g.Visit(i, func(w int, _ int64) bool {
				indegree[w]--

				return false
			})
		}
	}

	return plan, nil
}

// clusterFrontier groups frontier steps by parallel group, keeping each
// cluster at the position of its first member.
func clusterFrontier(steps []*models.WorkflowStep, frontier []int) []Wave {
	waves := make([]Wave, 0, len(frontier))
	position := make(map[string]int)

	for _, i := range frontier {
		step := steps[i]

		if step.ParallelGroup == "" {
			waves = append(waves, Wave{Steps: []*models.WorkflowStep{step}})

			continue
		}

		if at, ok := position[step.ParallelGroup]; ok {
			waves[at].Steps = append(waves[at].Steps, step)

			continue
		}

		position[step.ParallelGroup] = len(waves)
		waves = append(waves, Wave{Group: step.ParallelGroup, Steps: []*models.WorkflowStep{step}})
	}

	return waves
}

func unscheduledIDs(steps []*models.WorkflowStep, scheduled []bool) []string {
	var ids []string

	for i, step := range steps {
		if !scheduled[i] {
			ids = append(ids, step.ID)
		}
	}

	return ids
}
