package scheduler

import "github.com/yourbasic/graph"

// stepGraph is an arena-backed dependency graph: steps live in a flat indexed
// slice and edges reference indices, never pointers. It implements
// graph.Iterator so the step graph can be checked with graph.Acyclic.
type stepGraph struct {
	edges []map[int]struct{}
}

func newStepGraph(order int) *stepGraph {
	return &stepGraph{edges: make([]map[int]struct{}, order)}
}

// addEdge records a dependency edge from a step to its dependent.
func (g *stepGraph) addEdge(from, to int) {
	if g.edges[from] == nil {
		g.edges[from] = map[int]struct{}{}
	}

	g.edges[from][to] = struct{}{}
}

// Order implements graph.Iterator.
func (g *stepGraph) Order() int {
	return len(g.edges)
}

// Visit implements graph.Iterator.
func (g *stepGraph) Visit(v int, do func(w int, c int64) bool) bool {
	for w := range g.edges[v] {
		if do(w, 1) {
			return true
		}
	}

	return false
}

func (g *stepGraph) acyclic() bool {
	return graph.Acyclic(g)
}
