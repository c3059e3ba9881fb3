package depgraph

import (
	"math"

	"github.com/tomfevang/datasmith/internal/introspect"
)

// Edge is a parent -> child FK dependency. Score is the cost of removing
// it when breaking a cycle: cheapest first, so cycles are broken through
// columns the database can tolerate being set later (nullable or
// defaulted FK columns).
type Edge struct {
	Parent string
	Child  string
	Score  float64
}

// Sort orders tables so that no table precedes one of its FK parents.
// Cycles are broken by repeatedly removing the lowest-scored edge of a
// detected cycle until the graph is acyclic. Returns the order and the
// removed edges. names fixes the base iteration order; self-referencing
// FKs never form edges.
func Sort(names []string, tables map[string]*introspect.Table) ([]string, []Edge) {
	children := make(map[string][]string)
	scores := make(map[[2]string]float64)

	for _, child := range names {
		t, ok := tables[child]
		if !ok {
			continue
		}
		for _, col := range t.Columns {
			if col.FK == nil {
				continue
			}
			parent := col.FK.Table
			if parent == child {
				continue
			}
			if _, ok := tables[parent]; !ok {
				continue
			}
			key := [2]string{parent, child}
			if _, seen := scores[key]; seen {
				continue
			}
			scores[key] = scoreEdge(t, parent)
			children[parent] = append(children[parent], child)
		}
	}

	var removed []Edge
	for {
		cycle := findCycle(names, children)
		if cycle == nil {
			break
		}

		min := cycle[0]
		for _, e := range cycle[1:] {
			if scores[[2]string{e[0], e[1]}] < scores[[2]string{min[0], min[1]}] {
				min = e
			}
		}
		removeEdge(children, min[0], min[1])
		removed = append(removed, Edge{
			Parent: min[0],
			Child:  min[1],
			Score:  scores[[2]string{min[0], min[1]}],
		})
	}

	return topoSort(names, children), removed
}

// scoreEdge scores the parent -> child edge by the first column of the
// child carrying that FK.
func scoreEdge(child *introspect.Table, parent string) float64 {
	for _, col := range child.Columns {
		if col.FK == nil || col.FK.Table != parent {
			continue
		}
		hasDefault := col.Default != nil
		switch {
		case col.Nullable && hasDefault:
			return 0
		case col.Nullable:
			return 1
		case hasDefault:
			return 2
		}
	}
	return math.Inf(1)
}

// findCycle runs a DFS over the live adjacency and returns the edges of
// the first cycle found, in path order, or nil when the graph is acyclic.
func findCycle(names []string, children map[string][]string) [][2]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, next := range children[node] {
			if color[next] == gray {
				// Found cycle. Reconstruct path; first and last node coincide.
				cyclePath = []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cyclePath = append(cyclePath, cur)
				}
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[next] == white {
				parent[next] = node
				if dfs(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, name := range names {
		if color[name] == white {
			if dfs(name) {
				edges := make([][2]string, 0, len(cyclePath)-1)
				for i := 0; i+1 < len(cyclePath); i++ {
					edges = append(edges, [2]string{cyclePath[i], cyclePath[i+1]})
				}
				return edges
			}
		}
	}

	return nil
}

func removeEdge(children map[string][]string, parent, child string) {
	kids := children[parent]
	for i, c := range kids {
		if c == child {
			children[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

// topoSort runs Kahn's algorithm; the ready queue is seeded and consumed
// in the base name order so the output is deterministic.
func topoSort(names []string, children map[string][]string) []string {
	inDegree := make(map[string]int, len(names))
	for _, name := range names {
		inDegree[name] = 0
	}
	for _, kids := range children {
		for _, child := range kids {
			inDegree[child]++
		}
	}

	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, child := range children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	return order
}
