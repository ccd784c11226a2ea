// Package depgraph resolves execution order over a project's
// dependency edges: Kahn's-algorithm topological
// ordering with a deterministic tie-break, three-color depth-first
// cycle detection, and per-item readiness. The graph operates on an
// in-memory view of integer ids and edge records so the scheduler can
// run checks without a store query per node.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Graph is an immutable snapshot of a project's non-deleted work items
// and dependency edges. Build one per scheduling decision; it is cheap
// relative to the agent work it orders.
type Graph struct {
	items map[int64]*types.WorkItem
	// dependsOn[id] lists the ids that id depends on.
	dependsOn map[int64][]int64
	// dependents[id] lists the ids that depend on id.
	dependents map[int64][]int64
}

// New builds a graph from items and edges. Edges whose endpoints are
// not in items (deleted or foreign) are ignored rather than rejected:
// soft-delete is non-cascading, so dangling edges are an expected
// condition, not corruption.
func New(items []*types.WorkItem, edges []*types.DependencyEdge) *Graph {
	g := &Graph{
		items:      make(map[int64]*types.WorkItem, len(items)),
		dependsOn:  make(map[int64][]int64),
		dependents: make(map[int64][]int64),
	}
	for _, it := range items {
		if it.Deleted() {
			continue
		}
		g.items[it.ID] = it
	}
	for _, e := range edges {
		if _, ok := g.items[e.DependentID]; !ok {
			continue
		}
		if _, ok := g.items[e.DependsOnID]; !ok {
			continue
		}
		g.dependsOn[e.DependentID] = append(g.dependsOn[e.DependentID], e.DependsOnID)
		g.dependents[e.DependsOnID] = append(g.dependents[e.DependsOnID], e.DependentID)
	}
	return g
}

// Item returns the work item for id, or nil.
func (g *Graph) Item(id int64) *types.WorkItem { return g.items[id] }

// DependsOn returns the ids id directly depends on.
func (g *Graph) DependsOn(id int64) []int64 { return g.dependsOn[id] }

// Dependents returns the ids that directly depend on id.
func (g *Graph) Dependents(id int64) []int64 { return g.dependents[id] }

// Ready reports whether every direct dependency of id is completed;
// an item with no dependencies is trivially ready.
func (g *Graph) Ready(id int64) bool {
	for _, dep := range g.dependsOn[id] {
		item := g.items[dep]
		if item == nil || item.Status != types.StatusCompleted {
			return false
		}
	}
	return true
}

// TopologicalOrder produces a deterministic ordering of every item in
// the graph using Kahn's algorithm, breaking ties by (priority desc,
// created_at asc, id asc). Returns a DeadlockError naming the cycle
// members if the graph is not a DAG.
func (g *Graph) TopologicalOrder() ([]int64, error) {
	indegree := make(map[int64]int, len(g.items))
	for id := range g.items {
		indegree[id] = 0
	}
	for id, deps := range g.dependsOn {
		indegree[id] = len(deps)
	}

	frontier := make([]int64, 0, len(g.items))
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]int64, 0, len(g.items))
	for len(frontier) > 0 {
		g.sortByPriority(frontier)
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)
		for _, dep := range g.dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}

	if len(order) != len(g.items) {
		cycle := g.FindCycle()
		return nil, cycleError(cycle)
	}
	return order, nil
}

// sortByPriority orders ids by (priority desc, created_at asc, id
// asc), the tie-break that keeps the ordering deterministic.
func (g *Graph) sortByPriority(ids []int64) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.items[ids[i]], g.items[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// color marks for the DFS cycle detector.
type color uint8

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// FindCycle returns the ids of one dependency cycle, or nil if the
// graph is acyclic. Uses three-color depth-first search; the returned
// slice walks the cycle in dependency order starting from an arbitrary
// member.
func (g *Graph) FindCycle() []int64 {
	colors := make(map[int64]color, len(g.items))
	parent := make(map[int64]int64)

	roots := make([]int64, 0, len(g.items))
	for id := range g.items {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	var cycle []int64
	var visit func(id int64) bool
	visit = func(id int64) bool {
		colors[id] = gray
		deps := append([]int64(nil), g.dependsOn[id]...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, dep := range deps {
			switch colors[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				// Back edge: dep .. id is a cycle.
				cycle = []int64{dep}
				for at := id; at != dep; at = parent[at] {
					cycle = append(cycle, at)
				}
				reverse(cycle)
				return true
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range roots {
		if colors[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// HasCycleAmong reports a cycle restricted to items in the given
// statuses — the scheduler's pre-check runs it over pending/ready items
// only.
func (g *Graph) HasCycleAmong(statuses ...types.WorkItemStatus) []int64 {
	allowed := make(map[types.WorkItemStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	sub := make([]*types.WorkItem, 0, len(g.items))
	for _, it := range g.items {
		if allowed[it.Status] {
			sub = append(sub, it)
		}
	}
	edges := make([]*types.DependencyEdge, 0)
	for id, deps := range g.dependsOn {
		for _, dep := range deps {
			edges = append(edges, &types.DependencyEdge{DependentID: id, DependsOnID: dep})
		}
	}
	return New(sub, edges).FindCycle()
}

func reverse(ids []int64) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// cycleError builds a DeadlockError naming every participating id.
func cycleError(cycle []int64) error {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return errorkit.New(errorkit.KindDeadlockError,
		fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> ")))
}

// CycleError exposes cycleError for callers (the scheduler) that
// detect a cycle through HasCycleAmong and need the same error shape.
func CycleError(cycle []int64) error { return cycleError(cycle) }
