package chain

import (
	"github.com/joshharrison/chainloom/internal/cpm"
	"github.com/joshharrison/chainloom/internal/graph"
)

// pathTable holds, per node handle, the heaviest path of allowed nodes
// ending at that node. path[h] is nil for nodes that were not allowed.
type pathTable struct {
	sum  []int
	path [][]int
}

// longestPaths runs a longest-path DP over allowed nodes in topological
// order, following only edges whose endpoints are both allowed. Weight is
// the sum of task durations. Ties go to the longer path, then to the one
// whose task ID sequence sorts first; handles are in ID order, so
// comparing handles suffices.
func longestPaths(g *graph.Graph, order []int, allowed func(int) bool) pathTable {
	n := g.TaskCount()
	t := pathTable{sum: make([]int, n), path: make([][]int, n)}

	for _, v := range order {
		if !allowed(v) {
			continue
		}
		bestSum := -1
		var bestPrev []int
		for _, ei := range g.In(v) {
			u := g.Edge(ei).From
			if !allowed(u) || t.path[u] == nil {
				continue
			}
			if heavier(t.sum[u], t.path[u], bestSum, bestPrev) {
				bestSum = t.sum[u]
				bestPrev = t.path[u]
			}
		}

		p := make([]int, 0, len(bestPrev)+1)
		p = append(p, bestPrev...)
		p = append(p, v)
		t.path[v] = p
		t.sum[v] = max(bestSum, 0) + g.Node(v).Duration
	}
	return t
}

// best returns the heaviest path in the table, or nil when no node was
// allowed.
func (t pathTable) best() []int {
	bestSum := -1
	var best []int
	for h, p := range t.path {
		if p == nil {
			continue
		}
		if heavier(t.sum[h], p, bestSum, best) {
			bestSum = t.sum[h]
			best = p
		}
	}
	return best
}

// heavier reports whether path a outranks path b. Equal durations go to
// the path with more tasks, so zero-length milestones stay on the chain.
func heavier(sumA int, a []int, sumB int, b []int) bool {
	if sumA != sumB {
		return sumA > sumB
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return lexLess(a, b)
}

// lexLess compares equal-length handle sequences.
func lexLess(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// zeroSlackPath returns the heaviest path made only of zero-slack tasks.
func zeroSlackPath(g *graph.Graph, sched *cpm.CPMResult) []int {
	order := handles(g, sched.TopoOrder)
	t := longestPaths(g, order, func(h int) bool {
		return sched.LS[h] == sched.ES[h]
	})
	return t.best()
}

// handles maps task IDs to graph handles, dropping unknown IDs.
func handles(g *graph.Graph, ids []string) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if h, ok := g.Handle(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// toChain converts a handle path to a Chain.
func toChain(g *graph.Graph, path []int) Chain {
	c := Chain{TaskIDs: make([]string, 0, len(path))}
	for _, h := range path {
		n := g.Node(h)
		c.TaskIDs = append(c.TaskIDs, n.ID)
		c.DurationMinutes += n.Duration
	}
	return c
}

func durations(g *graph.Graph, path []int) []int {
	out := make([]int, len(path))
	for i, h := range path {
		out[i] = g.Node(h).Duration
	}
	return out
}
