package chain

import (
	"fmt"
	"sort"

	"github.com/joshharrison/chainloom/internal/cpm"
	"github.com/joshharrison/chainloom/internal/graph"
)

type leveled struct {
	graph     *graph.Graph
	sched     *cpm.CPMResult
	added     []graph.Edge
	rounds    int
	converged bool
}

// level serializes tasks that share a resource and would otherwise run
// concurrently. Each round synthesizes zero-lag FS edges for every
// contending pair that is not already ordered, then re-runs the schedule.
// It stops at a fixed point or after maxRounds rounds.
func level(base *graph.Graph, sched *cpm.CPMResult, maxRounds int) (*leveled, error) {
	out := &leveled{graph: base, sched: sched}
	for round := 0; ; round++ {
		edges := contention(out.graph, out.sched)
		if len(edges) == 0 {
			out.converged = true
			return out, nil
		}
		if round >= maxRounds {
			return out, nil
		}

		g, err := out.graph.WithEdges(edges)
		if err != nil {
			return nil, fmt.Errorf("leveling round %d: %w", round+1, err)
		}
		s, err := cpm.Analyze(g)
		if err != nil {
			return nil, fmt.Errorf("leveling round %d: %w", round+1, err)
		}
		out.graph, out.sched = g, s
		out.added = append(out.added, edges...)
		out.rounds++
	}
}

// contention returns the resource edges one leveling round adds.
//
// For each resource, the tasks holding it are visited in (ES, ID) order.
// A pair whose [ES, EF) windows overlap and which neither reaches the
// other gets an edge from the earlier start to the later one. Edges added
// earlier in the same round count toward reachability, so the round
// cannot close a cycle.
func contention(g *graph.Graph, sched *cpm.CPMResult) []graph.Edge {
	byResource := make(map[string][]int)
	for h := 0; h < g.TaskCount(); h++ {
		seen := make(map[string]bool)
		for _, r := range g.Node(h).Resources {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			byResource[r] = append(byResource[r], h)
		}
	}

	resources := make([]string, 0, len(byResource))
	for r, hs := range byResource {
		if len(hs) > 1 {
			resources = append(resources, r)
		}
	}
	sort.Strings(resources)

	es, ef := sched.ES, sched.EF
	pending := make(map[int][]int)
	var added []graph.Edge

	for _, r := range resources {
		hs := byResource[r]
		sort.Slice(hs, func(i, j int) bool {
			if es[hs[i]] != es[hs[j]] {
				return es[hs[i]] < es[hs[j]]
			}
			return hs[i] < hs[j]
		})

		for i := 0; i < len(hs); i++ {
			for j := i + 1; j < len(hs); j++ {
				a, b := hs[i], hs[j]
				if es[a] >= ef[b] || es[b] >= ef[a] {
					continue
				}
				if reachWith(g, pending, a, b) || reachWith(g, pending, b, a) {
					continue
				}
				pending[a] = append(pending[a], b)
				added = append(added, graph.Edge{From: a, To: b, Type: graph.FinishToStart, Synthetic: true})
			}
		}
	}
	return added
}

// reachWith is a breadth-first reachability check over g's edges plus
// the extra adjacency in pending.
func reachWith(g *graph.Graph, pending map[int][]int, from, to int) bool {
	if from == to {
		return true
	}
	seen := make([]bool, g.TaskCount())
	seen[from] = true
	queue := []int{from}
	visit := func(next int) bool {
		if next == to {
			return true
		}
		if !seen[next] {
			seen[next] = true
			queue = append(queue, next)
		}
		return false
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ei := range g.Out(cur) {
			if visit(g.Edge(ei).To) {
				return true
			}
		}
		for _, next := range pending[cur] {
			if visit(next) {
				return true
			}
		}
	}
	return false
}
