package chain

import (
	"sort"

	"github.com/joshharrison/chainloom/internal/graph"
)

// feedingChains partitions the non-critical tasks that reach the critical
// chain into feeding chains.
//
// Direct predecessors of critical tasks are seeded first, in chain order
// and then by task ID; each seed takes the heaviest backward path over
// still-unassigned feeding tasks. Tasks left over (side branches that join
// a feeding chain rather than the critical chain) are seeded in reverse
// topological order and inherit the merge task of the chain they join.
func feedingChains(g *graph.Graph, order []int, critical []int, policy Policy) []FeedingChain {
	n := g.TaskCount()
	onCC := make([]bool, n)
	for _, h := range critical {
		onCC[h] = true
	}

	// feeds[h]: h is off the critical chain and has a path into it.
	feeds := make([]bool, n)
	queue := append([]int(nil), critical...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ei := range g.In(cur) {
			u := g.Edge(ei).From
			if onCC[u] || feeds[u] {
				continue
			}
			feeds[u] = true
			queue = append(queue, u)
		}
	}

	assigned := make([]bool, n)
	mergeOf := make([]int, n)
	var chains []FeedingChain

	take := func(seed, merge int) {
		t := longestPaths(g, order, func(h int) bool { return feeds[h] && !assigned[h] })
		path := t.path[seed]
		for _, h := range path {
			assigned[h] = true
			mergeOf[h] = merge
		}
		fc := FeedingChain{
			MergeTaskID: g.Node(merge).ID,
			Chain:       toChain(g, path),
		}
		fc.BufferMinutes = policy.Size(durations(g, path))
		chains = append(chains, fc)
	}

	for _, m := range critical {
		for _, u := range neighbors(g, g.In(m), true) {
			if onCC[u] || assigned[u] {
				continue
			}
			take(u, m)
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		if !feeds[v] || assigned[v] {
			continue
		}
		merge := -1
		for _, w := range neighbors(g, g.Out(v), false) {
			if onCC[w] {
				merge = w
				break
			}
			if assigned[w] {
				merge = mergeOf[w]
				break
			}
		}
		if merge < 0 {
			// Unreachable for a consistent feeds set; every successor
			// that feeds the chain was assigned earlier in this loop.
			continue
		}
		take(v, merge)
	}

	return chains
}

// neighbors returns the distinct endpoints of the given edges, sorted by
// handle. from selects the predecessor end instead of the successor end.
func neighbors(g *graph.Graph, edgeIdx []int, from bool) []int {
	out := make([]int, 0, len(edgeIdx))
	for _, ei := range edgeIdx {
		e := g.Edge(ei)
		if from {
			out = append(out, e.From)
		} else {
			out = append(out, e.To)
		}
	}
	sort.Ints(out)
	return out
}
