package graph

import (
	"sort"
)

// Node is a task in the dense graph arena. Its handle is its index in
// the graph's node slice, which is sorted by task ID.
type Node struct {
	ID        string
	Duration  int
	Resources []string
}

// Edge is a dependency between two node handles.
type Edge struct {
	From, To  int
	Type      RelationType
	Lag       int
	Synthetic bool
}

// Graph is an immutable arena of tasks and dependency edges for one
// project. Nodes and edges are addressed by integer handles so the
// scheduling passes can run over dense slices.
//
// A Graph is safe for concurrent reads.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []Edge
	out   [][]int // node handle -> edge indices leaving it
	in    [][]int // node handle -> edge indices entering it
	pairs map[[2]int]struct{}
}

// NewGraph builds the arena from a task/dependency snapshot.
//
// It rejects duplicate or empty task IDs, negative effort, edges that
// reference unknown tasks, self-dependencies, duplicate (pred, succ)
// pairs and unknown relation types. Cycles are not checked here; the
// schedule pass detects them during topological sorting.
func NewGraph(tasks []Task, deps []Dependency) (*Graph, error) {
	nodes := make([]Node, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, newError(ErrInvalidTask, "task id is required")
		}
		if _, dup := seen[t.ID]; dup {
			return nil, newError(ErrInvalidTask, "duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Duration() < 0 {
			return nil, newError(ErrInvalidTask, "task %q has negative effort %d", t.ID, t.Duration())
		}
		nodes = append(nodes, Node{ID: t.ID, Duration: t.Duration(), Resources: t.ResourceIDs})
	}

	// Canonical order: by ID, so handles and every derived ordering are
	// independent of snapshot order.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	g := &Graph{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		out:   make([][]int, len(nodes)),
		in:    make([][]int, len(nodes)),
		pairs: make(map[[2]int]struct{}, len(deps)),
	}
	for i, n := range nodes {
		g.index[n.ID] = i
	}

	for _, d := range deps {
		from, ok := g.index[d.PredecessorID]
		if !ok {
			return nil, newError(ErrUnknownTask, "predecessor %q", d.PredecessorID)
		}
		to, ok := g.index[d.SuccessorID]
		if !ok {
			return nil, newError(ErrUnknownTask, "successor %q", d.SuccessorID)
		}
		rel, err := ParseRelation(string(d.Type))
		if err != nil {
			return nil, err
		}
		if err := g.addEdge(Edge{From: from, To: to, Type: rel, Lag: d.LagMinutes, Synthetic: d.Synthetic}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addEdge(e Edge) error {
	if e.From == e.To {
		return newError(ErrSelfDependency, "%q", g.nodes[e.From].ID)
	}
	key := [2]int{e.From, e.To}
	if _, dup := g.pairs[key]; dup {
		return newError(ErrDuplicateDependency, "%q -> %q", g.nodes[e.From].ID, g.nodes[e.To].ID)
	}
	g.pairs[key] = struct{}{}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.From] = append(g.out[e.From], idx)
	g.in[e.To] = append(g.in[e.To], idx)
	return nil
}

// WithEdges returns a copy of g with extra edges appended. The receiver
// is not modified. Extra edges are validated like snapshot edges.
func (g *Graph) WithEdges(extra []Edge) (*Graph, error) {
	c := &Graph{
		nodes: g.nodes,
		index: g.index,
		edges: make([]Edge, len(g.edges), len(g.edges)+len(extra)),
		out:   make([][]int, len(g.nodes)),
		in:    make([][]int, len(g.nodes)),
		pairs: make(map[[2]int]struct{}, len(g.pairs)+len(extra)),
	}
	copy(c.edges, g.edges)
	for i := range g.nodes {
		c.out[i] = append([]int(nil), g.out[i]...)
		c.in[i] = append([]int(nil), g.in[i]...)
	}
	for k := range g.pairs {
		c.pairs[k] = struct{}{}
	}
	for _, e := range extra {
		if err := c.addEdge(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.nodes)
}

// Node returns the node with the given handle.
func (g *Graph) Node(h int) Node { return g.nodes[h] }

// Handle returns the handle for a task ID.
func (g *Graph) Handle(id string) (int, bool) {
	h, ok := g.index[id]
	return h, ok
}

// Edge returns the edge with the given index.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// EdgeCount returns the number of edges, synthetic ones included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Out returns indices of edges leaving h. The slice must not be modified.
func (g *Graph) Out(h int) []int { return g.out[h] }

// In returns indices of edges entering h. The slice must not be modified.
func (g *Graph) In(h int) []int { return g.in[h] }

// Roots returns IDs of tasks with no predecessors, sorted.
func (g *Graph) Roots() []string {
	var roots []string
	for h, n := range g.nodes {
		if len(g.in[h]) == 0 {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// Leaves returns IDs of tasks with no successors, sorted.
func (g *Graph) Leaves() []string {
	var leaves []string
	for h, n := range g.nodes {
		if len(g.out[h]) == 0 {
			leaves = append(leaves, n.ID)
		}
	}
	return leaves
}

// Reachable reports whether a directed path from -> ... -> to exists.
// A node reaches itself.
func (g *Graph) Reachable(from, to int) bool {
	if from == to {
		return true
	}
	seen := make([]bool, len(g.nodes))
	seen[from] = true
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ei := range g.out[cur] {
			next := g.edges[ei].To
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Ordered reports whether a and b are already sequenced by some path in
// either direction.
func (g *Graph) Ordered(a, b int) bool {
	return g.Reachable(a, b) || g.Reachable(b, a)
}

// Dependencies converts the graph's edges back to Dependency values,
// in edge order.
func (g *Graph) Dependencies() []Dependency {
	out := make([]Dependency, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Dependency{
			PredecessorID: g.nodes[e.From].ID,
			SuccessorID:   g.nodes[e.To].ID,
			Type:          e.Type,
			LagMinutes:    e.Lag,
			Synthetic:     e.Synthetic,
		})
	}
	return out
}

// FindCycle returns one cycle as a list of task IDs (first == last), or
// nil if the graph is acyclic.
//
// Uses an iterative DFS with white/gray/black coloring so deep graphs
// cannot exhaust the goroutine stack.
func (g *Graph) FindCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	type frame struct {
		node int
		next int // position in out[node]
	}

	for start := range g.nodes {
		if color[start] != white {
			continue
		}
		parent[start] = -1
		color[start] = gray
		stack := []frame{{node: start}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.out[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := g.edges[g.out[top.node][top.next]].To
			top.next++

			switch color[next] {
			case gray:
				// Walk parents back from the current node to reconstruct.
				cycle := []string{g.nodes[next].ID}
				for cur := top.node; cur != next && cur != -1; cur = parent[cur] {
					cycle = append(cycle, g.nodes[cur].ID)
				}
				cycle = append(cycle, g.nodes[next].ID)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			case white:
				parent[next] = top.node
				color[next] = gray
				stack = append(stack, frame{node: next})
			}
		}
	}
	return nil
}
