package cpm

import (
	"fmt"
	"sort"

	"github.com/joshharrison/chainloom/internal/graph"
)

// Analyze performs forward and backward passes over a task graph and
// returns earliest/latest start and finish times per task.
//
// Each edge constrains its successor according to its relation:
//
//	FS: succ.ES >= pred.EF + lag
//	SS: succ.ES >= pred.ES + lag
//	FF: succ.EF >= pred.EF + lag
//	SF: succ.EF >= pred.ES + lag
//
// No task starts before the epoch. A task with unset effort has duration 0.
func Analyze(g *graph.Graph) (*CPMResult, error) {
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	n := g.TaskCount()
	dur := make([]int, n)
	for h := 0; h < n; h++ {
		dur[h] = g.Node(h).Duration
	}

	es := make([]int, n)
	ef := make([]int, n)
	ls := make([]int, n)
	lf := make([]int, n)

	// Forward pass: ES = max over incoming constraints (and 0)
	for _, v := range order {
		start := 0
		for _, ei := range g.In(v) {
			e := g.Edge(ei)
			var c int
			switch e.Type {
			case graph.StartToStart:
				c = es[e.From] + e.Lag
			case graph.FinishToFinish:
				c = ef[e.From] + e.Lag - dur[v]
			case graph.StartToFinish:
				c = es[e.From] + e.Lag - dur[v]
			default:
				c = ef[e.From] + e.Lag
			}
			if c > start {
				start = c
			}
		}
		es[v] = start
		ef[v] = start + dur[v]
	}

	// Project finish is the latest earliest finish among sinks. A task
	// with successors that finishes later than this (possible with SS, SF
	// or negative lags) ends up with negative slack and fails verify.
	total := 0
	for h := 0; h < n; h++ {
		if len(g.Out(h)) == 0 && ef[h] > total {
			total = ef[h]
		}
	}

	// Backward pass: LF = min over outgoing constraints (and project finish)
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		finish := total
		for _, ei := range g.Out(u) {
			e := g.Edge(ei)
			var c int
			switch e.Type {
			case graph.StartToStart:
				c = ls[e.To] - e.Lag + dur[u]
			case graph.FinishToFinish:
				c = lf[e.To] - e.Lag
			case graph.StartToFinish:
				c = lf[e.To] - e.Lag + dur[u]
			default:
				c = ls[e.To] - e.Lag
			}
			if c < finish {
				finish = c
			}
		}
		lf[u] = finish
		ls[u] = finish - dur[u]
	}

	result := &CPMResult{
		Tasks:         make(map[string]*TaskSchedule, n),
		TotalDuration: total,
		TopoOrder:     make([]string, 0, n),
		ES:            es,
		EF:            ef,
		LS:            ls,
		LF:            lf,
	}

	for _, h := range order {
		id := g.Node(h).ID
		result.TopoOrder = append(result.TopoOrder, id)
		ts := &TaskSchedule{
			TaskID:   id,
			Duration: dur[h],
			ES:       es[h],
			EF:       ef[h],
			LS:       ls[h],
			LF:       lf[h],
			Slack:    ls[h] - es[h],
		}
		ts.IsCritical = ts.Slack == 0
		result.Tasks[id] = ts
	}

	if err := verify(result); err != nil {
		return nil, err
	}

	result.Waves = computeWaves(result)

	return result, nil
}

// verify rejects negative slack. It is reported, never clamped.
func verify(result *CPMResult) error {
	for _, id := range result.TopoOrder {
		ts := result.Tasks[id]
		if ts.Slack < 0 {
			return fmt.Errorf("%w: task %s has slack %d (ES=%d LS=%d)",
				ErrScheduleInconsistency, id, ts.Slack, ts.ES, ts.LS)
		}
	}
	return nil
}

// topoSort performs Kahn's algorithm over graph handles. The ready queue
// is kept in ascending handle order, which is task ID order.
func topoSort(g *graph.Graph) ([]int, error) {
	n := g.TaskCount()
	inDegree := make([]int, n)
	var queue []int
	for h := 0; h < n; h++ {
		inDegree[h] = len(g.In(h))
		if inDegree[h] == 0 {
			queue = append(queue, h)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []int
		for _, ei := range g.Out(node) {
			succ := g.Edge(ei).To
			inDegree[succ]--
			if inDegree[succ] == 0 {
				newReady = append(newReady, succ)
			}
		}
		sort.Ints(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != n {
		cycle := g.FindCycle()
		return nil, fmt.Errorf("topological sort failed (%d of %d tasks sorted): %w", len(order), n, graph.CycleError(cycle))
	}

	return order, nil
}

// computeWaves groups tasks that share an earliest start. Within a wave
// zero-slack tasks come first, then task ID order.
func computeWaves(result *CPMResult) []Wave {
	ids := append([]string(nil), result.TopoOrder...)
	sort.Slice(ids, func(i, j int) bool {
		a, b := result.Tasks[ids[i]], result.Tasks[ids[j]]
		switch {
		case a.ES != b.ES:
			return a.ES < b.ES
		case a.IsCritical != b.IsCritical:
			return a.IsCritical
		}
		return a.TaskID < b.TaskID
	})

	var waves []Wave
	for _, id := range ids {
		ts := result.Tasks[id]
		if len(waves) == 0 || waves[len(waves)-1].Start != ts.ES {
			waves = append(waves, Wave{Index: len(waves), Start: ts.ES})
		}
		w := &waves[len(waves)-1]
		w.TaskIDs = append(w.TaskIDs, id)
		w.IsCritical = w.IsCritical || ts.IsCritical
		ts.Wave = w.Index
	}
	return waves
}
