package cpm

import "errors"

// ErrScheduleInconsistency is returned when the passes produce negative
// slack, meaning the supplied lags contradict each other.
var ErrScheduleInconsistency = errors.New("schedule inconsistency")

// CPMResult holds the complete schedule for one graph.
type CPMResult struct {
	Tasks         map[string]*TaskSchedule
	TotalDuration int      // project finish: max earliest finish
	Waves         []Wave   // parallelizable groups
	TopoOrder     []string // task IDs in topological order

	// Dense copies indexed by graph handle, for callers that re-run the
	// passes repeatedly (resource leveling).
	ES, EF, LS, LF []int
}

// TaskSchedule holds the scheduling info for a single task. All times are
// minutes relative to the project epoch.
type TaskSchedule struct {
	TaskID     string
	Duration   int
	ES, EF     int // earliest start/finish
	LS, LF     int // latest start/finish
	Slack      int
	IsCritical bool
	OnChain    bool // set by MarkChain; a zero-slack task need not be on it
	Wave       int  // which parallel wave this belongs to
}

// Wave represents a group of tasks sharing an earliest start.
type Wave struct {
	Index      int
	Start      int
	TaskIDs    []string
	IsCritical bool // true if wave contains zero-slack tasks
	OnChain    bool // true if wave contains a MarkChain task
}

// MarkChain flags the given tasks, and the waves holding them, as members
// of the chosen chain. Unknown IDs are ignored.
func (r *CPMResult) MarkChain(ids []string) {
	for _, id := range ids {
		ts, ok := r.Tasks[id]
		if !ok {
			continue
		}
		ts.OnChain = true
		if ts.Wave < len(r.Waves) {
			r.Waves[ts.Wave].OnChain = true
		}
	}
}
