package chain

import (
	"errors"

	"github.com/joshharrison/chainloom/internal/cpm"
	"github.com/joshharrison/chainloom/internal/graph"
)

// ErrEmptyProject is returned when a snapshot has no tasks.
var ErrEmptyProject = errors.New("project has no tasks")

// WarningLevelingDidNotConverge is the warning code recorded when resource
// leveling hits Policy.MaxLevelingIterations.
const WarningLevelingDidNotConverge = "ResourceLevelingDidNotConverge"

// Chain is an ordered path of tasks through the dependency graph.
type Chain struct {
	TaskIDs         []string `json:"taskIds" yaml:"taskIds"`
	DurationMinutes int      `json:"durationMinutes" yaml:"durationMinutes"` // sum of task durations
}

// Len returns the number of tasks on the chain.
func (c Chain) Len() int { return len(c.TaskIDs) }

// FeedingChain is a non-critical chain that merges into the critical
// chain at MergeTaskID.
type FeedingChain struct {
	MergeTaskID   string `json:"mergeTaskId" yaml:"mergeTaskId"`
	Chain         `yaml:",inline"`
	BufferMinutes int `json:"bufferMinutes" yaml:"bufferMinutes"`
}

// Warning is a non-fatal condition surfaced with an analysis.
type Warning struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// Analysis is the full output of one critical chain analysis run.
type Analysis struct {
	ProjectID string

	// Schedule is the resource-leveled schedule the chain was derived from.
	Schedule *cpm.CPMResult

	// LogicalPath is the zero-slack longest path before resource leveling.
	LogicalPath Chain

	// CriticalChain is the zero-slack longest path after leveling.
	CriticalChain Chain

	// PlannedFinish is the leveled project finish in minutes from epoch.
	PlannedFinish int

	ProjectBufferMinutes int
	FeedingChains        []FeedingChain

	// ResourceEdges are the FS edges synthesized by leveling, in the
	// order they were added.
	ResourceEdges  []graph.Dependency
	LevelingRounds int
	Converged      bool

	Warnings []Warning
}

// HasWarning reports whether a warning with the given code was recorded.
func (a *Analysis) HasWarning(code string) bool {
	for _, w := range a.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
