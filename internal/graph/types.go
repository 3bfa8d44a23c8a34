package graph

import (
	"strings"
	"time"
)

// RelationType is the temporal relation a dependency imposes between its
// predecessor and successor.
type RelationType string

const (
	FinishToStart  RelationType = "FS"
	StartToStart   RelationType = "SS"
	FinishToFinish RelationType = "FF"
	StartToFinish  RelationType = "SF"
)

// IsValid reports whether r is one of the four supported relations.
func (r RelationType) IsValid() bool {
	switch r {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// ParseRelation normalizes a relation name. The empty string means FS.
func ParseRelation(s string) (RelationType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return FinishToStart, nil
	}
	r := RelationType(s)
	if !r.IsValid() {
		return "", newError(ErrInvalidRelation, "%q", s)
	}
	return r, nil
}

// Task is a read-only view of a project task as the engine needs it.
type Task struct {
	ID            string   `json:"id" yaml:"id" validate:"required"`
	EffortMinutes *int     `json:"effortMinutes,omitempty" yaml:"effortMinutes,omitempty" validate:"omitempty,gte=0"`
	ResourceIDs   []string `json:"assignedResourceIds,omitempty" yaml:"assignedResourceIds,omitempty" validate:"dive,required"`
	ParentID      string   `json:"parentTaskId,omitempty" yaml:"parentTaskId,omitempty"` // not used by scheduling
}

// Duration returns the task's effort in minutes; unset effort counts as zero.
func (t Task) Duration() int {
	if t.EffortMinutes == nil {
		return 0
	}
	return *t.EffortMinutes
}

// Minutes is a helper for building tasks with an explicit effort.
func Minutes(n int) *int { return &n }

// Dependency is a directed edge: SuccessorID depends on PredecessorID.
type Dependency struct {
	ID            string       `json:"id" yaml:"id"`
	PredecessorID string       `json:"predecessorTaskId" yaml:"predecessorTaskId" validate:"required"`
	SuccessorID   string       `json:"successorTaskId" yaml:"successorTaskId" validate:"required"`
	Type          RelationType `json:"depType" yaml:"depType" validate:"omitempty,oneof=FS SS FF SF"`
	LagMinutes    int          `json:"lagMinutes" yaml:"lagMinutes"`
	CreatedAt     time.Time    `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`

	// Synthetic marks an edge added by resource leveling rather than a
	// user-declared dependency. Synthetic edges are never persisted.
	Synthetic bool `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
}
