package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for dependency graph failures. Callers match them with
// errors.Is; the concrete value is always an *Error carrying detail.
var (
	ErrSelfDependency      = errors.New("task cannot depend on itself")
	ErrDuplicateDependency = errors.New("dependency already exists")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrNotFound            = errors.New("dependency not found")
	ErrUnknownTask         = errors.New("unknown task")
	ErrInvalidTask         = errors.New("invalid task")
	ErrInvalidRelation     = errors.New("invalid relation type")
)

// Error wraps a graph failure kind with a message naming the offending
// tasks or edge.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// CycleError reports a cycle, listing the path when one could be extracted.
func CycleError(path []string) error {
	if len(path) == 0 {
		return &Error{Kind: ErrCircularDependency}
	}
	return &Error{Kind: ErrCircularDependency, Msg: strings.Join(path, " -> ")}
}

// Kind returns a short stable label for a graph error, used as a metric
// label. Unknown errors map to "other".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSelfDependency):
		return "self_dependency"
	case errors.Is(err, ErrDuplicateDependency):
		return "duplicate_dependency"
	case errors.Is(err, ErrCircularDependency):
		return "circular_dependency"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownTask):
		return "unknown_task"
	case errors.Is(err, ErrInvalidTask):
		return "invalid_task"
	case errors.Is(err, ErrInvalidRelation):
		return "invalid_relation"
	default:
		return "other"
	}
}
