// Package snapshot reads and writes the task/dependency snapshot of one
// project: the input the analysis engine rebuilds its graph from on
// every call.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/joshharrison/chainloom/internal/graph"
)

const (
	snapshotDir  = ".chainloom"
	snapshotFile = "snapshot.json"
)

// DefaultPath is where the CLI keeps the working snapshot.
var DefaultPath = filepath.Join(snapshotDir, snapshotFile)

// ErrInvalidSnapshot is returned for malformed or inconsistent input.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

var validate = validator.New()

// Snapshot is a project's tasks and declared dependencies.
type Snapshot struct {
	ProjectID    string             `json:"projectId" validate:"required"`
	Tasks        []graph.Task       `json:"tasks" validate:"dive"`
	Dependencies []graph.Dependency `json:"dependencies" validate:"dive"`

	mu   sync.Mutex
	path string
}

// Parse decodes a snapshot in the collaborator layer's JSON shape:
//
//	{"projectId": "...",
//	 "tasks": [{"id", "effortMinutes", "assignedResourceIds", "parentTaskId"}],
//	 "dependencies": [{"id", "predecessorTaskId", "successorTaskId", "depType", "lagMinutes"}]}
//
// effortMinutes may be null or absent. depType defaults to FS and is
// case-insensitive.
func Parse(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidSnapshot)
	}
	root := gjson.ParseBytes(data)

	s := &Snapshot{ProjectID: root.Get("projectId").String()}
	var perr error

	root.Get("tasks").ForEach(func(_, v gjson.Result) bool {
		t := graph.Task{
			ID:       v.Get("id").String(),
			ParentID: v.Get("parentTaskId").String(),
		}
		if e := v.Get("effortMinutes"); e.Exists() && e.Type != gjson.Null {
			if e.Type != gjson.Number {
				perr = fmt.Errorf("%w: task %q effortMinutes is not a number", ErrInvalidSnapshot, t.ID)
				return false
			}
			n := int(e.Int())
			t.EffortMinutes = &n
		}
		for _, r := range v.Get("assignedResourceIds").Array() {
			t.ResourceIDs = append(t.ResourceIDs, r.String())
		}
		s.Tasks = append(s.Tasks, t)
		return true
	})
	if perr != nil {
		return nil, perr
	}

	root.Get("dependencies").ForEach(func(_, v gjson.Result) bool {
		rel, err := graph.ParseRelation(v.Get("depType").String())
		if err != nil {
			perr = fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
			return false
		}
		d := graph.Dependency{
			ID:            v.Get("id").String(),
			PredecessorID: v.Get("predecessorTaskId").String(),
			SuccessorID:   v.Get("successorTaskId").String(),
			Type:          rel,
			LagMinutes:    int(v.Get("lagMinutes").Int()),
		}
		if c := v.Get("createdAt"); c.Exists() && c.String() != "" {
			ts, err := time.Parse(time.RFC3339Nano, c.String())
			if err != nil {
				perr = fmt.Errorf("%w: dependency %q createdAt: %w", ErrInvalidSnapshot, d.ID, err)
				return false
			}
			d.CreatedAt = ts
		}
		s.Dependencies = append(s.Dependencies, d)
		return true
	})
	if perr != nil {
		return nil, perr
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks required fields and value ranges.
func (s *Snapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return nil
}

// New creates an empty snapshot for projectID at path and persists it.
func New(path, projectID string) (*Snapshot, error) {
	s := &Snapshot{ProjectID: projectID, path: path}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a snapshot from disk.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Exists checks if a snapshot file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Path returns the file the snapshot was loaded from or created at.
func (s *Snapshot) Path() string { return s.path }

// SetPath changes where Save writes.
func (s *Snapshot) SetPath(path string) { s.path = path }

// Save persists the snapshot to its path.
func (s *Snapshot) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("snapshot has no path")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// DependencyStore loads the snapshot's dependencies into a graph.Store,
// re-validating every edge.
func (s *Snapshot) DependencyStore() (*graph.Store, error) {
	st, err := graph.NewStore(s.ProjectID, s.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("load dependencies for %s: %w", s.ProjectID, err)
	}
	return st, nil
}

// SetDependencies replaces the dependency list, typically with
// Store.Edges after an add or remove, and saves.
func (s *Snapshot) SetDependencies(deps []graph.Dependency) error {
	s.mu.Lock()
	s.Dependencies = deps
	s.mu.Unlock()
	return s.Save()
}

// UpsertTask adds a task or replaces the one with the same ID, and saves.
func (s *Snapshot) UpsertTask(t graph.Task) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	s.mu.Lock()
	replaced := false
	for i := range s.Tasks {
		if s.Tasks[i].ID == t.ID {
			s.Tasks[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		s.Tasks = append(s.Tasks, t)
	}
	s.mu.Unlock()
	return s.Save()
}

// HasTask reports whether a task with the given ID exists.
func (s *Snapshot) HasTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
