package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/chainloom/internal/metrics"
)

// Store holds a project's dependency edges and enforces the graph
// invariants at insertion time: no self-dependency, no duplicate pair,
// and no cycle.
//
// Store is safe for concurrent use.
type Store struct {
	projectID string

	mu    sync.RWMutex
	order []string               // edge IDs in insertion order
	byID  map[string]*Dependency // edge ID -> edge
	pairs map[[2]string]string   // (pred, succ) -> edge ID
	succs map[string][]string    // pred -> successors

	now   func() time.Time
	newID func() string
}

// NewStore creates a store for projectID preloaded with existing edges.
// Each existing edge is validated in order exactly as AddEdge would, so a
// persisted edge set that violates the invariants is rejected.
func NewStore(projectID string, existing []Dependency) (*Store, error) {
	s := &Store{
		projectID: projectID,
		byID:      make(map[string]*Dependency),
		pairs:     make(map[[2]string]string),
		succs:     make(map[string][]string),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, d := range existing {
		if _, err := s.insert(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ProjectID returns the project the store belongs to.
func (s *Store) ProjectID() string { return s.projectID }

// AddEdge records that successor depends on predecessor with the given
// relation and lag. On failure nothing is committed.
func (s *Store) AddEdge(predecessor, successor string, typ RelationType, lag int) (*Dependency, error) {
	d, err := s.insert(Dependency{
		PredecessorID: predecessor,
		SuccessorID:   successor,
		Type:          typ,
		LagMinutes:    lag,
	})
	if err != nil {
		metrics.DependencyRejected(Kind(err))
		return nil, err
	}
	return d, nil
}

func (s *Store) insert(d Dependency) (*Dependency, error) {
	rel, err := ParseRelation(string(d.Type))
	if err != nil {
		return nil, err
	}
	d.Type = rel
	if d.PredecessorID == "" || d.SuccessorID == "" {
		return nil, newError(ErrUnknownTask, "predecessor and successor are required")
	}
	if d.PredecessorID == d.SuccessorID {
		return nil, newError(ErrSelfDependency, "%q", d.PredecessorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{d.PredecessorID, d.SuccessorID}
	if _, dup := s.pairs[key]; dup {
		return nil, newError(ErrDuplicateDependency, "%q -> %q", d.PredecessorID, d.SuccessorID)
	}
	if s.reachLocked(d.SuccessorID, d.PredecessorID) {
		return nil, newError(ErrCircularDependency, "%q already reaches %q", d.SuccessorID, d.PredecessorID)
	}

	if d.ID == "" {
		d.ID = s.newID()
	}
	if _, dup := s.byID[d.ID]; dup {
		return nil, newError(ErrDuplicateDependency, "edge id %q", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}

	edge := d
	s.byID[edge.ID] = &edge
	s.order = append(s.order, edge.ID)
	s.pairs[key] = edge.ID
	s.succs[edge.PredecessorID] = append(s.succs[edge.PredecessorID], edge.SuccessorID)

	out := edge
	return &out, nil
}

// RemoveEdge deletes the edge with the given ID. Removal cannot introduce a
// cycle, so no re-validation happens.
func (s *Store) RemoveEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byID[id]
	if !ok {
		return newError(ErrNotFound, "%q", id)
	}
	delete(s.byID, id)
	delete(s.pairs, [2]string{d.PredecessorID, d.SuccessorID})

	for i, eid := range s.order {
		if eid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	succ := s.succs[d.PredecessorID]
	for i, t := range succ {
		if t == d.SuccessorID {
			succ = append(succ[:i], succ[i+1:]...)
			break
		}
	}
	if len(succ) == 0 {
		delete(s.succs, d.PredecessorID)
	} else {
		s.succs[d.PredecessorID] = succ
	}
	return nil
}

// Get returns the edge with the given ID.
func (s *Store) Get(id string) (Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return Dependency{}, newError(ErrNotFound, "%q", id)
	}
	return *d, nil
}

// EdgesForTask returns every edge where taskID is either endpoint, in
// insertion order. Intended for display; the scheduling passes use Edges.
func (s *Store) EdgesForTask(taskID string) []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Dependency
	for _, id := range s.order {
		d := s.byID[id]
		if d.PredecessorID == taskID || d.SuccessorID == taskID {
			out = append(out, *d)
		}
	}
	return out
}

// Edges returns all edges of the project in insertion order.
func (s *Store) Edges() []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Dependency, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// CanReach reports whether a directed path from -> ... -> to exists in
// the current edge set.
func (s *Store) CanReach(from, to string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reachLocked(from, to)
}

// reachLocked is a breadth-first search from `from` following
// predecessor -> successor edges, looking for `to` in the frontier.
func (s *Store) reachLocked(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range s.succs[cur] {
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
