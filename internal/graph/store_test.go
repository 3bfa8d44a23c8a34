package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("proj-1", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_AddEdge(t *testing.T) {
	s := newTestStore(t)

	d, err := s.AddEdge("a", "b", "", 5)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if d.ID == "" {
		t.Error("expected generated edge ID")
	}
	if d.Type != FinishToStart {
		t.Errorf("expected FS default, got %s", d.Type)
	}
	if d.LagMinutes != 5 {
		t.Errorf("expected lag 5, got %d", d.LagMinutes)
	}
	if d.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := s.Get(d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PredecessorID != "a" || got.SuccessorID != "b" {
		t.Errorf("unexpected edge %+v", got)
	}
}

func TestStore_SelfDependency(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddEdge("a", "a", FinishToStart, 0)
	if !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
}

func TestStore_DuplicateDependency(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddEdge("a", "b", FinishToStart, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	// Same pair with a different relation is still a duplicate.
	_, err := s.AddEdge("a", "b", StartToStart, 10)
	if !errors.Is(err, ErrDuplicateDependency) {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}
	if n := len(s.Edges()); n != 1 {
		t.Errorf("expected 1 edge after rejected insert, got %d", n)
	}
}

func TestStore_ReverseEdgeIsCircular(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddEdge("A", "B", FinishToStart, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	_, err := s.AddEdge("B", "A", FinishToStart, 0)
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
}

func TestStore_TransitiveCycle(t *testing.T) {
	s := newTestStore(t)
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}} {
		if _, err := s.AddEdge(e[0], e[1], FinishToStart, 0); err != nil {
			t.Fatalf("AddEdge %v: %v", e, err)
		}
	}
	if _, err := s.AddEdge("d", "a", StartToStart, 0); !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
	// A forward shortcut is fine.
	if _, err := s.AddEdge("a", "d", FinishToStart, 0); err != nil {
		t.Fatalf("unexpected error for forward shortcut: %v", err)
	}
}

func TestStore_InvalidRelation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddEdge("a", "b", "XY", 0); !errors.Is(err, ErrInvalidRelation) {
		t.Fatalf("expected ErrInvalidRelation, got %v", err)
	}
}

func TestStore_RemoveEdge(t *testing.T) {
	s := newTestStore(t)
	d, err := s.AddEdge("a", "b", FinishToStart, 0)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := s.RemoveEdge(d.ID); err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}
	if err := s.RemoveEdge(d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second removal, got %v", err)
	}
	if s.CanReach("a", "b") {
		t.Error("a should no longer reach b")
	}
	// The reverse edge is now legal.
	if _, err := s.AddEdge("b", "a", FinishToStart, 0); err != nil {
		t.Fatalf("expected reverse edge to be accepted after removal: %v", err)
	}
}

func TestStore_EdgesForTask(t *testing.T) {
	s := newTestStore(t)
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}, {"x", "y"}} {
		if _, err := s.AddEdge(e[0], e[1], FinishToStart, 0); err != nil {
			t.Fatalf("AddEdge %v: %v", e, err)
		}
	}

	edges := s.EdgesForTask("b")
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges touching b, got %d", len(edges))
	}
	if edges[0].SuccessorID != "b" || edges[1].PredecessorID != "b" {
		t.Errorf("expected insertion order, got %+v", edges)
	}
	if len(s.EdgesForTask("zzz")) != 0 {
		t.Error("expected no edges for unknown task")
	}
}

func TestNewStore_RejectsCyclicHistory(t *testing.T) {
	_, err := NewStore("p", []Dependency{fs("a", "b"), fs("b", "a")})
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
}

func TestNewStore_KeepsExistingIDs(t *testing.T) {
	s, err := NewStore("p", []Dependency{{ID: "dep-1", PredecessorID: "a", SuccessorID: "b"}})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Get("dep-1"); err != nil {
		t.Errorf("expected dep-1 to be kept: %v", err)
	}
}

// Inserting edges that only go "forward" in a fixed order can never close
// a cycle, and inserting the reverse of any reachable pair always does.
func TestStore_CycleDetectionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 25; trial++ {
		s := newTestStore(t)
		n := 12
		for k := 0; k < 30; k++ {
			i, j := rng.Intn(n), rng.Intn(n)
			if i == j {
				continue
			}
			if i > j {
				i, j = j, i
			}
			_, err := s.AddEdge(fmt.Sprintf("t%02d", i), fmt.Sprintf("t%02d", j), FinishToStart, 0)
			if errors.Is(err, ErrCircularDependency) {
				t.Fatalf("trial %d: acyclic insert reported a cycle: %v", trial, err)
			}
		}

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				from, to := fmt.Sprintf("t%02d", i), fmt.Sprintf("t%02d", j)
				if i == j || !s.CanReach(from, to) {
					continue
				}
				if _, err := s.AddEdge(to, from, FinishToStart, 0); !errors.Is(err, ErrCircularDependency) {
					t.Fatalf("trial %d: %s reaches %s but reverse insert gave %v", trial, from, to, err)
				}
			}
		}
	}
}
