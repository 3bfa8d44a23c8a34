package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/cpm"
	"github.com/joshharrison/chainloom/internal/graph"
	"github.com/joshharrison/chainloom/internal/snapshot"
	"github.com/joshharrison/chainloom/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *BadgerStore) {
	t.Helper()
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	analyzer, err := chain.NewAnalyzer(chain.DefaultPolicy(), nil)
	require.NoError(t, err)

	store := NewBadgerStore(db)
	m, err := NewManager(analyzer, store, DefaultZonePolicy(), nil)
	require.NoError(t, err)

	// Monotonic fake clock so each regeneration gets a distinct timestamp.
	var mu sync.Mutex
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	return m, store
}

func mergeSnapshot(projectID string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ProjectID: projectID,
		Tasks: []graph.Task{
			{ID: "A", EffortMinutes: graph.Minutes(60)},
			{ID: "B", EffortMinutes: graph.Minutes(120)},
			{ID: "C", EffortMinutes: graph.Minutes(30)},
		},
		Dependencies: []graph.Dependency{
			{PredecessorID: "A", SuccessorID: "B", Type: graph.FinishToStart},
			{PredecessorID: "C", SuccessorID: "B", Type: graph.FinishToStart},
		},
	}
}

func singleTaskSnapshot(projectID string, minutes int) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ProjectID: projectID,
		Tasks:     []graph.Task{{ID: "only", EffortMinutes: graph.Minutes(minutes)}},
	}
}

func TestRegenerate_CreatesBuffers(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)
	require.Len(t, res.Buffers, 2)
	assert.Len(t, res.BufferIDs, 2)
	assert.Empty(t, res.Archived)
	require.NotNil(t, res.Analysis)

	pb := res.Buffers[0]
	assert.Equal(t, TypeProject, pb.Type)
	assert.Equal(t, 67, pb.SizeMinutes)
	assert.Equal(t, StatusActive, pb.Status)
	assert.Equal(t, []string{"A", "B"}, pb.ChainTaskIDs)

	fb := res.Buffers[1]
	assert.Equal(t, TypeFeeding, fb.Type)
	assert.Equal(t, 15, fb.SizeMinutes)
	assert.Equal(t, "B", fb.MergeTaskID)
	assert.Equal(t, []string{"C"}, fb.ChainTaskIDs)

	active, err := m.store.ActiveBuffers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, res.Buffers, active)
}

func TestRegenerate_ArchivesPreviousSet(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)
	second, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)

	require.Len(t, second.Archived, 2)
	for i, b := range second.Archived {
		assert.Equal(t, first.Buffers[i].ID, b.ID)
		assert.Equal(t, StatusArchived, b.Status)
		require.NotNil(t, b.ArchivedAt)
	}

	// Unchanged graph: identical sizes.
	for i := range first.Buffers {
		assert.Equal(t, first.Buffers[i].SizeMinutes, second.Buffers[i].SizeMinutes)
		assert.NotEqual(t, first.Buffers[i].ID, second.Buffers[i].ID)
	}

	history, err := store.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, StatusArchived, history[0].Status)
	assert.Equal(t, StatusArchived, history[1].Status)
	assert.Equal(t, StatusActive, history[2].Status)
	assert.Equal(t, StatusActive, history[3].Status)

	active, err := store.ActiveBuffers(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRegenerate_FailedAnalysisLeavesBuffers(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)

	bad := mergeSnapshot("p1")
	bad.Dependencies = append(bad.Dependencies,
		graph.Dependency{PredecessorID: "B", SuccessorID: "A", Type: graph.FinishToStart})

	_, err = m.Regenerate(ctx, bad)
	require.ErrorIs(t, err, graph.ErrCircularDependency)

	active, err := store.ActiveBuffers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Buffers, active)

	history, err := store.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRegenerate_ScheduleInconsistencyLeavesBuffers(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)

	// a(100) starts with b(10), but b is the only sink.
	bad := &snapshot.Snapshot{
		ProjectID: "p1",
		Tasks: []graph.Task{
			{ID: "a", EffortMinutes: graph.Minutes(100)},
			{ID: "b", EffortMinutes: graph.Minutes(10)},
		},
		Dependencies: []graph.Dependency{
			{PredecessorID: "a", SuccessorID: "b", Type: graph.StartToStart},
		},
	}
	_, err = m.Regenerate(ctx, bad)
	require.ErrorIs(t, err, cpm.ErrScheduleInconsistency)

	active, err := store.ActiveBuffers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Buffers, active)

	history, err := store.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRegenerate_NilSnapshot(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Regenerate(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilSnapshot)

	_, err = m.RegenerateAll(context.Background(), []*snapshot.Snapshot{mergeSnapshot("p1"), nil})
	require.ErrorIs(t, err, ErrNilSnapshot)
}

func TestRegenerate_EmptyProjectFails(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.Regenerate(ctx, &snapshot.Snapshot{ProjectID: "empty"})
	require.ErrorIs(t, err, chain.ErrEmptyProject)

	history, err := store.History(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRegenerate_CancelledContext(t *testing.T) {
	m, store := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.ErrorIs(t, err, context.Canceled)

	history, err := store.History(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRegenerate_ConcurrentSameProject(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Regenerate(ctx, mergeSnapshot("p1"))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	active, err := store.ActiveBuffers(ctx, "p1")
	require.NoError(t, err)
	projectBuffers := 0
	for _, b := range active {
		if b.Type == TypeProject {
			projectBuffers++
		}
	}
	assert.Equal(t, 1, projectBuffers)
	assert.Len(t, active, 2)

	history, err := store.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 2*n)
}

func TestRegenerateAll(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	results, err := m.RegenerateAll(ctx, []*snapshot.Snapshot{
		mergeSnapshot("alpha"),
		singleTaskSnapshot("beta", 60),
		mergeSnapshot("alpha/sub"),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].ProjectID)
	assert.Equal(t, "beta", results[1].ProjectID)
	assert.Equal(t, 30, results[1].Buffers[0].SizeMinutes)

	// A project whose ID extends another's must not leak into it.
	alpha, err := store.ActiveBuffers(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, alpha, 2)
}

func TestRegenerateAll_StopsOnError(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegenerateAll(context.Background(), []*snapshot.Snapshot{
		mergeSnapshot("ok"),
		{ProjectID: "empty"},
	})
	require.ErrorIs(t, err, chain.ErrEmptyProject)
	assert.Contains(t, err.Error(), "regenerate empty")
}

func TestStatus_ZonesAndIdempotence(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Regenerate(ctx, singleTaskSnapshot("p1", 100))
	require.NoError(t, err)
	id := res.BufferIDs[0]
	require.Equal(t, 50, res.Buffers[0].SizeMinutes)

	tests := []struct {
		consumed int
		percent  int
		zone     Zone
	}{
		{0, 0, ZoneGreen},
		{16, 32, ZoneGreen},
		{17, 34, ZoneYellow},
		{33, 66, ZoneYellow},
		{34, 68, ZoneRed},
		{75, 150, ZoneRed},
	}
	for _, tt := range tests {
		st, err := m.SetConsumed(ctx, "p1", id, tt.consumed)
		require.NoError(t, err)
		assert.Equal(t, tt.percent, st.ConsumptionPercent, "consumed=%d", tt.consumed)
		assert.Equal(t, tt.zone, st.Zone, "consumed=%d", tt.consumed)

		first, err := m.Status(ctx, "p1")
		require.NoError(t, err)
		second, err := m.Status(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		require.Len(t, first, 1)
		assert.Equal(t, tt.zone, first[0].Zone)
	}
}

func TestStatus_ZeroSizeBuffer(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Regenerate(ctx, &snapshot.Snapshot{
		ProjectID: "p1",
		Tasks:     []graph.Task{{ID: "unset"}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.Buffers[0].SizeMinutes)

	st, err := m.SetConsumed(ctx, "p1", res.BufferIDs[0], 10)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ConsumptionPercent)
	assert.Equal(t, ZoneGreen, st.Zone)
}

func TestSetConsumed_Errors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)
	_, err = m.Regenerate(ctx, mergeSnapshot("p1"))
	require.NoError(t, err)

	_, err = m.SetConsumed(ctx, "p1", first.BufferIDs[0], 5)
	assert.ErrorIs(t, err, ErrArchived)

	_, err = m.SetConsumed(ctx, "p1", "missing", 5)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.SetConsumed(ctx, "p1", first.BufferIDs[0], -1)
	assert.ErrorIs(t, err, ErrInvalidConsumption)
}

func TestSetConsumed_NestedProjectIDsDoNotAlias(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	res, err := m.Regenerate(ctx, singleTaskSnapshot("a/b", 100))
	require.NoError(t, err)
	id := res.BufferIDs[0]

	// buffer/a/b/<id> read as project "a", buffer "b/<id>".
	_, err = m.SetConsumed(ctx, "a", "b/"+id, 60)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "a", "b/"+id)
	require.ErrorIs(t, err, ErrNotFound)

	statuses, err := m.Status(ctx, "a/b")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 0, statuses[0].ConsumedMinutes)

	b, err := store.Get(ctx, "a/b", id)
	require.NoError(t, err)
	assert.Equal(t, "a/b", b.ProjectID)
}

func TestNewManager_Validates(t *testing.T) {
	analyzer, err := chain.NewAnalyzer(chain.DefaultPolicy(), nil)
	require.NoError(t, err)

	_, err = NewManager(nil, nil, DefaultZonePolicy(), nil)
	assert.Error(t, err)

	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	_, err = NewManager(analyzer, NewBadgerStore(db), ZonePolicy{GreenMax: 0.8, YellowMax: 0.5}, nil)
	assert.Error(t, err)
}

func TestZonePolicy_Classify(t *testing.T) {
	z := DefaultZonePolicy()
	tests := []struct {
		consumed, size, percent int
		zone                    Zone
	}{
		{0, 0, 0, ZoneGreen},
		{10, 0, 0, ZoneGreen},
		{33, 100, 33, ZoneGreen},
		{34, 100, 34, ZoneYellow},
		{66, 100, 66, ZoneYellow},
		{67, 100, 67, ZoneRed},
		{1, 3, 33, ZoneYellow}, // 0.333... > 0.33
	}
	for _, tt := range tests {
		pct, zone := z.Classify(tt.consumed, tt.size)
		assert.Equal(t, tt.percent, pct, "%d/%d", tt.consumed, tt.size)
		assert.Equal(t, tt.zone, zone, "%d/%d", tt.consumed, tt.size)
	}
}
