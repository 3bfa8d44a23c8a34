package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/logging"
	"github.com/joshharrison/chainloom/internal/metrics"
	"github.com/joshharrison/chainloom/internal/snapshot"
)

// Manager runs analyses and maintains each project's buffer set.
//
// Analysis runs outside any lock. Only the archive+insert step is
// serialized per project, and it only runs after a successful analysis.
type Manager struct {
	analyzer *chain.Analyzer
	store    Store
	zones    ZonePolicy
	logger   *slog.Logger

	locks projectLocks
	now   func() time.Time
	newID func() string
}

// NewManager wires a Manager. A nil logger discards output.
func NewManager(analyzer *chain.Analyzer, store Store, zones ZonePolicy, logger *slog.Logger) (*Manager, error) {
	if analyzer == nil || store == nil {
		return nil, fmt.Errorf("analyzer and store are required")
	}
	if err := zones.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		analyzer: analyzer,
		store:    store,
		zones:    zones,
		logger:   logging.OrDiscard(logger),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

// Regenerate analyzes the snapshot, then archives the project's ACTIVE
// buffers and inserts one PROJECT buffer plus one FEEDING buffer per
// feeding chain. If the analysis fails nothing is archived or inserted.
func (m *Manager) Regenerate(ctx context.Context, snap *snapshot.Snapshot) (_ *RegenerateResult, err error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	ctx, span := metrics.Tracer.Start(ctx, "buffer.Regenerate",
		trace.WithAttributes(attribute.String("project.id", snap.ProjectID)))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis, err := m.analyzer.Analyze(snap.ProjectID, snap.Tasks, snap.Dependencies)
	if err != nil {
		m.logger.Error("analysis failed; buffers left untouched", "project", snap.ProjectID, "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("chain.critical_tasks", analysis.CriticalChain.Len()),
		attribute.Int("chain.feeding_chains", len(analysis.FeedingChains)),
		attribute.Int("chain.leveling_rounds", analysis.LevelingRounds),
	)

	unlock := m.locks.lock(snap.ProjectID)
	defer unlock()

	now := m.now()
	fresh := m.buildBuffers(snap.ProjectID, analysis, now)
	archived, err := m.store.ReplaceActive(ctx, snap.ProjectID, fresh, now)
	if err != nil {
		return nil, err
	}

	countByType(archived, metrics.BuffersArchived)
	countByType(fresh, metrics.BuffersCreated)

	ids := make([]string, len(fresh))
	for i, b := range fresh {
		ids[i] = b.ID
	}
	m.logger.Info("buffers regenerated",
		"project", snap.ProjectID,
		"archived", len(archived),
		"created", len(fresh),
		"project_buffer_minutes", analysis.ProjectBufferMinutes)

	return &RegenerateResult{
		ProjectID: snap.ProjectID,
		BufferIDs: ids,
		Buffers:   fresh,
		Archived:  archived,
		Analysis:  analysis,
	}, nil
}

// RegenerateAll regenerates several projects concurrently. Results are
// returned in input order. The first failure cancels the remaining work;
// projects that already committed keep their new buffers.
func (m *Manager) RegenerateAll(ctx context.Context, snaps []*snapshot.Snapshot) ([]*RegenerateResult, error) {
	for i, s := range snaps {
		if s == nil {
			return nil, fmt.Errorf("regenerate entry %d: %w", i, ErrNilSnapshot)
		}
	}

	results := make([]*RegenerateResult, len(snaps))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range snaps {
		g.Go(func() error {
			r, err := m.Regenerate(gctx, s)
			if err != nil {
				return fmt.Errorf("regenerate %s: %w", s.ProjectID, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Status reports consumption for every ACTIVE buffer of the project. It
// never writes.
func (m *Manager) Status(ctx context.Context, projectID string) ([]BufferStatus, error) {
	active, err := m.store.ActiveBuffers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]BufferStatus, 0, len(active))
	for _, b := range active {
		out = append(out, m.status(b))
	}
	return out, nil
}

// History returns every buffer the project has had.
func (m *Manager) History(ctx context.Context, projectID string) ([]Buffer, error) {
	return m.store.History(ctx, projectID)
}

// SetConsumed records consumption against an ACTIVE buffer. This is the
// external progress-reporting path; regeneration never calls it.
func (m *Manager) SetConsumed(ctx context.Context, projectID, id string, minutes int) (BufferStatus, error) {
	b, err := m.store.SetConsumed(ctx, projectID, id, minutes, m.now())
	if err != nil {
		return BufferStatus{}, err
	}
	return m.status(b), nil
}

func (m *Manager) status(b Buffer) BufferStatus {
	pct, zone := m.zones.Classify(b.ConsumedMinutes, b.SizeMinutes)
	return BufferStatus{Buffer: b, ConsumptionPercent: pct, Zone: zone}
}

func (m *Manager) buildBuffers(projectID string, a *chain.Analysis, now time.Time) []Buffer {
	out := make([]Buffer, 0, 1+len(a.FeedingChains))
	out = append(out, Buffer{
		ID:           m.newID(),
		ProjectID:    projectID,
		Type:         TypeProject,
		SizeMinutes:  a.ProjectBufferMinutes,
		Status:       StatusActive,
		ChainTaskIDs: append([]string(nil), a.CriticalChain.TaskIDs...),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	for i, fc := range a.FeedingChains {
		out = append(out, Buffer{
			ID:           m.newID(),
			ProjectID:    projectID,
			Type:         TypeFeeding,
			SizeMinutes:  fc.BufferMinutes,
			Status:       StatusActive,
			MergeTaskID:  fc.MergeTaskID,
			ChainTaskIDs: append([]string(nil), fc.TaskIDs...),
			Position:     i + 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out
}

func countByType(bs []Buffer, record func(string, int)) {
	counts := make(map[Type]int)
	for _, b := range bs {
		counts[b.Type]++
	}
	for t, n := range counts {
		record(string(t), n)
	}
}

// projectLocks is a ref-counted keyed mutex: one lock per project, freed
// when no goroutine holds or waits on it.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

func (p *projectLocks) lock(projectID string) (unlock func()) {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*projectLock)
	}
	l, ok := p.locks[projectID]
	if !ok {
		l = &projectLock{}
		p.locks[projectID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, projectID)
		}
		p.mu.Unlock()
	}
}
