// Package chain resolves the critical chain of a project, levels shared
// resources, extracts feeding chains and sizes their buffers.
//
// An Analyzer is stateless between calls: every Analyze rebuilds the
// graph from the supplied snapshot, so one Analyzer may serve concurrent
// callers.
package chain

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joshharrison/chainloom/internal/cpm"
	"github.com/joshharrison/chainloom/internal/graph"
	"github.com/joshharrison/chainloom/internal/logging"
	"github.com/joshharrison/chainloom/internal/metrics"
)

// Analyzer runs critical chain analysis under a fixed Policy.
type Analyzer struct {
	policy Policy
	logger *slog.Logger
}

// NewAnalyzer validates policy and returns an Analyzer. A nil logger
// discards output.
func NewAnalyzer(policy Policy, logger *slog.Logger) (*Analyzer, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &Analyzer{policy: policy, logger: logging.OrDiscard(logger)}, nil
}

// Policy returns the analyzer's policy.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze computes the schedule, critical chain, feeding chains and
// buffer sizes for one project snapshot.
//
// Errors from graph construction, cycle detection or schedule
// verification fail the whole call. Leveling that does not converge is
// reported as a warning on the result.
func (a *Analyzer) Analyze(projectID string, tasks []graph.Task, deps []graph.Dependency) (result *Analysis, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		rounds, converged := 0, true
		if err != nil {
			outcome = metrics.OutcomeFailure
		} else {
			rounds, converged = result.LevelingRounds, result.Converged
		}
		metrics.ObserveAnalysis(time.Since(start), outcome, rounds, converged)
	}()

	if len(tasks) == 0 {
		return nil, fmt.Errorf("analyze %s: %w", projectID, ErrEmptyProject)
	}

	base, err := graph.NewGraph(tasks, deps)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", projectID, err)
	}
	logical, err := cpm.Analyze(base)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", projectID, err)
	}
	logicalPath := zeroSlackPath(base, logical)

	lv, err := level(base, logical, a.policy.MaxLevelingIterations)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", projectID, err)
	}

	critical := zeroSlackPath(lv.graph, lv.sched)
	cc := toChain(lv.graph, critical)
	lv.sched.MarkChain(cc.TaskIDs)

	result = &Analysis{
		ProjectID:            projectID,
		Schedule:             lv.sched,
		LogicalPath:          toChain(base, logicalPath),
		CriticalChain:        cc,
		PlannedFinish:        lv.sched.TotalDuration,
		ProjectBufferMinutes: a.policy.Size(durations(lv.graph, critical)),
		FeedingChains:        feedingChains(base, handles(base, logical.TopoOrder), critical, a.policy),
		ResourceEdges:        resourceDependencies(lv.graph, lv.added),
		LevelingRounds:       lv.rounds,
		Converged:            lv.converged,
	}

	if !lv.converged {
		msg := fmt.Sprintf("resource leveling stopped after %d rounds without reaching a fixed point", lv.rounds)
		result.Warnings = append(result.Warnings, Warning{Code: WarningLevelingDidNotConverge, Message: msg})
		a.logger.Warn("resource leveling did not converge",
			"project", projectID,
			"rounds", lv.rounds,
			"max", a.policy.MaxLevelingIterations)
	}

	a.logger.Debug("analysis complete",
		"project", projectID,
		"tasks", base.TaskCount(),
		"critical_chain", len(result.CriticalChain.TaskIDs),
		"feeding_chains", len(result.FeedingChains),
		"resource_edges", len(result.ResourceEdges),
		"planned_finish", result.PlannedFinish)

	return result, nil
}

func resourceDependencies(g *graph.Graph, edges []graph.Edge) []graph.Dependency {
	out := make([]graph.Dependency, 0, len(edges))
	for _, e := range edges {
		out = append(out, graph.Dependency{
			PredecessorID: g.Node(e.From).ID,
			SuccessorID:   g.Node(e.To).ID,
			Type:          e.Type,
			LagMinutes:    e.Lag,
			Synthetic:     true,
		})
	}
	return out
}
