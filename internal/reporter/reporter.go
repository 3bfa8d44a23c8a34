// Package reporter renders analyses and buffer status for the terminal,
// or as JSON/YAML for machines.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshharrison/chainloom/internal/buffer"
	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/graph"
	"github.com/joshharrison/chainloom/internal/ui"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not a machine encoding", format)
}

// PrintAnalysis writes a terminal summary of an analysis: the critical
// chain, buffers, feeding chains, leveling edges and the wave schedule.
func PrintAnalysis(w io.Writer, a *chain.Analysis) {
	fmt.Fprintf(w, "%s %s\n", ui.BoldCyan("⛓  Critical chain analysis"), ui.Dim(a.ProjectID))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))

	fmt.Fprintf(w, "Chain:     %s\n", chainString(a.CriticalChain.TaskIDs))
	fmt.Fprintf(w, "Duration:  %s", ui.Bold(ui.Minutes(a.CriticalChain.DurationMinutes)))
	if a.LogicalPath.DurationMinutes != a.CriticalChain.DurationMinutes {
		fmt.Fprintf(w, " %s", ui.Dim(fmt.Sprintf("(logical path %s)", ui.Minutes(a.LogicalPath.DurationMinutes))))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Finish:    %s\n", ui.Minutes(a.PlannedFinish))
	fmt.Fprintf(w, "Buffer:    %s\n", ui.BoldGreen(ui.Minutes(a.ProjectBufferMinutes)))
	fmt.Fprintf(w, "Protected: %s\n\n", ui.Bold(ui.Minutes(a.PlannedFinish+a.ProjectBufferMinutes)))

	if len(a.FeedingChains) > 0 {
		fmt.Fprintf(w, "%s\n", ui.BoldWhite("Feeding chains"))
		for _, fc := range a.FeedingChains {
			fmt.Fprintf(w, "  %s → %s  %s %s\n",
				chainString(fc.TaskIDs), ui.TaskLabel(fc.MergeTaskID),
				ui.Dim(ui.Minutes(fc.DurationMinutes)),
				ui.Green("+"+ui.Minutes(fc.BufferMinutes)))
		}
		fmt.Fprintln(w)
	}

	if len(a.ResourceEdges) > 0 {
		fmt.Fprintf(w, "%s %s\n", ui.BoldWhite("Resource leveling"), ui.Dim(fmt.Sprintf("(%d rounds)", a.LevelingRounds)))
		for _, e := range a.ResourceEdges {
			fmt.Fprintf(w, "  %s → %s\n", ui.TaskLabel(e.PredecessorID), ui.TaskLabel(e.SuccessorID))
		}
		fmt.Fprintln(w)
	}

	if a.Schedule != nil {
		for _, wave := range a.Schedule.Waves {
			fmt.Fprintf(w, "  %s %d  %s\n", ui.BoldWhite("WAVE"), wave.Index+1, ui.Dim("t="+ui.Minutes(wave.Start)))
			for _, id := range wave.TaskIDs {
				ts := a.Schedule.Tasks[id]
				fmt.Fprintf(w, "    %s %-12s %8s → %-8s slack %s\n",
					ui.CriticalMark(ts.OnChain), ui.TaskLabel(id),
					ui.Minutes(ts.ES), ui.Minutes(ts.EF), ui.Minutes(ts.Slack))
			}
		}
		fmt.Fprintln(w)
	}

	for _, warn := range a.Warnings {
		fmt.Fprintf(w, "%s %s: %s\n", ui.BoldYellow("⚠"), warn.Code, warn.Message)
	}
}

// PrintStatus writes one line per ACTIVE buffer with its zone.
func PrintStatus(w io.Writer, projectID string, statuses []buffer.BufferStatus) {
	fmt.Fprintf(w, "%s %s\n\n", ui.BoldCyan("⛓  Buffer status"), ui.Dim(projectID))
	if len(statuses) == 0 {
		fmt.Fprintf(w, "  %s\n", ui.Dim("no active buffers; run regenerate first"))
		return
	}
	for _, s := range statuses {
		where := "project end"
		if s.Type == buffer.TypeFeeding {
			where = "before " + ui.TaskLabel(s.MergeTaskID)
		}
		fmt.Fprintf(w, "  %-8s %-10s %6s / %-6s %4d%%  %s  %s\n",
			s.Type, ZoneLabel(s.Zone),
			ui.Minutes(s.ConsumedMinutes), ui.Minutes(s.SizeMinutes),
			s.ConsumptionPercent, where, ui.Dim(s.ID))
	}
}

// ZoneLabel returns the colored label for a zone.
func ZoneLabel(z buffer.Zone) string {
	return ui.ZoneBadge(string(z))
}

// PrintRegenerate summarizes a regeneration.
func PrintRegenerate(w io.Writer, r *buffer.RegenerateResult) {
	fmt.Fprintf(w, "%s %s: archived %d, created %d\n",
		ui.BoldGreen("✓ Buffers regenerated"), r.ProjectID, len(r.Archived), len(r.Buffers))
	for _, b := range r.Buffers {
		label := "project"
		if b.Type == buffer.TypeFeeding {
			label = "feeding @" + ui.TaskLabel(b.MergeTaskID)
		}
		fmt.Fprintf(w, "  %s %-20s %s\n", ui.Dim(b.ID), label, ui.Minutes(b.SizeMinutes))
	}
}

// PrintDependencies lists edges, one per line.
func PrintDependencies(w io.Writer, deps []graph.Dependency) {
	if len(deps) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Dim("no dependencies"))
		return
	}
	for _, d := range deps {
		lag := ""
		if d.LagMinutes != 0 {
			lag = fmt.Sprintf(" lag %s", ui.Minutes(d.LagMinutes))
		}
		fmt.Fprintf(w, "  %s → %s  %s%s  %s\n",
			ui.TaskLabel(d.PredecessorID), ui.TaskLabel(d.SuccessorID), d.Type, lag, ui.Dim(d.ID))
	}
}

func chainString(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = ui.TaskLabel(id)
	}
	return strings.Join(parts, " → ")
}
