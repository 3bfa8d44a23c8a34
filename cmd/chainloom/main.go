package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshharrison/chainloom/internal/buffer"
	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/config"
	"github.com/joshharrison/chainloom/internal/graph"
	"github.com/joshharrison/chainloom/internal/logging"
	"github.com/joshharrison/chainloom/internal/reporter"
	"github.com/joshharrison/chainloom/internal/snapshot"
	"github.com/joshharrison/chainloom/internal/storage"
	"github.com/joshharrison/chainloom/internal/ui"
)

var (
	flagConfig   string
	flagSnapshot string
	flagFormat   string
	flagQuiet    bool

	cfg    *config.Config
	logger *slog.Logger
	format reporter.Format
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chainloom",
		Short: "Critical chain scheduling and buffer management",
		Long: `Chainloom reads a project's tasks and dependencies, levels shared
resources, resolves the critical chain and feeding chains, and sizes and
tracks the buffers that protect them.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ./chainloom.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagSnapshot, "snapshot", "", "Project snapshot file (default: .chainloom/snapshot.json)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress logs")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(regenerateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.BoldRed("error:"), err)
		os.Exit(1)
	}
}

// setup loads configuration and the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(flagConfig)
	if err != nil {
		return err
	}
	cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	if flagSnapshot != "" {
		cfg.Snapshot.Path = flagSnapshot
	}
	if flagQuiet {
		cfg.Logging.Quiet = true
	}
	logger = logging.New(cfg.LoggingConfig())

	format, err = reporter.ParseFormat(flagFormat)
	return err
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <project-id>",
		Short: "Create an empty project snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Snapshot.Path
			if snapshot.Exists(path) && !force {
				return fmt.Errorf("snapshot already exists at %s (use --force to overwrite)", path)
			}
			if _, err := snapshot.New(path, args[0]); err != nil {
				return err
			}
			if format == reporter.FormatText {
				ui.PrintBanner(os.Stderr)
			}
			fmt.Printf("%s project %s at %s\n", ui.BoldGreen("✓ Initialized"), ui.Bold(args[0]), ui.Dim(path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing snapshot")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the working snapshot with a tasks/dependencies JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			snap, err := snapshot.Parse(data)
			if err != nil {
				return err
			}
			// Re-validate every edge the way an insert would before accepting it.
			if _, err := snap.DependencyStore(); err != nil {
				return err
			}
			snap.SetPath(cfg.Snapshot.Path)
			if err := snap.Save(); err != nil {
				return err
			}
			fmt.Printf("%s %d tasks, %d dependencies for %s\n",
				ui.BoldGreen("✓ Imported"), len(snap.Tasks), len(snap.Dependencies), ui.Bold(snap.ProjectID))
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks in the snapshot",
	}

	var (
		effort    int
		resources []string
		parent    string
	)
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add or update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Load(cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			t := graph.Task{ID: args[0], ResourceIDs: resources, ParentID: parent}
			if cmd.Flags().Changed("effort") {
				t.EffortMinutes = graph.Minutes(effort)
			}
			if err := snap.UpsertTask(t); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.BoldGreen("✓ Task"), ui.TaskLabel(t.ID))
			return nil
		},
	}
	add.Flags().IntVar(&effort, "effort", 0, "Effort in minutes (unset means zero)")
	add.Flags().StringSliceVar(&resources, "resource", nil, "Assigned resource ID (repeatable)")
	add.Flags().StringVar(&parent, "parent", "", "Parent task ID (informational)")

	cmd.AddCommand(add)
	return cmd
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependencies between tasks",
	}

	var (
		relation string
		lag      int
	)
	add := &cobra.Command{
		Use:   "add <predecessor> <successor>",
		Short: "Add a dependency; rejects self, duplicate and cyclic edges",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, store, err := loadDependencies()
			if err != nil {
				return err
			}
			for _, id := range args {
				if !snap.HasTask(id) {
					return fmt.Errorf("%w: %q", graph.ErrUnknownTask, id)
				}
			}
			typ, err := graph.ParseRelation(relation)
			if err != nil {
				return err
			}
			d, err := store.AddEdge(args[0], args[1], typ, lag)
			if err != nil {
				return err
			}
			if err := snap.SetDependencies(store.Edges()); err != nil {
				return err
			}
			if format != reporter.FormatText {
				return reporter.Encode(os.Stdout, format, d)
			}
			fmt.Printf("%s %s\n", ui.BoldGreen("✓ Added"), ui.Dim(d.ID))
			return nil
		},
	}
	add.Flags().StringVar(&relation, "type", "FS", "Relation type (FS, SS, FF, SF)")
	add.Flags().IntVar(&lag, "lag", 0, "Lag in minutes (may be negative)")

	rm := &cobra.Command{
		Use:   "rm <dependency-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, store, err := loadDependencies()
			if err != nil {
				return err
			}
			if err := store.RemoveEdge(args[0]); err != nil {
				return err
			}
			if err := snap.SetDependencies(store.Edges()); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.BoldGreen("✓ Removed"), ui.Dim(args[0]))
			return nil
		},
	}

	var taskID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List dependencies, optionally only those touching one task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := loadDependencies()
			if err != nil {
				return err
			}
			deps := store.Edges()
			if taskID != "" {
				deps = store.EdgesForTask(taskID)
			}
			if format != reporter.FormatText {
				return reporter.Encode(os.Stdout, format, deps)
			}
			reporter.PrintDependencies(os.Stdout, deps)
			return nil
		},
	}
	list.Flags().StringVar(&taskID, "task", "", "Only edges where this task is an endpoint")

	cmd.AddCommand(add, rm, list)
	return cmd
}

func analyzeCmd() *cobra.Command {
	var dot bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute the critical chain, feeding chains and buffer sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Load(cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			analyzer, err := chain.NewAnalyzer(cfg.Policy(), logger)
			if err != nil {
				return err
			}
			result, err := analyzer.Analyze(snap.ProjectID, snap.Tasks, snap.Dependencies)
			if err != nil {
				return err
			}

			switch {
			case dot:
				printDOT(os.Stdout, result, snap.Dependencies)
				return nil
			case format != reporter.FormatText:
				return reporter.Encode(os.Stdout, format, result.Report())
			}
			reporter.PrintAnalysis(os.Stdout, result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dot, "dot", false, "Print the leveled graph in Graphviz DOT format")
	return cmd
}

func regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate",
		Short: "Archive the active buffers and create fresh ones from a new analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.Load(cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			return withManager(func(m *buffer.Manager) error {
				res, err := m.Regenerate(cmd.Context(), snap)
				if err != nil {
					return err
				}
				if format != reporter.FormatText {
					return reporter.Encode(os.Stdout, format, map[string]any{
						"projectId": res.ProjectID,
						"bufferIds": res.BufferIDs,
						"archived":  len(res.Archived),
						"analysis":  res.Analysis.Report(),
					})
				}
				reporter.PrintRegenerate(os.Stdout, res)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project-id]",
		Short: "Show consumption and zone of every active buffer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := projectArg(args)
			if err != nil {
				return err
			}
			return withManager(func(m *buffer.Manager) error {
				statuses, err := m.Status(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if format != reporter.FormatText {
					return reporter.Encode(os.Stdout, format, statuses)
				}
				reporter.PrintStatus(os.Stdout, projectID, statuses)
				return nil
			})
		},
	}
}

func consumeCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "consume <buffer-id> <minutes>",
		Short: "Record consumed minutes against an active buffer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("minutes must be an integer: %w", err)
			}
			if projectID == "" {
				if projectID, err = projectArg(nil); err != nil {
					return err
				}
			}
			return withManager(func(m *buffer.Manager) error {
				st, err := m.SetConsumed(cmd.Context(), projectID, args[0], minutes)
				if err != nil {
					return err
				}
				if format != reporter.FormatText {
					return reporter.Encode(os.Stdout, format, st)
				}
				fmt.Printf("%s %s %d%% %s\n", ui.BoldGreen("✓"), ui.Dim(st.ID), st.ConsumptionPercent, reporter.ZoneLabel(st.Zone))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (default: from snapshot)")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [project-id]",
		Short: "List every buffer the project has had, archived included",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := projectArg(args)
			if err != nil {
				return err
			}
			return withManager(func(m *buffer.Manager) error {
				bufs, err := m.History(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if format != reporter.FormatText {
					return reporter.Encode(os.Stdout, format, bufs)
				}
				for _, b := range bufs {
					fmt.Printf("  %s %-8s %-8s %6s  %s\n",
						ui.Dim(b.CreatedAt.Format("2006-01-02 15:04")), b.Status, b.Type,
						ui.Minutes(b.SizeMinutes), ui.Dim(b.ID))
				}
				return nil
			})
		},
	}
}

// --- Helpers ---

func loadDependencies() (*snapshot.Snapshot, *graph.Store, error) {
	snap, err := snapshot.Load(cfg.Snapshot.Path)
	if err != nil {
		return nil, nil, err
	}
	store, err := snap.DependencyStore()
	if err != nil {
		return nil, nil, err
	}
	return snap, store, nil
}

// projectArg returns the explicit project argument or the snapshot's.
func projectArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	snap, err := snapshot.Load(cfg.Snapshot.Path)
	if err != nil {
		return "", fmt.Errorf("no project given and %w", err)
	}
	return snap.ProjectID, nil
}

// withManager opens the buffer database for the duration of fn.
func withManager(fn func(*buffer.Manager) error) error {
	sc := cfg.StorageConfig()
	sc.Logger = logger
	db, err := storage.Open(sc)
	if err != nil {
		return err
	}
	defer db.Close()

	analyzer, err := chain.NewAnalyzer(cfg.Policy(), logger)
	if err != nil {
		return err
	}
	m, err := buffer.NewManager(analyzer, buffer.NewBadgerStore(db), cfg.ZonePolicy(), logger)
	if err != nil {
		return err
	}
	return fn(m)
}

// printDOT writes the dependency graph with critical tasks and resource
// edges highlighted.
func printDOT(w io.Writer, a *chain.Analysis, deps []graph.Dependency) {
	critical := make(map[string]bool, len(a.CriticalChain.TaskIDs))
	for _, id := range a.CriticalChain.TaskIDs {
		critical[id] = true
	}

	fmt.Fprintln(w, "digraph chainloom {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=rounded];")
	fmt.Fprintln(w)

	for _, id := range a.Schedule.TopoOrder {
		ts := a.Schedule.Tasks[id]
		attrs := fmt.Sprintf(`label="%s\n%s"`, dotEscaper.Replace(id), ui.Minutes(ts.Duration))
		if critical[id] {
			attrs += `, style="rounded,bold", color=red`
		}
		fmt.Fprintf(w, "  %s [%s];\n", dotID(id), attrs)
	}
	fmt.Fprintln(w)

	for _, d := range deps {
		style := ""
		if critical[d.PredecessorID] && critical[d.SuccessorID] {
			style = ` [color=red, penwidth=2]`
		}
		fmt.Fprintf(w, "  %s -> %s%s;\n", dotID(d.PredecessorID), dotID(d.SuccessorID), style)
	}
	for _, d := range a.ResourceEdges {
		fmt.Fprintf(w, "  %s -> %s [style=dashed, label=\"resource\"];\n", dotID(d.PredecessorID), dotID(d.SuccessorID))
	}
	fmt.Fprintln(w, "}")
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// dotID quotes a task ID as a DOT string.
func dotID(id string) string {
	return `"` + dotEscaper.Replace(id) + `"`
}
