package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/memhost"
	"github.com/skdltmxn/classsort/internal/slots"
	"github.com/skdltmxn/classsort/internal/snapshot"
	"github.com/skdltmxn/classsort/internal/store"
	"github.com/skdltmxn/classsort/sorter"
)

var (
	sortDryRun   bool
	sortSnapshot string
	sortWrite    string
)

var sortCmd = &cobra.Command{
	Use:   "sort [project-db]",
	Short: "Rebuild the class tree and encode vftable slots",
	Long: `Rebuild the class tree and encode vftable slots into function names.

The previous class tree is discarded and rebuilt in one edit scope, so a
failed or interrupted run leaves the project as it was. Running twice
changes nothing the second time.

Use --snapshot to sort a YAML snapshot in memory instead of a project;
--write then saves the result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSort,
}

func init() {
	sortCmd.Flags().BoolVarP(&sortDryRun, "dry-run", "n", false, "report what would change and roll back")
	sortCmd.Flags().StringVar(&sortSnapshot, "snapshot", "", "sort a YAML snapshot instead of a project")
	sortCmd.Flags().StringVar(&sortWrite, "write", "", "with --snapshot, save the sorted snapshot here")
	sortCmd.MarkFlagsRequiredTogether("snapshot", "write")
}

func runSort(cmd *cobra.Command, args []string) error {
	s, err := sorter.FromConfig(cfg, logger, sortDryRun)
	if err != nil {
		return err
	}

	if sortSnapshot != "" {
		if len(args) != 0 {
			return errors.New("--snapshot cannot be combined with a project")
		}
		return sortSnapshotFile(cmd, s)
	}
	if len(args) != 1 {
		return errors.New("a project database or --snapshot is required")
	}

	st, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer logging.DeferClose(logger, st, "close project")

	sum, err := s.Run(cmd.Context(), st)
	if err != nil {
		return err
	}
	if !sum.Skipped {
		if err := st.RecordRun(cmd.Context(), runRecord(sum)); err != nil {
			return err
		}
	}
	printSummary(output, sum)
	return nil
}

func sortSnapshotFile(cmd *cobra.Command, s *sorter.Sorter) error {
	snap, err := snapshot.Load(sortSnapshot)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	p, err := memhost.FromSnapshot(snap)
	if err != nil {
		return err
	}

	sum, err := s.Run(cmd.Context(), p)
	if err != nil {
		return err
	}
	printSummary(output, sum)
	if !sum.Applied() {
		return nil
	}
	if err := snapshot.Save(sortWrite, p.Snapshot()); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// runRecord converts a summary into a run history row.
func runRecord(sum *sorter.Summary) store.Run {
	return store.Run{
		ID:           sum.RunID.String(),
		Started:      sum.Started,
		Finished:     sum.Finished,
		DryRun:       sum.DryRun,
		Symbols:      sum.Symbols,
		Tables:       sum.Tables,
		Groups:       sum.Groups,
		Renamed:      sum.Count(slots.Renamed),
		Unchanged:    sum.Count(slots.Unchanged),
		Placeholder:  sum.Count(slots.Placeholder),
		Constructors: sum.Count(slots.Constructor),
		Thunks:       sum.Count(slots.Thunk),
		Skipped:      sum.Count(slots.Skipped),
		Failed:       sum.Count(slots.Failed),
	}
}

func printSummary(w io.Writer, sum *sorter.Summary) {
	if sum.Skipped {
		fmt.Fprintf(w, "Analysis is not %s; nothing was changed.\n", host.StateComplete)
		return
	}
	fmt.Fprintf(w, "Run: %s\n", sum.RunID)
	if sum.DryRun {
		fmt.Fprintf(w, "Dry run: changes were rolled back\n")
	}
	fmt.Fprintf(w, "Symbols: %d\n", sum.Symbols)
	fmt.Fprintf(w, "Tables: %d\n", sum.Tables)
	fmt.Fprintf(w, "Groups: %d\n", sum.Groups)
	fmt.Fprintf(w, "Renamed: %d\n", sum.Count(slots.Renamed))
	fmt.Fprintf(w, "Unchanged: %d\n", sum.Count(slots.Unchanged))
	fmt.Fprintf(w, "Placeholders: %d\n", sum.Count(slots.Placeholder))
	fmt.Fprintf(w, "Constructors: %d\n", sum.Count(slots.Constructor))
	fmt.Fprintf(w, "Thunks: %d\n", sum.Count(slots.Thunk))
	fmt.Fprintf(w, "Skipped: %d\n", sum.Count(slots.Skipped))
	fmt.Fprintf(w, "Failed: %d\n", sum.Count(slots.Failed))
	for _, o := range sum.Failures {
		fmt.Fprintf(w, "  %s: %v\n", o, o.Err)
	}
}
