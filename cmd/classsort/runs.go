package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/internal/logging"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs <project-db>",
	Short: "List recorded sort runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "limit number of runs shown (0 = unlimited)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer logging.DeferClose(logger, s, "close project")

	runs, err := s.Runs(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(output, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(output, "%-36s  %-20s  %8s  %6s  %7s  %9s  %6s  %s\n",
		"ID", "STARTED", "DURATION", "TABLES", "RENAMED", "UNCHANGED", "FAILED", "MODE")
	for _, r := range runs {
		mode := "applied"
		if r.DryRun {
			mode = "dry-run"
		}
		fmt.Fprintf(output, "%-36s  %-20s  %8s  %6d  %7d  %9d  %6d  %s\n",
			r.ID,
			r.Started.Local().Format(time.DateTime),
			r.Finished.Sub(r.Started).Round(time.Millisecond),
			r.Tables, r.Renamed, r.Unchanged, r.Failed, mode)
	}
	return nil
}
