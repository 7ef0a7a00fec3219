package main

import (
	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

var exportCmd = &cobra.Command{
	Use:   "export <project-db>",
	Short: "Write the project as a YAML snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer logging.DeferClose(logger, s, "close project")

	snap, err := s.Export(cmd.Context())
	if err != nil {
		return err
	}
	return snapshot.Encode(output, snap)
}
