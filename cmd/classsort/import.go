package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/internal/image"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

var (
	importPDB      string
	importImage    string
	importSnapshot string
)

var importCmd = &cobra.Command{
	Use:   "import <project-db>",
	Short: "Load a program into a project database",
	Long: `Load a program into a project database, replacing what it held.

With --image and --pdb the PE image is analyzed: public symbols are placed,
vftable slots are read and code references are recovered by disassembly.
With --snapshot a YAML snapshot is loaded as is.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importPDB, "pdb", "", "PDB file with the image's public symbols")
	importCmd.Flags().StringVar(&importImage, "image", "", "PE image (exe or dll)")
	importCmd.Flags().StringVar(&importSnapshot, "snapshot", "", "YAML snapshot to load")

	importCmd.MarkFlagsRequiredTogether("pdb", "image")
	importCmd.MarkFlagsMutuallyExclusive("snapshot", "pdb")
	importCmd.MarkFlagsMutuallyExclusive("snapshot", "image")
	importCmd.MarkFlagsOneRequired("snapshot", "pdb")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var snap *snapshot.Snapshot
	if importSnapshot != "" {
		var err error
		snap, err = snapshot.Load(importSnapshot)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
	} else {
		a, err := image.New(image.Options{
			MaxSlots:  cfg.Import.MaxSlots,
			CacheSize: cfg.Import.DemangleCache,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		snap, err = a.AnalyzeFiles(ctx, importImage, importPDB)
		if err != nil {
			return fmt.Errorf("failed to analyze image: %w", err)
		}
	}

	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer logging.DeferClose(logger, s, "close project")

	if err := s.Import(ctx, snap); err != nil {
		return fmt.Errorf("failed to import: %w", err)
	}

	fmt.Fprintf(output, "Project: %s\n", args[0])
	fmt.Fprintf(output, "Address Size: %d\n", snap.AddressSize)
	fmt.Fprintf(output, "Functions: %d\n", len(snap.Functions))
	fmt.Fprintf(output, "Data Variables: %d\n", len(snap.DataVars))
	fmt.Fprintf(output, "Code References: %d\n", len(snap.CodeRefs))
	return nil
}
