package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/internal/config"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/store"
)

var (
	outputFile string
	configPath string
	logLevel   string

	output io.Writer
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "classsort",
	Short: "Group virtual functions by class and record their vftable slots",
	Long: `classsort rebuilds a class hierarchy from the vftable symbols of a
program and sorts the functions each table points at.

Every function reachable from a vftable is grouped under its class and
renamed with invisible markers that record its slot, so name-sorted views
list virtual methods in vftable order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger = logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			logging.DeferClose(logger, f, "close output file")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, disabled)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sortCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runsCmd)
}

func openStore(path string) (*store.Store, error) {
	s, err := store.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	return s, nil
}
