package main

import (
	"github.com/spf13/cobra"

	"github.com/ryanm101/spielpendium/internal/tracing"
)

const skipConfigLoad = "skipConfigLoad"

func newRootCommand(app *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spielpendium",
		Short:         "Board game collection manager",
		Version:       tracing.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			if err := app.setup(cmd.Context()); err != nil {
				return err
			}
			cmd.SetContext(app.startSpan(cmd.Context(), cmd.CommandPath()))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.writeMetrics()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&app.archiveFlag, "archive", "a", "", "Collection archive (default from config)")
	flags.BoolVar(&app.out.json, "json", false, "Write machine-readable JSON")
	flags.BoolVarP(&app.out.quiet, "quiet", "q", false, "Only print errors")
	flags.StringVar(&app.metricsFile, "metrics-textfile", "", "Write prometheus metrics to this file on exit")

	rootCmd.AddCommand(newImportCommand(app))
	rootCmd.AddCommand(newListCommand(app))
	rootCmd.AddCommand(newShowCommand(app))
	rootCmd.AddCommand(newSearchCommand(app))
	rootCmd.AddCommand(newSetCommand(app))
	rootCmd.AddCommand(newRemoveCommand(app))
	rootCmd.AddCommand(newMetaCommand(app))
	rootCmd.AddCommand(newVerifyCommand(app))
	rootCmd.AddCommand(newBackupCommand(app))
	rootCmd.AddCommand(newCacheCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}
