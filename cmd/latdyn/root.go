package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(defaultTaskDeps())
}

func newRootCommandWith(deps taskDeps) *cobra.Command {
	var configFlag string
	var dirFlag string

	ctx := newCommandContext(&configFlag, &dirFlag, deps)

	rootCmd := &cobra.Command{
		Use:           "latdyn",
		Short:         "Lattice dynamics force-constant pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "Task working directory (default: paths.work_dir or the current directory)")

	rootCmd.AddCommand(newCollectCommand(ctx))
	rootCmd.AddCommand(newFitCommand(ctx))
	rootCmd.AddCommand(newRenormalizeCommand(ctx))
	rootCmd.AddCommand(newForceConstantsToDbCommand(ctx))
	rootCmd.AddCommand(newShengBTECommand(ctx))
	rootCmd.AddCommand(newShengBTEToDbCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newResultsCommand(ctx))
	rootCmd.AddCommand(newOracleCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
