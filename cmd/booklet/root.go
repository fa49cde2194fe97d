package main

import (
	"github.com/spf13/cobra"

	"github.com/local/bookletreorder/internal/logger"
)

func newRootCommand() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "booklet",
		Short:         "Restore reading order of scanned booklets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "info"
			}
			return logger.Init(logger.Options{
				Level:   level,
				Pretty:  true,
				Service: "booklet-cli",
				Stdout:  cmd.ErrOrStderr(),
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newReorderCommand())
	return rootCmd
}
