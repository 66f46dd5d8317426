// Package cmd defines the command line interface of the campuscrawl binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campuscrawl",
		Short: "Keeps a relational snapshot of a university academic portal",
		Long: `campuscrawl crawls an authenticated academic portal and reconciles what it
finds into a relational snapshot: departments, buildings, courses, classes,
admissions, shifts and enrollments. The snapshot is served over HTTP together
with endpoints to trigger and inspect sync runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (optional, env vars apply on top)")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
