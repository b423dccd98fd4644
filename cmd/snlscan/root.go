// Package main provides the entry point for the snlscan CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for snlscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snlscan",
		Short: "Automated security assessment pipeline for web applications",
		Long: `snlscan is an automated security assessment pipeline for web applications.

Given a target URL, it discovers the reachable attack surface, runs
template-based vulnerability detection against every endpoint, prioritizes
the findings by impact and ease of fix, and explains the top issues in
developer-facing language.

Use 'snlscan scan' for one-shot scans from the terminal, or 'snlscan serve'
to run the scan pipeline behind an HTTP API with asynchronous jobs.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewJobsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
