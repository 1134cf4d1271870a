// Package main provides the entry point for the onioncrawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for onioncrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onioncrawl",
		Short: "Distributed crawl pipeline for Tor hidden services",
		Long: `onioncrawl crawls Tor hidden services (.onion addresses) through a
pool of SOCKS5 proxies, extracts correlation artifacts, enriches pages
via external capture and classification services, and indexes the
results for search.

Work is coordinated through a Redis-backed job queue, so any number of
worker processes can run against the same frontier.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .onioncrawl in current or home directory)")

	// Add subcommands
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewStatusCmd())
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
