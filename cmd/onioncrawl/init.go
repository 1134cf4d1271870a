package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/onioncrawl/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new onioncrawl configuration file",
		Long: `Initialize creates a new .onioncrawl configuration file in the current
directory, populated with the default values for every setting.

Examples:
  # Create .onioncrawl in current directory
  onioncrawl init

  # Create config file at a specific path
  onioncrawl init -o myconfig.yaml

  # Force overwrite existing file
  onioncrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if force {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing file: %w", err)
		}
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := config.WriteDefault(outputPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nEdit this file to configure:")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Redis and Elasticsearch addresses")
	fmt.Fprintln(cmd.OutOrStdout(), "  - SOCKS5 proxy endpoints (or leave empty for embedded Tor)")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Enrichment service URLs and retry budgets")

	return nil
}
