package cmd

import (
	"embed"

	"github.com/spf13/cobra"
)

// DocsFS holds the embedded docs directory, set by main before Execute().
var DocsFS embed.FS

var configPath string

var rootCmd = &cobra.Command{
	Use:   "datasmith",
	Short: "Populate MySQL databases with schema-aware synthetic data",
	Long: `datasmith connects to a live MySQL database, introspects its schema, and
generates valid row batches from per-column generator specs — honoring
foreign keys, single-column UNIQUE constraints, and composite unique groups.

Run without a subcommand it starts the JSON-line command server on
stdin/stdout that UIs and scripts drive.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to settings YAML file (default: auto-detect datasmith.yaml)")
}

func Execute() error {
	return rootCmd.Execute()
}
