package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// resolveDSN picks the target DSN: an explicitly set --dsn flag wins,
// otherwise the DATASMITH_DSN environment variable.
func resolveDSN(cmd *cobra.Command, flagVal string) string {
	if cmd.Flags().Changed("dsn") {
		return flagVal
	}
	return os.Getenv("DATASMITH_DSN")
}

// resolveLogLines picks the SQL log tail length: an explicitly set
// --log-lines flag wins, otherwise the settings file value. Zero means
// the server keeps its own default.
func resolveLogLines(cmd *cobra.Command, flagVal, cfgVal int) int {
	if cmd.Flags().Changed("log-lines") {
		return flagVal
	}
	return cfgVal
}
