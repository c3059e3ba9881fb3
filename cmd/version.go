package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomfevang/datasmith/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.BuildInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
