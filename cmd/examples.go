package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Show the usage guide with example requests",
	Long: `The examples command renders the bundled usage guide: the command server
protocol, every generator kind with a worked column spec, and the full
generate/poll/insert/commit walkthrough.`,
	RunE: runExamples,
}

func init() {
	rootCmd.AddCommand(examplesCmd)
}

func runExamples(cmd *cobra.Command, args []string) error {
	data, err := DocsFS.ReadFile("docs/usage.md")
	if err != nil {
		return fmt.Errorf("reading embedded usage guide: %w", err)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		fmt.Print(string(data))
		return nil
	}
	rendered, err := renderer.Render(string(data))
	if err != nil {
		fmt.Print(string(data))
		return nil
	}
	fmt.Print(rendered)
	return nil
}

// terminalWidth returns the current terminal width, falling back to 120.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 120
	}
	return w
}
