package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/tomfevang/datasmith/internal/mcptools"
	"github.com/tomfevang/datasmith/internal/version"
)

var mcpDSN string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server for use with Claude Code and other AI tools",
	Long: `The mcp subcommand starts a Model Context Protocol server that communicates
over stdin/stdout using JSON-RPC. This lets AI tools inspect schemas, preview
generated rows, and look up provider methods without writing to the database.

Configure in .claude/settings.json:

  "mcpServers": {
    "datasmith": {
      "command": "datasmith",
      "args": ["mcp"],
      "env": { "DATASMITH_DSN": "user:pass@tcp(localhost:3306)/mydb" }
    }
  }`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpDSN, "dsn", "", "MySQL DSN; also read from DATASMITH_DSN")

	rootCmd.AddCommand(mcpCmd)
}

const mcpInstructions = `datasmith generates schema-aware synthetic rows for MySQL databases.

## Connection

The MySQL DSN is pre-configured via the DATASMITH_DSN environment variable. You do NOT need to ask the user for connection details — just call the tools directly.

## Workflow

1. **list_tables** → see what tables exist, their dependency order, and row counts
2. **describe_table** → inspect column types, keys, and unique constraints for one table
3. **preview_data** → dry-run: see sample rows generation would produce (no writes)
4. **list_generators** → look up provider method names for faker specs and script templates

All tools are read-only. Inserting data goes through the datasmith command
server, not this MCP surface.`

func runMCP(_ *cobra.Command, _ []string) error {
	if mcpDSN != "" {
		os.Setenv("DATASMITH_DSN", mcpDSN)
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "datasmith",
			Version: version.Version(),
		},
		&mcp.ServerOptions{
			Instructions: mcpInstructions,
		},
	)

	mcptools.RegisterAll(server, DocsFS)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
