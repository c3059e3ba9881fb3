package mcptools

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// resolveDSN returns the per-call DSN when given, falling back to the
// DATASMITH_DSN environment variable.
func resolveDSN(arg string) string {
	if arg != "" {
		return arg
	}
	return os.Getenv("DATASMITH_DSN")
}

// extractSchema extracts the database name from a MySQL DSN.
func extractSchema(dsn string) string {
	idx := strings.LastIndex(dsn, "/")
	if idx == -1 || idx == len(dsn)-1 {
		return ""
	}
	schema := dsn[idx+1:]
	if qIdx := strings.Index(schema, "?"); qIdx != -1 {
		schema = schema[:qIdx]
	}
	return schema
}

// openTarget resolves the DSN, opens the connection, and verifies it. The
// caller owns closing the returned handle.
func openTarget(argDSN string) (*sql.DB, string, error) {
	dsn := resolveDSN(argDSN)
	if dsn == "" {
		return nil, "", fmt.Errorf("DSN is required — pass the dsn argument or set the DATASMITH_DSN environment variable")
	}

	schema := extractSchema(dsn)
	if schema == "" {
		return nil, "", fmt.Errorf("could not extract database name from DSN — ensure it ends with /dbname")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("connecting to MySQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("pinging MySQL: %w", err)
	}
	return db, schema, nil
}

// textResult builds a CallToolResult with a single TextContent.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errResult builds a CallToolResult that reports an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
