package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomfevang/datasmith/internal/introspect"
)

type describeTableArgs struct {
	DSN   string `json:"dsn,omitempty" jsonschema:"MySQL DSN. Falls back to the DATASMITH_DSN env var if omitted."`
	Table string `json:"table" jsonschema:"Name of the table to describe"`
}

func registerDescribeTable(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "describe_table",
		Description: "Get detailed column metadata, types, foreign keys, and unique constraints for a MySQL table.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, handleDescribeTable)
}

func handleDescribeTable(_ context.Context, _ *mcp.CallToolRequest, args describeTableArgs) (*mcp.CallToolResult, any, error) {
	if args.Table == "" {
		return errResult("table name is required"), nil, nil
	}

	db, schema, err := openTarget(args.DSN)
	if err != nil {
		return errResult(err.Error()), nil, nil
	}
	defer db.Close()

	table, err := introspect.IntrospectTable(db, schema, args.Table)
	if err != nil {
		return errResult(fmt.Sprintf("introspecting table: %v", err)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s.%s\n\n", schema, table.Name)
	fmt.Fprintf(&sb, "Columns (%d):\n", len(table.Columns))

	for _, col := range table.Columns {
		var flags []string
		if col.PrimaryKey {
			flags = append(flags, "PK")
		}
		if col.AutoInc {
			flags = append(flags, "AUTO_INC")
		}
		if col.Unique {
			flags = append(flags, "UNIQUE")
		}
		if col.Nullable {
			flags = append(flags, "NULLABLE")
		}
		if col.Computed {
			flags = append(flags, "COMPUTED")
		}
		if col.Default != nil {
			flags = append(flags, "DEFAULT "+*col.Default)
		}
		if col.FK != nil {
			flags = append(flags, fmt.Sprintf("FK->%s.%s", col.FK.Table, col.FK.Column))
		}

		flagStr := ""
		if len(flags) > 0 {
			flagStr = " [" + strings.Join(flags, ", ") + "]"
		}

		fmt.Fprintf(&sb, "  %-30s %-20s%s\n", col.Name, col.TypeString, flagStr)
	}

	if groups := uniqueGroups(table); len(groups) > 0 {
		sb.WriteString("\nComposite unique groups:\n")
		for _, g := range groups {
			fmt.Fprintf(&sb, "  (%s)\n", strings.Join(g, ", "))
		}
	}

	return textResult(sb.String()), nil, nil
}

// uniqueGroups collects the distinct composite unique groups recorded on
// the table's columns.
func uniqueGroups(t *introspect.Table) [][]string {
	seen := make(map[string]bool)
	var groups [][]string
	for _, col := range t.Columns {
		if len(col.MultiUnique) == 0 {
			continue
		}
		key := strings.Join(col.MultiUnique, ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		groups = append(groups, col.MultiUnique)
	}
	return groups
}
