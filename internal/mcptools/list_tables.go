package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomfevang/datasmith/internal/depgraph"
	"github.com/tomfevang/datasmith/internal/introspect"
)

type listTablesArgs struct {
	DSN string `json:"dsn,omitempty" jsonschema:"MySQL DSN. Falls back to the DATASMITH_DSN env var if omitted."`
}

func registerListTables(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "list_tables",
		Description: "List all tables in the connected MySQL database in dependency order " +
			"(parents before children), with row counts and foreign key relationships.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, handleListTables)
}

func handleListTables(_ context.Context, _ *mcp.CallToolRequest, args listTablesArgs) (*mcp.CallToolResult, any, error) {
	db, schema, err := openTarget(args.DSN)
	if err != nil {
		return errResult(err.Error()), nil, nil
	}
	defer db.Close()

	names, err := introspect.ListTables(db, schema)
	if err != nil {
		return errResult(fmt.Sprintf("listing tables: %v", err)), nil, nil
	}
	if len(names) == 0 {
		return textResult(fmt.Sprintf("No tables found in schema %s", schema)), nil, nil
	}

	tables := make(map[string]*introspect.Table, len(names))
	for _, name := range names {
		t, err := introspect.IntrospectTable(db, schema, name)
		if err != nil {
			return errResult(fmt.Sprintf("introspecting %s: %v", name, err)), nil, nil
		}
		tables[name] = t
	}

	order, dropped := depgraph.Sort(names, tables)

	counts, err := introspect.RowCounts(db, order)
	if err != nil {
		return errResult(fmt.Sprintf("counting rows: %v", err)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema: %s\nTables (%d, dependency order):\n", schema, len(order))
	for _, name := range order {
		fmt.Fprintf(&sb, "  - %s (%d rows)", name, counts[name])

		var fks []string
		for _, col := range tables[name].Columns {
			if col.FK != nil {
				fks = append(fks, fmt.Sprintf("%s -> %s.%s", col.Name, col.FK.Table, col.FK.Column))
			}
		}
		if len(fks) > 0 {
			fmt.Fprintf(&sb, " [FK: %s]", strings.Join(fks, ", "))
		}
		sb.WriteByte('\n')
	}

	if len(dropped) > 0 {
		sb.WriteString("\nCycle edges ignored for ordering:\n")
		for _, e := range dropped {
			fmt.Fprintf(&sb, "  - %s -> %s\n", e.Child, e.Parent)
		}
	}

	return textResult(sb.String()), nil, nil
}
