package mcptools

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomfevang/datasmith/internal/generator"
	"github.com/tomfevang/datasmith/internal/introspect"
	"github.com/tomfevang/datasmith/internal/populate"
	"github.com/tomfevang/datasmith/internal/sqlrunner"
)

const (
	defaultSampleRows = 5
	maxSampleRows     = 20
)

type previewDataArgs struct {
	DSN   string `json:"dsn,omitempty" jsonschema:"MySQL DSN. Falls back to the DATASMITH_DSN env var if omitted."`
	Table string `json:"table" jsonschema:"Table to generate sample rows for"`
	Rows  int    `json:"rows,omitempty" jsonschema:"Number of sample rows (default 5, max 20)"`
}

func registerPreviewData(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "preview_data",
		Description: `Generate sample rows for a table without inserting anything.
Generators are picked per column from the schema: foreign keys sample the live parent
column, enums match their value set, and everything else falls back to a provider
method guessed from the column name and type. Auto-increment and computed columns
stay NULL because the database fills them on insert.`,
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, handlePreviewData)
}

// previewSource adapts a raw connection to the generation pipeline. The
// zero id is fine here: the resolved spec is never saved.
type previewSource struct {
	db     *sql.DB
	schema string
}

func (p previewSource) ID() (int64, error) { return 0, nil }

func (p previewSource) TableMetadata(name string) (*introspect.Table, error) {
	return introspect.IntrospectTable(p.db, p.schema, name)
}

func (p previewSource) ColumnValues(table, column string) ([]string, error) {
	return introspect.ColumnValues(p.db, table, column)
}

func handlePreviewData(ctx context.Context, _ *mcp.CallToolRequest, args previewDataArgs) (*mcp.CallToolResult, any, error) {
	if args.Table == "" {
		return errResult("table name is required"), nil, nil
	}
	n := args.Rows
	if n <= 0 {
		n = defaultSampleRows
	}
	if n > maxSampleRows {
		n = maxSampleRows
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

	spec := &populate.TableSpec{
		Name:        table.Name,
		NoOfEntries: n,
		PageSize:    n,
		Columns:     heuristicSpecs(table),
	}

	pop := populate.New()
	_, packet, err := pop.BuildPackets(ctx, previewSource{db: db, schema: schema}, spec, populate.NewProgress(n))
	if err != nil {
		return errResult(fmt.Sprintf("generating rows: %v", err)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s.%s — %d sample rows (not inserted)\n\n", schema, table.Name, n)

	rows := make([][]string, len(packet.Entries))
	for i, entry := range packet.Entries {
		row := make([]string, len(entry))
		for j, v := range entry {
			if v == nil {
				row[j] = "NULL"
			} else {
				row[j] = *v
			}
		}
		rows[i] = row
	}
	for _, line := range sqlrunner.Grid(packet.Columns, rows) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if len(packet.Errors) > 0 {
		sb.WriteString("\nColumn warnings:\n")
		for _, e := range packet.Errors {
			fmt.Fprintf(&sb, "  - %s: %s\n", e.Column, e.Msg)
		}
	}

	return textResult(sb.String()), nil, nil
}

// heuristicSpecs derives a generator spec per insertable column from the
// introspected schema, the way a caller would fill a generation request.
func heuristicSpecs(table *introspect.Table) []populate.ColumnSpec {
	specs := make([]populate.ColumnSpec, 0, len(table.Columns))
	for _, col := range table.Columns {
		if col.Computed {
			continue
		}
		kind, text := heuristicGenerator(col)
		spec := populate.ColumnSpec{Name: col.Name, Type: kind}
		if text != "" {
			spec.Generator = &text
		}
		specs = append(specs, spec)
	}
	return specs
}

// heuristicGenerator picks a generator for one column: schema facts first
// (auto-increment, FK, enum), then a provider method guessed from the
// column's name, then one from its type.
func heuristicGenerator(col introspect.Column) (generator.Kind, string) {
	if col.AutoInc {
		return generator.KindAutoInc, ""
	}
	if col.FK != nil {
		return generator.KindForeign, col.FK.Table + "__" + col.FK.Column
	}
	if len(col.EnumValues) > 0 {
		quoted := make([]string, len(col.EnumValues))
		for i, v := range col.EnumValues {
			quoted[i] = regexp.QuoteMeta(v)
		}
		return generator.KindRegex, "^(" + strings.Join(quoted, "|") + ")$"
	}

	name := strings.ToLower(col.Name)
	switch {
	case strings.Contains(name, "email"):
		return generator.KindFaker, "Email"
	case strings.Contains(name, "phone"):
		return generator.KindFaker, "Phone"
	case strings.Contains(name, "city"):
		return generator.KindFaker, "City"
	case strings.Contains(name, "country"):
		return generator.KindFaker, "Country"
	case strings.Contains(name, "uuid") || strings.Contains(name, "guid"):
		return generator.KindFaker, "UUID"
	case strings.Contains(name, "name"):
		return generator.KindFaker, "Name"
	}

	switch strings.ToLower(col.DataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"decimal", "numeric", "float", "double":
		return generator.KindFaker, "Int8"
	case "date", "datetime", "timestamp":
		return generator.KindFaker, "Date"
	case "bit", "bool", "boolean":
		return generator.KindFaker, "Bool"
	default:
		return generator.KindFaker, "Word"
	}
}
