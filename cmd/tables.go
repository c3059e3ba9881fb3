package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/tomfevang/datasmith/internal/depgraph"
	"github.com/tomfevang/datasmith/internal/introspect"
)

var tablesDSN string

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List a database's tables in dependency order",
	Long: `The tables subcommand connects once, introspects every table, and prints
them topologically sorted by foreign-key dependencies — parents before
children — with live row counts. FK edges removed to break cycles are
reported at the end.`,
	RunE: runTables,
}

func init() {
	tablesCmd.Flags().StringVar(&tablesDSN, "dsn", "",
		"MySQL DSN, e.g. user:pass@tcp(localhost:3306)/mydb")

	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	dsn := resolveDSN(cmd, tablesDSN)
	if dsn == "" {
		return fmt.Errorf("DSN is required — set via --dsn flag or DATASMITH_DSN env var")
	}

	schema := extractSchema(dsn)
	if schema == "" {
		return fmt.Errorf("could not extract database name from DSN — ensure it ends with /dbname")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("connecting to MySQL: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("pinging MySQL: %w", err)
	}

	names, err := introspect.ListTables(db, schema)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no tables found in schema %s", schema)
	}

	tables := make(map[string]*introspect.Table, len(names))
	for _, name := range names {
		t, err := introspect.IntrospectTable(db, schema, name)
		if err != nil {
			return err
		}
		tables[name] = t
	}

	order, dropped := depgraph.Sort(names, tables)
	counts, err := introspect.RowCounts(db, order)
	if err != nil {
		return err
	}

	fmt.Printf("Schema: %s (%d tables, dependency order)\n\n", schema, len(order))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, name := range order {
		var fks []string
		for _, col := range tables[name].Columns {
			if col.FK != nil {
				fks = append(fks, fmt.Sprintf("%s -> %s.%s", col.Name, col.FK.Table, col.FK.Column))
			}
		}
		fmt.Fprintf(w, "%d.\t%s\t%d rows\t%s\n", i+1, name, counts[name], strings.Join(fks, ", "))
	}
	w.Flush()

	if len(dropped) > 0 {
		fmt.Println("\nCycle edges ignored for ordering:")
		for _, e := range dropped {
			fmt.Printf("  %s -> %s\n", e.Child, e.Parent)
		}
	}
	return nil
}

func extractSchema(dsn string) string {
	// DSN format: user:pass@tcp(host:port)/dbname?params
	idx := strings.LastIndex(dsn, "/")
	if idx == -1 || idx == len(dsn)-1 {
		return ""
	}
	schema := dsn[idx+1:]
	// Strip query params.
	if qIdx := strings.Index(schema, "?"); qIdx != -1 {
		schema = schema[:qIdx]
	}
	return schema
}
