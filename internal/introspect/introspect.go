package introspect

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ForeignKeyRef identifies the target of a foreign-key edge. Both fields
// are empty when a column has no FK.
type ForeignKeyRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

type Column struct {
	Name        string
	DataType    string // e.g. "varchar", "int", "enum"
	TypeString  string // e.g. "enum('a','b')", "int unsigned"
	Nullable    bool
	PrimaryKey  bool
	Unique      bool     // member of a single-column unique group
	MultiUnique []string // sorted siblings of one composite unique group, nil when none
	AutoInc     bool
	Computed    bool
	MaxLength   *int64
	Precision   *int64
	Scale       *int64
	EnumValues  []string // parsed from TypeString for enums and sets
	Default     *string
	FK          *ForeignKeyRef
}

// IsIntegerType returns true if the column's data type is an integer type.
func (c Column) IsIntegerType() bool {
	switch strings.ToLower(c.DataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return true
	default:
		return false
	}
}

type Table struct {
	Name    string
	Columns []Column
}

// Column returns the named column or fails loudly.
func (t *Table) Column(name string) (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("Column '%s' not found in table '%s'.", name, t.Name)
}

// Parents returns the distinct names of FK-referenced tables, sorted.
func (t *Table) Parents() []string {
	seen := make(map[string]bool)
	var parents []string
	for i := range t.Columns {
		fk := t.Columns[i].FK
		if fk == nil || seen[fk.Table] {
			continue
		}
		seen[fk.Table] = true
		parents = append(parents, fk.Table)
	}
	sort.Strings(parents)
	return parents
}

// ColumnMetadata is the wire view of a column.
type ColumnMetadata struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Unique      bool          `json:"unique"`
	MultiUnique []string      `json:"multi_unique"`
	PrimaryKey  bool          `json:"primary_key"`
	Nullable    bool          `json:"nullable"`
	Default     *string       `json:"default"`
	AutoInc     bool          `json:"autoincrement"`
	Computed    bool          `json:"computed"`
	ForeignKeys ForeignKeyRef `json:"foreign_keys"`
	Length      *int64        `json:"length"`
	Precision   *int64        `json:"precision"`
	Scale       *int64        `json:"scale"`
}

func (c Column) Metadata() ColumnMetadata {
	m := ColumnMetadata{
		Name:        c.Name,
		Type:        c.TypeString,
		Unique:      c.Unique,
		MultiUnique: c.MultiUnique,
		PrimaryKey:  c.PrimaryKey,
		Nullable:    c.Nullable,
		Default:     c.Default,
		AutoInc:     c.AutoInc,
		Computed:    c.Computed,
		Length:      c.MaxLength,
		Precision:   c.Precision,
		Scale:       c.Scale,
	}
	if c.FK != nil {
		m.ForeignKeys = *c.FK
	}
	return m
}

// TableMetadata is the wire view of a table.
type TableMetadata struct {
	Name    string           `json:"name"`
	Parents []string         `json:"parents"`
	Columns []ColumnMetadata `json:"columns"`
}

func (t *Table) Metadata() TableMetadata {
	cols := make([]ColumnMetadata, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, c.Metadata())
	}
	return TableMetadata{Name: t.Name, Parents: t.Parents(), Columns: cols}
}

var enumRegex = regexp.MustCompile(`'([^']*)'`)

func parseEnumValues(columnType string) []string {
	matches := enumRegex.FindAllStringSubmatch(columnType, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m[1])
	}
	return values
}

// ListTables returns all base table names in the given database schema.
func ListTables(db *sql.DB, schema string) ([]string, error) {
	rows, err := db.Query(
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`, schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// IntrospectTable returns the full column, FK, and uniqueness metadata for
// a single table. An unknown table is reported in wire form.
func IntrospectTable(db *sql.DB, schema, tableName string) (*Table, error) {
	columns, err := introspectColumns(db, schema, tableName)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("Table '%s' does not exist in the database.", tableName)
	}

	fks, err := introspectFKs(db, schema, tableName)
	if err != nil {
		return nil, err
	}
	for i := range columns {
		if fk, ok := fks[columns[i].Name]; ok {
			columns[i].FK = fk
		}
	}

	groups, err := introspectUniqueGroups(db, schema, tableName)
	if err != nil {
		return nil, err
	}
	applyUniqueness(columns, groups)

	return &Table{Name: tableName, Columns: columns}, nil
}

func introspectColumns(db *sql.DB, schema, tableName string) ([]Column, error) {
	rows, err := db.Query(`
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE,
		       COLUMN_KEY, EXTRA, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION,
		       NUMERIC_SCALE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("introspecting columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			col        Column
			isNullable string
			colKey     string
			extra      string
			maxLen     sql.NullInt64
			precision  sql.NullInt64
			scale      sql.NullInt64
			def        sql.NullString
		)
		if err := rows.Scan(
			&col.Name, &col.DataType, &col.TypeString,
			&isNullable, &colKey, &extra,
			&maxLen, &precision, &scale, &def,
		); err != nil {
			return nil, fmt.Errorf("scanning column for %s: %w", tableName, err)
		}

		col.Nullable = isNullable == "YES"
		col.PrimaryKey = colKey == "PRI"
		col.AutoInc = strings.Contains(extra, "auto_increment")
		col.Computed = strings.Contains(extra, "GENERATED")

		if maxLen.Valid {
			col.MaxLength = &maxLen.Int64
		}
		if precision.Valid {
			col.Precision = &precision.Int64
		}
		if scale.Valid {
			col.Scale = &scale.Int64
		}
		if def.Valid {
			col.Default = &def.String
		}

		if strings.ToLower(col.DataType) == "enum" || strings.ToLower(col.DataType) == "set" {
			col.EnumValues = parseEnumValues(col.TypeString)
		}

		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func introspectFKs(db *sql.DB, schema, tableName string) (map[string]*ForeignKeyRef, error) {
	rows, err := db.Query(`
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL`,
		schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("introspecting FKs for %s: %w", tableName, err)
	}
	defer rows.Close()

	fks := make(map[string]*ForeignKeyRef)
	for rows.Next() {
		var colName, refTable, refCol string
		if err := rows.Scan(&colName, &refTable, &refCol); err != nil {
			return nil, fmt.Errorf("scanning FK for %s: %w", tableName, err)
		}
		fks[colName] = &ForeignKeyRef{Table: refTable, Column: refCol}
	}
	return fks, rows.Err()
}

// introspectUniqueGroups returns every unique column group, the primary key
// included, in discovery order.
func introspectUniqueGroups(db *sql.DB, schema, tableName string) ([][]string, error) {
	rows, err := db.Query(`
		SELECT INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND NON_UNIQUE = 0
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("introspecting unique indexes for %s: %w", tableName, err)
	}
	defer rows.Close()

	indexMap := make(map[string][]string) // index name -> ordered columns
	var indexOrder []string               // preserve discovery order
	for rows.Next() {
		var idxName, colName string
		if err := rows.Scan(&idxName, &colName); err != nil {
			return nil, fmt.Errorf("scanning unique index for %s: %w", tableName, err)
		}
		if _, seen := indexMap[idxName]; !seen {
			indexOrder = append(indexOrder, idxName)
		}
		indexMap[idxName] = append(indexMap[idxName], colName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([][]string, 0, len(indexOrder))
	for _, name := range indexOrder {
		groups = append(groups, indexMap[name])
	}
	return groups, nil
}

// applyUniqueness marks each column unique when it forms a single-column
// group, and attaches the first composite group containing it as its
// multi-unique siblings. Groups are normalized to sorted tuples.
func applyUniqueness(columns []Column, groups [][]string) {
	normalized := make([][]string, 0, len(groups))
	for _, g := range groups {
		n := append([]string(nil), g...)
		sort.Strings(n)
		normalized = append(normalized, n)
	}

	for i := range columns {
		name := columns[i].Name
		for _, g := range normalized {
			if len(g) == 1 && g[0] == name {
				columns[i].Unique = true
				break
			}
		}
		for _, g := range normalized {
			if len(g) < 2 {
				continue
			}
			for _, member := range g {
				if member == name {
					columns[i].MultiUnique = g
					break
				}
			}
			if columns[i].MultiUnique != nil {
				break
			}
		}
	}
}

// TableInfo is the get_db_tables row: live count plus FK fan-in.
type TableInfo struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Parents int    `json:"parents"`
}

// Tables returns per-table row counts and the number of distinct
// FK-referenced tables, keyed by name.
func Tables(db *sql.DB, schema string) (map[string]TableInfo, error) {
	names, err := ListTables(db, schema)
	if err != nil {
		return nil, err
	}

	infos := make(map[string]TableInfo, len(names))
	for _, name := range names {
		fks, err := introspectFKs(db, schema, name)
		if err != nil {
			return nil, err
		}
		parents := make(map[string]bool)
		for _, fk := range fks {
			parents[fk.Table] = true
		}

		var count int64
		if err := db.QueryRow("SELECT COUNT(*) FROM `" + name + "`").Scan(&count); err != nil {
			return nil, fmt.Errorf("counting rows for %s: %w", name, err)
		}

		infos[name] = TableInfo{Name: name, Rows: count, Parents: len(parents)}
	}
	return infos, nil
}

// RowCounts runs one UNION ALL statement counting every listed table.
func RowCounts(db *sql.DB, tables []string) (map[string]int64, error) {
	if len(tables) == 0 {
		return map[string]int64{}, nil
	}

	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf("SELECT '%s' AS name, COUNT(*) AS total FROM `%s`", t, t))
	}
	rows, err := db.Query(strings.Join(parts, " UNION ALL "))
	if err != nil {
		return nil, fmt.Errorf("counting table rows: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, len(tables))
	for rows.Next() {
		var name string
		var total int64
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("scanning row count: %w", err)
		}
		counts[name] = total
	}
	return counts, rows.Err()
}

// ColumnValues returns every non-null value currently stored in the column,
// stringified the way the driver renders them.
func ColumnValues(db *sql.DB, table, column string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(
		"SELECT `%s` FROM `%s` WHERE `%s` IS NOT NULL", column, table, column))
	if err != nil {
		return nil, fmt.Errorf("fetching values for %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.RawBytes
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning value for %s.%s: %w", table, column, err)
		}
		values = append(values, string(v))
	}
	return values, rows.Err()
}
