package populate

import (
	"github.com/tomfevang/datasmith/internal/generator"
	"github.com/tomfevang/datasmith/internal/introspect"
)

// ColumnSpec is the client's generation request for one column. Generator is
// nil when the column carries no generator text; Order places python specs
// within the script run.
type ColumnSpec struct {
	Name      string         `json:"name"`
	Generator *string        `json:"generator"`
	Type      generator.Kind `json:"type"`
	Order     int            `json:"order"`
}

func (c ColumnSpec) text() string {
	if c.Generator == nil {
		return ""
	}
	return *c.Generator
}

// TableSpec is a full per-table generation request. DBID is assigned from
// the session when a batch is built.
type TableSpec struct {
	DBID        *int64       `json:"db_id"`
	PageSize    int          `json:"page_size"`
	Name        string       `json:"name"`
	NoOfEntries int          `json:"no_of_entries"`
	Columns     []ColumnSpec `json:"columns"`
}

// ErrorPacket reports one column's validation or generation failure.
type ErrorPacket struct {
	Type   string `json:"type"`
	Column string `json:"column"`
	Msg    string `json:"msg"`
}

// TablePacket is one generated batch, or one page of it. Entries are rows
// parallel to Columns; nil values are SQL NULL. Every page of a paginated
// packet shares the same ID and carries the full TotalEntries.
type TablePacket struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Columns      []string      `json:"columns"`
	Entries      [][]*string   `json:"entries"`
	Errors       []ErrorPacket `json:"errors"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
	TotalPages   int           `json:"total_pages"`
	TotalEntries int           `json:"total_entries"`
}

// Database is the connection surface a generation batch needs. It is a
// superset of generator.ValueSource so the same value feeds stream caches.
type Database interface {
	ID() (int64, error)
	TableMetadata(name string) (*introspect.Table, error)
	ColumnValues(table, column string) ([]string, error)
}
