// Package sqlrunner executes ad-hoc monitor statements with a hard
// timeout and renders results as bordered text grids.
package sqlrunner

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	queryTimeout = 10 * time.Second

	// maxRows keeps huge result sets from freezing the UI.
	maxRows = 250
)

// Run executes one statement and folds every outcome, errors included,
// into monitor output lines. It never returns an error: the caller always
// gets something printable.
func Run(ctx context.Context, db *sql.DB, stmt string) []string {
	return run(ctx, db, stmt, queryTimeout)
}

func run(ctx context.Context, db *sql.DB, stmt string, timeout time.Duration) []string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan []string, 1)
	go func() {
		defer func() {
			if recover() != nil {
				results <- []string{""}
			}
		}()
		results <- execute(ctx, db, stmt)
	}()

	select {
	case out := <-results:
		return out
	case <-ctx.Done():
		return []string{fmt.Sprintf("ERROR 408 (HYT00): Query timed out after %.2f sec", timeout.Seconds())}
	}
}

func execute(ctx context.Context, db *sql.DB, stmt string) []string {
	if !returnsRows(stmt) {
		res, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return errorLine(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errorLine(err)
		}
		return []string{fmt.Sprintf("Query OK, %d row(s) affected", n)}
	}

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return errorLine(err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return errorLine(err)
	}

	var data [][]string
	for rows.Next() && len(data) < maxRows {
		cells := make([]sql.NullString, len(headers))
		scan := make([]any, len(headers))
		for i := range cells {
			scan[i] = &cells[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return errorLine(err)
		}
		row := make([]string, len(headers))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return errorLine(err)
	}

	out := Grid(headers, data)
	out = append(out, fmt.Sprintf("%d row(s) in set", len(data)))
	return out
}

func errorLine(err error) []string {
	return []string{"ERROR 8008 (4200): " + err.Error()}
}

// returnsRows guesses whether a statement produces a result set from its
// leading keyword.
func returnsRows(stmt string) bool {
	head := strings.TrimLeft(stmt, " \t\r\n(")
	if i := strings.IndexAny(head, " \t\r\n;("); i >= 0 {
		head = head[:i]
	}
	switch strings.ToUpper(head) {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH", "TABLE", "VALUES":
		return true
	}
	return false
}

// Grid renders rows as a bordered table. Numeric columns are right
// aligned, everything else left aligned.
func Grid(headers []string, rows [][]string) []string {
	widths := make([]int, len(headers))
	numeric := make([]bool, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
		numeric[i] = true
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
			if numeric[i] && cell != "" {
				if _, err := strconv.ParseFloat(cell, 64); err != nil {
					numeric[i] = false
				}
			}
		}
	}
	if len(rows) == 0 {
		for i := range numeric {
			numeric[i] = false
		}
	}

	border := gridRule(widths, '-')
	lines := make([]string, 0, 2*len(rows)+3)
	lines = append(lines, border)
	lines = append(lines, gridRow(headers, widths, numeric))
	lines = append(lines, gridRule(widths, '='))
	for _, row := range rows {
		lines = append(lines, gridRow(row, widths, numeric))
		lines = append(lines, border)
	}
	return lines
}

func gridRule(widths []int, fill byte) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat(string(fill), w+2))
		b.WriteByte('+')
	}
	return b.String()
}

func gridRow(cells []string, widths []int, numeric []bool) string {
	var b strings.Builder
	b.WriteByte('|')
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", w-len(cell))
		if numeric[i] {
			b.WriteString(" " + pad + cell + " ")
		} else {
			b.WriteString(" " + cell + pad + " ")
		}
		b.WriteByte('|')
	}
	return b.String()
}
