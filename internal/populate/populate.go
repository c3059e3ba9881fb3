package populate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tomfevang/datasmith/internal/generator"
	"github.com/tomfevang/datasmith/internal/introspect"
)

// retryBudget is how many candidates a stream may offer per row before the
// column is declared unfillable.
const retryBudget = 10

// defaultPageSize applies when a spec or packet carries no page size.
const defaultPageSize = 100

// Populator drives row-major batch generation and owns the paginated cache
// of the most recent result. BuildPackets may run on a job goroutine; the
// pagination cache belongs to the dispatch loop and is replaced wholesale
// by each generation.
type Populator struct {
	registry *generator.Registry
	pages    []*TablePacket
}

func New() *Populator {
	return &Populator{registry: generator.NewRegistry()}
}

// Methods returns the callable fake-value provider method names.
func (p *Populator) Methods() []string {
	return p.registry.Methods()
}

// runColumn is one accepted generator in the ordered run list.
type runColumn struct {
	spec   ColumnSpec
	col    *introspect.Column
	stream generator.Stream
}

// BuildPackets generates one full batch for the spec against the given
// database. It assigns the session's db id to the spec, validates and
// orders the column generators, fills rows, and wraps the result in a
// TablePacket with a fresh id. Column-level failures degrade to error
// packets on the result; only connection-level failures abort the batch.
func (p *Populator) BuildPackets(ctx context.Context, db Database, spec *TableSpec, progress *Progress) (*TableSpec, *TablePacket, error) {
	dbID, err := db.ID()
	if err != nil {
		return nil, nil, errors.New("Database not initialized with a valid ID.")
	}
	spec.DBID = &dbID
	if spec.PageSize <= 0 {
		spec.PageSize = defaultPageSize
	}

	table, err := db.TableMetadata(spec.Name)
	if err != nil {
		return nil, nil, err
	}

	progress.SetStatus("validating")
	errs, ordered := p.validateAndSort(spec.Columns, table)

	progress.SetStatus("building")
	fillErrs, entries, err := p.fill(ctx, db, table, ordered, spec, progress)
	if err != nil {
		return nil, nil, err
	}
	errs = append(errs, fillErrs...)
	progress.SetColumn("")

	columns := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		columns = append(columns, c.Name)
	}
	rows := make([][]*string, spec.NoOfEntries)
	for r := range rows {
		row := make([]*string, len(columns))
		for i, name := range columns {
			row[i] = entries[name][r]
		}
		rows[r] = row
	}

	return spec, &TablePacket{
		ID:           uuid.NewString(),
		Name:         spec.Name,
		Columns:      columns,
		Entries:      rows,
		Errors:       errs,
		Page:         0,
		PageSize:     spec.PageSize,
		TotalEntries: len(rows),
		TotalPages:   1,
	}, nil
}

// validateAndSort splits the specs into the ordered run list: accepted
// ordinary generators in input order, then script generators by ascending
// order hint (collisions bump the later arrival until its hint is free).
// Passthrough and generator-less columns are skipped; they stay NULL.
// Rejected columns become error packets and are dropped.
func (p *Populator) validateAndSort(specs []ColumnSpec, table *introspect.Table) ([]ErrorPacket, []ColumnSpec) {
	errs := []ErrorPacket{}
	var ordered []ColumnSpec
	scripts := make(map[int]ColumnSpec)

	for _, spec := range specs {
		if spec.Type == "" || spec.Type.Passthrough() || spec.Generator == nil {
			continue
		}

		col, _ := table.Column(spec.Name) // bounds check is skipped for unknown columns
		hint, err := p.registry.Validate(spec.Type, spec.text(), spec.Order, col)
		if err != nil {
			errs = append(errs, ErrorPacket{
				Type:   "error",
				Column: spec.Name,
				Msg:    fmt.Sprintf("Error in column '%s': %s", spec.Name, err),
			})
			continue
		}

		if spec.Type == generator.KindScript {
			for {
				if _, taken := scripts[hint]; !taken {
					break
				}
				hint++
			}
			scripts[hint] = spec
			continue
		}
		ordered = append(ordered, spec)
	}

	hints := make([]int, 0, len(scripts))
	for h := range scripts {
		hints = append(hints, h)
	}
	sort.Ints(hints)
	for _, h := range hints {
		ordered = append(ordered, scripts[h])
	}

	return errs, ordered
}

// fill drives the row-major loop. Every spec column gets a pre-sized NULL
// slice; accepted generators overwrite their column row by row. A column
// whose stream fails or whose retry budget exhausts is dropped for the
// remainder of the batch and reported.
func (p *Populator) fill(
	ctx context.Context,
	db Database,
	table *introspect.Table,
	ordered []ColumnSpec,
	spec *TableSpec,
	progress *Progress,
) ([]ErrorPacket, map[string][]*string, error) {
	errs := []ErrorPacket{}

	entries := make(map[string][]*string, len(spec.Columns))
	for _, c := range spec.Columns {
		entries[c.Name] = make([]*string, spec.NoOfEntries)
	}
	gctx := generator.NewContext(db, spec.Name, entries)

	run := make([]runColumn, 0, len(ordered))
	for _, cs := range ordered {
		col, err := table.Column(cs.Name)
		if err != nil {
			errs = append(errs, ErrorPacket{Type: "error", Column: cs.Name, Msg: err.Error()})
			continue
		}
		stream, err := p.registry.Stream(cs.Type, cs.text(), *col, gctx)
		if err != nil {
			errs = append(errs, ErrorPacket{Type: "error", Column: cs.Name, Msg: err.Error()})
			continue
		}
		run = append(run, runColumn{spec: cs, col: col, stream: stream})
	}

	for rowIdx := 0; rowIdx < spec.NoOfEntries; rowIdx++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		gctx.NextRow(rowIdx)
		progress.SetRow(rowIdx)

		i := 0
		for i < len(run) {
			rc := run[i]
			progress.SetColumn(rc.spec.Name)

			var streamErr error
			accepted := false
			for try := 0; try < retryBudget; try++ {
				value, err := rc.stream()
				if err != nil {
					streamErr = err
					break
				}
				ok, err := isValid(gctx, rc.col, value, rowIdx)
				if err != nil {
					streamErr = err
					break
				}
				if ok {
					entries[rc.spec.Name][rowIdx] = value
					gctx.Filled[rc.spec.Name] = true
					accepted = true
					break
				}
			}

			if accepted {
				i++
				continue
			}

			// The column is dead for the rest of the batch; the next
			// generator now occupies slot i.
			run = append(run[:i], run[i+1:]...)
			switch {
			case streamErr != nil:
				kind := "error"
				var w *generator.Warning
				if errors.As(streamErr, &w) {
					kind = "warning"
				}
				errs = append(errs, ErrorPacket{Type: kind, Column: rc.spec.Name, Msg: streamErr.Error()})
			default:
				kind := "error"
				if rc.col.Nullable {
					kind = "warning"
				}
				errs = append(errs, ErrorPacket{
					Type:   kind,
					Column: rc.spec.Name,
					Msg:    fmt.Sprintf("Generated values for %s couldn't meet UNIQUE or MULTI-UNIQUE constraints.", rc.spec.Name),
				})
			}
		}
	}

	return errs, entries, nil
}

// isValid applies the uniqueness predicate to a candidate value. Existing
// database values are fetched once per (table, column) into the job cache;
// the fetch error, if any, kills the calling generator.
func isValid(gctx *generator.Context, col *introspect.Column, value *string, rowIdx int) (bool, error) {
	if value == nil {
		return true, nil
	}

	if col.Unique {
		seen, err := gctx.CachedSet(gctx.Table, col.Name)
		if err != nil {
			return false, err
		}
		if seen[*value] {
			return false, nil
		}
		for _, prev := range gctx.Entries[col.Name][:rowIdx] {
			if prev != nil && *prev == *value {
				return false, nil
			}
		}
	}

	if len(col.MultiUnique) > 0 {
		siblings := col.MultiUnique
		if !contains(siblings, col.Name) {
			siblings = append(append([]string(nil), siblings...), col.Name)
		}

		// Defer the tuple check to the last sibling filled this row.
		for _, s := range siblings {
			if s != col.Name && !gctx.Filled[s] {
				return true, nil
			}
		}

		current := make([]*string, len(siblings))
		for i, s := range siblings {
			if s == col.Name {
				current[i] = value
			} else {
				current[i] = gctx.Entries[s][rowIdx]
			}
		}
		if hasNil(current) {
			return true, nil
		}

		for r := 0; r < rowIdx; r++ {
			prev := make([]*string, len(siblings))
			for i, s := range siblings {
				if vs, ok := gctx.Entries[s]; ok {
					prev[i] = vs[r]
				}
			}
			if hasNil(prev) {
				continue
			}
			if tuplesEqual(prev, current) {
				return false, nil
			}
		}

		for i, s := range siblings {
			seen, err := gctx.CachedSet(gctx.Table, s)
			if err != nil {
				return false, err
			}
			if seen[*current[i]] {
				return false, nil
			}
		}
	}

	return true, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func hasNil(tuple []*string) bool {
	for _, v := range tuple {
		if v == nil {
			return true
		}
	}
	return false
}

func tuplesEqual(a, b []*string) bool {
	for i := range a {
		if *a[i] != *b[i] {
			return false
		}
	}
	return true
}

// Paginate slices the packet into per-page packets sharing one fresh id
// and replaces the cache with them. Returns page 0. An empty packet still
// produces a single empty page.
func (p *Populator) Paginate(packet *TablePacket) *TablePacket {
	pageSize := packet.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	total := len(packet.Entries)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	id := uuid.NewString()
	pages := make([]*TablePacket, 0, totalPages)
	for pageIdx := 0; pageIdx < totalPages; pageIdx++ {
		lo := pageIdx * pageSize
		hi := lo + pageSize
		if hi > total {
			hi = total
		}
		pages = append(pages, &TablePacket{
			ID:           id,
			Name:         packet.Name,
			Columns:      packet.Columns,
			Entries:      packet.Entries[lo:hi],
			Errors:       packet.Errors,
			Page:         pageIdx,
			PageSize:     pageSize,
			TotalEntries: total,
			TotalPages:   totalPages,
		})
	}

	p.pages = pages
	return pages[0]
}

// PacketPage returns one page of the cached packet. A nil page returns a
// synthetic packet concatenating every page's entries under the same id;
// the cache itself is left untouched.
func (p *Populator) PacketPage(packetID string, page *int) (*TablePacket, error) {
	if len(p.pages) == 0 {
		return nil, errors.New("No cached packet found. Please generate the packet first.")
	}
	if page != nil && (*page < 0 || *page >= len(p.pages)) {
		return nil, fmt.Errorf("Page %d out of range. Total pages: %d.", *page, len(p.pages))
	}

	pageName := "null"
	pkt := p.pages[0]
	if page != nil {
		pkt = p.pages[*page]
		pageName = fmt.Sprintf("%d", *page)
	}
	if pkt.ID != packetID {
		return nil, fmt.Errorf("No packet found for ID %s on page %s.", packetID, pageName)
	}

	if page == nil {
		var entries [][]*string
		for _, pg := range p.pages {
			entries = append(entries, pg.Entries...)
		}
		full := *pkt
		full.Entries = entries
		return &full, nil
	}
	return pkt, nil
}
