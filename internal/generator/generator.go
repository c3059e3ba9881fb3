package generator

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"reflect"
	"regexp"
	"strings"
	"text/template"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/tomfevang/datasmith/internal/introspect"
)

// Kind identifies a generator strategy for one column.
type Kind string

const (
	KindFaker    Kind = "faker"
	KindRegex    Kind = "regex"
	KindForeign  Kind = "foreign"
	KindScript   Kind = "python" // wire name retained by the protocol
	KindConstant Kind = "constant"
	KindAutoInc  Kind = "autoincrement"
	KindComputed Kind = "computed"
	KindNull     Kind = "null"
)

// Passthrough reports whether the column's value is left to the database:
// the stream yields NULL for every row and is never validated or ordered.
func (k Kind) Passthrough() bool {
	return k == KindAutoInc || k == KindComputed || k == KindNull
}

// Warning marks a stream failure that only degrades a nullable column;
// the remaining rows of that column stay NULL.
type Warning struct {
	Msg string
}

func (w *Warning) Error() string { return w.Msg }

// ValueSource supplies the database reads a stream may need.
type ValueSource interface {
	ColumnValues(table, column string) ([]string, error)
}

// Stream produces one candidate value per call; nil is SQL NULL.
type Stream func() (*string, error)

type columnCache struct {
	distinct []string
	set      map[string]bool
}

// Context is the state one generation job shares across its streams.
// Entries maps every spec column to a row-indexed value slice; Filled
// tracks the columns already written for the current row. Lookup results
// are cached per (table, column) and die with the job.
type Context struct {
	Source  ValueSource
	Table   string
	RowIdx  int
	Entries map[string][]*string
	Filled  map[string]bool

	cache map[string]*columnCache
}

func NewContext(source ValueSource, table string, entries map[string][]*string) *Context {
	return &Context{
		Source:  source,
		Table:   table,
		Entries: entries,
		Filled:  make(map[string]bool),
		cache:   make(map[string]*columnCache),
	}
}

// NextRow advances the context to the given row and resets the filled set.
func (c *Context) NextRow(rowIdx int) {
	c.RowIdx = rowIdx
	c.Filled = make(map[string]bool)
}

func (c *Context) lookup(table, column string) (*columnCache, error) {
	key := fmt.Sprintf("%s.%s", table, column)
	if cached, ok := c.cache[key]; ok {
		return cached, nil
	}

	values, err := c.Source.ColumnValues(table, column)
	if err != nil {
		return nil, err
	}
	cc := &columnCache{set: make(map[string]bool, len(values))}
	for _, v := range values {
		if !cc.set[v] {
			cc.set[v] = true
			cc.distinct = append(cc.distinct, v)
		}
	}
	c.cache[key] = cc
	return cc, nil
}

// CachedDistinct returns the distinct values stored in the column,
// fetched once per job.
func (c *Context) CachedDistinct(table, column string) ([]string, error) {
	cc, err := c.lookup(table, column)
	if err != nil {
		return nil, err
	}
	return cc.distinct, nil
}

// CachedSet returns the same values as a membership set.
func (c *Context) CachedSet(table, column string) (map[string]bool, error) {
	cc, err := c.lookup(table, column)
	if err != nil {
		return nil, err
	}
	return cc.set, nil
}

// Row returns the filled values of the current row, keyed by column name,
// for script templates. Unfilled columns are absent so a script reading
// one fails the same way every call.
func (c *Context) Row() map[string]any {
	row := make(map[string]any, len(c.Filled))
	for col := range c.Filled {
		if vs, ok := c.Entries[col]; ok && c.RowIdx < len(vs) && vs[c.RowIdx] != nil {
			row[col] = *vs[c.RowIdx]
		}
	}
	return row
}

// Registry binds the fake-value provider to the generator kinds. Each kind
// exposes a syntactic check and a per-row candidate stream.
type Registry struct {
	faker *gofakeit.Faker
	funcs template.FuncMap
}

func NewRegistry() *Registry {
	f := gofakeit.New(0)
	return &Registry{faker: f, funcs: FuncMap(f)}
}

// Validate checks the generator text for the kind and returns the ordering
// hint: the spec's order for script generators, zero otherwise. col may be
// nil when the column is not present in the table metadata; the numeric
// bounds check is skipped then.
func (r *Registry) Validate(kind Kind, text string, order int, col *introspect.Column) (int, error) {
	switch kind {
	case KindFaker:
		if _, err := r.method(text); err != nil {
			return 0, err
		}
		if col != nil {
			if err := checkNumericBounds(col); err != nil {
				return 0, err
			}
		}
		return 0, nil

	case KindRegex:
		if _, err := regexp.Compile(text); err != nil {
			return 0, err
		}
		return 0, nil

	case KindForeign:
		if _, _, err := splitForeign(text); err != nil {
			return 0, err
		}
		return 0, nil

	case KindScript:
		if _, err := r.parseScript(text); err != nil {
			return 0, err
		}
		return order, nil

	case KindConstant, KindAutoInc, KindComputed, KindNull:
		return 0, nil

	default:
		return 0, fmt.Errorf("Unknown generator type '%s'.", kind)
	}
}

// Stream builds the per-row candidate producer for the column.
func (r *Registry) Stream(kind Kind, text string, col introspect.Column, ctx *Context) (Stream, error) {
	switch kind {
	case KindFaker:
		return r.fakerStream(text, col)

	case KindRegex:
		return r.regexStream(text), nil

	case KindForeign:
		return r.foreignStream(text, col, ctx)

	case KindScript:
		return r.scriptStream(text, ctx)

	case KindConstant:
		return func() (*string, error) {
			v := text
			return &v, nil
		}, nil

	case KindAutoInc, KindComputed, KindNull:
		return func() (*string, error) { return nil, nil }, nil

	default:
		return nil, fmt.Errorf("Unknown generator type '%s'.", kind)
	}
}

// method resolves a provider method by name, case-insensitively, accepting
// only methods callable without arguments.
func (r *Registry) method(name string) (reflect.Value, error) {
	fn, ok := r.funcs[name]
	if !ok {
		for fname, f := range r.funcs {
			if strings.EqualFold(fname, name) {
				fn, ok = f, true
				break
			}
		}
	}
	if ok {
		v := reflect.ValueOf(fn)
		if v.Kind() == reflect.Func && v.Type().NumIn() == 0 && v.Type().NumOut() > 0 {
			return v, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("Faker method '%s' is not callable or doesn't exist.", name)
}

func (r *Registry) fakerStream(method string, col introspect.Column) (Stream, error) {
	fn, err := r.method(method)
	if err != nil {
		return nil, err
	}
	return func() (*string, error) {
		out := fn.Call(nil)
		if len(out) > 1 {
			if e, ok := out[len(out)-1].Interface().(error); ok && e != nil {
				return nil, e
			}
		}
		rendered, err := renderValue(out[0], col)
		if err != nil {
			return nil, err
		}
		return &rendered, nil
	}, nil
}

func (r *Registry) regexStream(pattern string) Stream {
	return func() (*string, error) {
		v := r.faker.Regex(pattern)
		return &v, nil
	}
}

func splitForeign(text string) (string, string, error) {
	parts := strings.SplitN(text, "__", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("foreign reference '%s' must look like 'table__column'", text)
	}
	return parts[0], parts[1], nil
}

func (r *Registry) foreignStream(text string, col introspect.Column, ctx *Context) (Stream, error) {
	table, column, err := splitForeign(text)
	if err != nil {
		return nil, err
	}
	return func() (*string, error) {
		values, err := ctx.CachedDistinct(table, column)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			msg := fmt.Sprintf("Foreign column '%s.%s' has no values to sample.", table, column)
			if col.Nullable {
				return nil, &Warning{Msg: msg}
			}
			return nil, fmt.Errorf("%s", msg)
		}
		v := values[rand.IntN(len(values))]
		return &v, nil
	}, nil
}

func (r *Registry) parseScript(text string) (*template.Template, error) {
	return template.New("generator").Funcs(r.funcs).Option("missingkey=error").Parse(text)
}

func (r *Registry) scriptStream(text string, ctx *Context) (Stream, error) {
	tmpl, err := r.parseScript(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	return func() (*string, error) {
		buf.Reset()
		if err := tmpl.Execute(&buf, map[string]any{"columns": ctx.Row()}); err != nil {
			return nil, err
		}
		v := buf.String()
		return &v, nil
	}, nil
}
