package generator

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/tomfevang/datasmith/internal/introspect"
)

type fakeSource struct {
	values map[string][]string
	err    error
	calls  int
}

func (f *fakeSource) ColumnValues(table, column string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.values[table+"."+column], nil
}

func strPtr(s string) *string { return &s }
func i64(v int64) *int64      { return &v }

func TestKindPassthrough(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected bool
	}{
		{KindFaker, false},
		{KindRegex, false},
		{KindForeign, false},
		{KindScript, false},
		{KindConstant, false},
		{KindAutoInc, true},
		{KindComputed, true},
		{KindNull, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Passthrough(); got != tt.expected {
				t.Errorf("Passthrough(%q) = %v, want %v", tt.kind, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name      string
		kind      Kind
		text      string
		order     int
		col       *introspect.Column
		wantOrder int
		wantErr   bool
		errMsg    string
	}{
		{name: "faker_exact", kind: KindFaker, text: "Name"},
		{name: "faker_case_insensitive", kind: KindFaker, text: "name"},
		{name: "faker_unknown", kind: KindFaker, text: "NoSuchMethod",
			wantErr: true, errMsg: "Faker method 'NoSuchMethod' is not callable or doesn't exist."},
		{name: "faker_needs_arguments", kind: KindFaker, text: "IntRange",
			wantErr: true, errMsg: "Faker method 'IntRange' is not callable or doesn't exist."},
		{name: "faker_valid_column", kind: KindFaker, text: "Int8",
			col: &introspect.Column{Name: "amount", Precision: i64(5), Scale: i64(2)}},
		{name: "faker_bad_bounds", kind: KindFaker, text: "Int8",
			col:     &introspect.Column{Name: "amount", Precision: i64(1), Scale: i64(2)},
			wantErr: true, errMsg: "Invalid SQL definition: scale (2) > precision (1)"},
		{name: "regex_valid", kind: KindRegex, text: "[a-z]{3}"},
		{name: "regex_invalid", kind: KindRegex, text: "[", wantErr: true},
		{name: "foreign_valid", kind: KindForeign, text: "users__id"},
		{name: "foreign_missing_separator", kind: KindForeign, text: "users",
			wantErr: true, errMsg: "foreign reference 'users' must look like 'table__column'"},
		{name: "foreign_empty_table", kind: KindForeign, text: "__id",
			wantErr: true, errMsg: "foreign reference '__id' must look like 'table__column'"},
		{name: "script_valid", kind: KindScript, text: "{{.columns.first_name}}", order: 7, wantOrder: 7},
		{name: "script_invalid", kind: KindScript, text: "{{", order: 3, wantErr: true},
		{name: "constant", kind: KindConstant, text: "anything at all"},
		{name: "autoincrement", kind: KindAutoInc},
		{name: "computed", kind: KindComputed},
		{name: "null", kind: KindNull},
		{name: "unknown_kind", kind: Kind("lorem"),
			wantErr: true, errMsg: "Unknown generator type 'lorem'."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := r.Validate(tt.kind, tt.text, tt.order, tt.col)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate(%q, %q) error = nil, want error", tt.kind, tt.text)
				}
				if tt.errMsg != "" && err.Error() != tt.errMsg {
					t.Errorf("Validate(%q, %q) error = %q, want %q", tt.kind, tt.text, err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q, %q) error = %v, want nil", tt.kind, tt.text, err)
			}
			if order != tt.wantOrder {
				t.Errorf("Validate(%q, %q) order = %d, want %d", tt.kind, tt.text, order, tt.wantOrder)
			}
		})
	}
}

func TestSplitForeign(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantTable  string
		wantColumn string
		wantErr    bool
	}{
		{name: "simple", text: "users__id", wantTable: "users", wantColumn: "id"},
		{name: "column_with_separator", text: "a__b__c", wantTable: "a", wantColumn: "b__c"},
		{name: "no_separator", text: "users", wantErr: true},
		{name: "empty_table", text: "__id", wantErr: true},
		{name: "empty_column", text: "users__", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, column, err := splitForeign(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("splitForeign(%q) error = nil, want error", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("splitForeign(%q) error = %v, want nil", tt.text, err)
			}
			if table != tt.wantTable || column != tt.wantColumn {
				t.Errorf("splitForeign(%q) = (%q, %q), want (%q, %q)",
					tt.text, table, column, tt.wantTable, tt.wantColumn)
			}
		})
	}
}

func TestConstantStream(t *testing.T) {
	r := NewRegistry()
	stream, err := r.Stream(KindConstant, "fixed", introspect.Column{Name: "c"}, nil)
	if err != nil {
		t.Fatalf("Stream(constant) error = %v", err)
	}

	first, err := stream()
	if err != nil {
		t.Fatalf("stream() error = %v", err)
	}
	second, err := stream()
	if err != nil {
		t.Fatalf("stream() error = %v", err)
	}
	if first == nil || *first != "fixed" {
		t.Fatalf("stream() = %v, want \"fixed\"", first)
	}
	if first == second {
		t.Error("stream() returned the same pointer on consecutive calls")
	}
	*first = "mutated"
	if *second != "fixed" {
		t.Errorf("second value = %q after mutating first, want %q", *second, "fixed")
	}
}

func TestPassthroughStreams(t *testing.T) {
	r := NewRegistry()
	for _, kind := range []Kind{KindAutoInc, KindComputed, KindNull} {
		t.Run(string(kind), func(t *testing.T) {
			stream, err := r.Stream(kind, "", introspect.Column{Name: "c"}, nil)
			if err != nil {
				t.Fatalf("Stream(%q) error = %v", kind, err)
			}
			v, err := stream()
			if err != nil {
				t.Fatalf("stream() error = %v", err)
			}
			if v != nil {
				t.Errorf("stream() = %q, want nil", *v)
			}
		})
	}
}

func TestRegexStream(t *testing.T) {
	r := NewRegistry()
	stream, err := r.Stream(KindRegex, "[a-z]{5}", introspect.Column{Name: "code"}, nil)
	if err != nil {
		t.Fatalf("Stream(regex) error = %v", err)
	}

	want := regexp.MustCompile(`^[a-z]{5}$`)
	for range 20 {
		v, err := stream()
		if err != nil {
			t.Fatalf("stream() error = %v", err)
		}
		if v == nil || !want.MatchString(*v) {
			t.Fatalf("stream() = %v, want match for %q", v, want)
		}
	}
}

func TestFakerStreamCapsLength(t *testing.T) {
	r := NewRegistry()
	col := introspect.Column{Name: "token", MaxLength: i64(8)}
	stream, err := r.Stream(KindFaker, "UUID", col, nil)
	if err != nil {
		t.Fatalf("Stream(faker) error = %v", err)
	}

	v, err := stream()
	if err != nil {
		t.Fatalf("stream() error = %v", err)
	}
	if v == nil || len(*v) != 8 {
		t.Errorf("stream() = %v, want an 8-char value", v)
	}
}

func TestFakerStreamClampsNumeric(t *testing.T) {
	r := NewRegistry()
	col := introspect.Column{Name: "amount", Precision: i64(1)}
	stream, err := r.Stream(KindFaker, "Int8", col, nil)
	if err != nil {
		t.Fatalf("Stream(faker) error = %v", err)
	}

	for range 50 {
		v, err := stream()
		if err != nil {
			t.Fatalf("stream() error = %v", err)
		}
		got, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			t.Fatalf("ParseFloat(%q) error = %v", *v, err)
		}
		if got < -9 || got > 9 {
			t.Fatalf("stream() = %q, want a value within [-9, 9]", *v)
		}
	}
}

func TestForeignStream(t *testing.T) {
	source := &fakeSource{values: map[string][]string{
		"users.id": {"1", "2", "2", "3"},
	}}
	ctx := NewContext(source, "orders", nil)
	r := NewRegistry()

	stream, err := r.Stream(KindForeign, "users__id", introspect.Column{Name: "user_id"}, ctx)
	if err != nil {
		t.Fatalf("Stream(foreign) error = %v", err)
	}

	allowed := map[string]bool{"1": true, "2": true, "3": true}
	for range 50 {
		v, err := stream()
		if err != nil {
			t.Fatalf("stream() error = %v", err)
		}
		if v == nil || !allowed[*v] {
			t.Fatalf("stream() = %v, want one of 1, 2, 3", v)
		}
	}
	if source.calls != 1 {
		t.Errorf("source fetched %d times, want 1", source.calls)
	}
}

func TestForeignStreamEmptyColumn(t *testing.T) {
	tests := []struct {
		name        string
		col         introspect.Column
		wantWarning bool
	}{
		{name: "nullable_degrades", col: introspect.Column{Name: "ref", Nullable: true}, wantWarning: true},
		{name: "not_null_fails", col: introspect.Column{Name: "ref"}, wantWarning: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{values: map[string][]string{}}
			ctx := NewContext(source, "orders", nil)
			r := NewRegistry()

			stream, err := r.Stream(KindForeign, "users__id", tt.col, ctx)
			if err != nil {
				t.Fatalf("Stream(foreign) error = %v", err)
			}
			_, err = stream()
			if err == nil {
				t.Fatal("stream() error = nil, want error")
			}

			wantMsg := "Foreign column 'users.id' has no values to sample."
			if err.Error() != wantMsg {
				t.Errorf("stream() error = %q, want %q", err.Error(), wantMsg)
			}
			var w *Warning
			if got := errors.As(err, &w); got != tt.wantWarning {
				t.Errorf("errors.As(Warning) = %v, want %v", got, tt.wantWarning)
			}
		})
	}
}

func TestScriptStream(t *testing.T) {
	entries := map[string][]*string{
		"first_name": {strPtr("Ann")},
		"last_name":  {strPtr("Lee")},
	}
	ctx := NewContext(nil, "people", entries)
	ctx.NextRow(0)
	ctx.Filled["first_name"] = true
	ctx.Filled["last_name"] = true

	r := NewRegistry()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "single_column", text: "{{.columns.first_name}}", expected: "Ann"},
		{name: "combined", text: "{{.columns.first_name}} {{.columns.last_name}}", expected: "Ann Lee"},
		{name: "helper_function", text: "{{ToUpper .columns.first_name}}", expected: "ANN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := r.Stream(KindScript, tt.text, introspect.Column{Name: "full_name"}, ctx)
			if err != nil {
				t.Fatalf("Stream(script) error = %v", err)
			}
			v, err := stream()
			if err != nil {
				t.Fatalf("stream() error = %v", err)
			}
			if v == nil || *v != tt.expected {
				t.Errorf("stream() = %v, want %q", v, tt.expected)
			}
		})
	}
}

func TestScriptStreamMissingColumn(t *testing.T) {
	ctx := NewContext(nil, "people", map[string][]*string{})
	ctx.NextRow(0)

	r := NewRegistry()
	stream, err := r.Stream(KindScript, "{{.columns.absent}}", introspect.Column{Name: "full_name"}, ctx)
	if err != nil {
		t.Fatalf("Stream(script) error = %v", err)
	}
	if _, err := stream(); err == nil || !strings.Contains(err.Error(), "absent") {
		t.Errorf("stream() error = %v, want a missing-key error naming the column", err)
	}
}

func TestScriptStreamFakerCall(t *testing.T) {
	ctx := NewContext(nil, "people", map[string][]*string{})
	ctx.NextRow(0)

	r := NewRegistry()
	stream, err := r.Stream(KindScript, "{{Number 1 9}}", introspect.Column{Name: "n"}, ctx)
	if err != nil {
		t.Fatalf("Stream(script) error = %v", err)
	}
	v, err := stream()
	if err != nil {
		t.Fatalf("stream() error = %v", err)
	}
	n, err := strconv.Atoi(*v)
	if err != nil || n < 1 || n > 9 {
		t.Errorf("stream() = %q, want an integer within [1, 9]", *v)
	}
}

func TestContextRow(t *testing.T) {
	entries := map[string][]*string{
		"a": {strPtr("1"), strPtr("2")},
		"b": {nil, strPtr("x")},
		"c": {strPtr("only"), nil},
	}
	ctx := NewContext(nil, "t", entries)
	ctx.NextRow(1)
	ctx.Filled["a"] = true
	ctx.Filled["b"] = true

	row := ctx.Row()
	if len(row) != 2 {
		t.Fatalf("Row() has %d keys, want 2", len(row))
	}
	if row["a"] != "2" {
		t.Errorf("Row()[a] = %v, want %q", row["a"], "2")
	}
	if row["b"] != "x" {
		t.Errorf("Row()[b] = %v, want %q", row["b"], "x")
	}
	if _, ok := row["c"]; ok {
		t.Error("Row() contains unfilled column c")
	}

	ctx.NextRow(0)
	if len(ctx.Row()) != 0 {
		t.Error("Row() not empty after NextRow reset")
	}

	ctx.Filled["b"] = true
	if _, ok := ctx.Row()["b"]; ok {
		t.Error("Row() contains b whose row 0 value is NULL")
	}
}

func TestCachedValuesFetchOnce(t *testing.T) {
	source := &fakeSource{values: map[string][]string{
		"users.id":    {"1", "1", "2"},
		"users.email": {"a@x.io"},
	}}
	ctx := NewContext(source, "orders", nil)

	distinct, err := ctx.CachedDistinct("users", "id")
	if err != nil {
		t.Fatalf("CachedDistinct() error = %v", err)
	}
	if len(distinct) != 2 || distinct[0] != "1" || distinct[1] != "2" {
		t.Errorf("CachedDistinct() = %v, want [1 2]", distinct)
	}

	set, err := ctx.CachedSet("users", "id")
	if err != nil {
		t.Fatalf("CachedSet() error = %v", err)
	}
	if !set["1"] || !set["2"] || len(set) != 2 {
		t.Errorf("CachedSet() = %v, want {1, 2}", set)
	}
	if _, err := ctx.CachedDistinct("users", "id"); err != nil {
		t.Fatalf("CachedDistinct() error = %v", err)
	}
	if source.calls != 1 {
		t.Errorf("source fetched %d times for one column, want 1", source.calls)
	}

	if _, err := ctx.CachedDistinct("users", "email"); err != nil {
		t.Fatalf("CachedDistinct() error = %v", err)
	}
	if source.calls != 2 {
		t.Errorf("source fetched %d times for two columns, want 2", source.calls)
	}
}

func TestCachedValuesSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("connection lost")}
	ctx := NewContext(source, "orders", nil)

	if _, err := ctx.CachedDistinct("users", "id"); err == nil {
		t.Error("CachedDistinct() error = nil, want source error")
	}
}

func TestMethods(t *testing.T) {
	r := NewRegistry()
	methods := r.Methods()

	if len(methods) == 0 {
		t.Fatal("Methods() is empty")
	}
	if !sort.StringsAreSorted(methods) {
		t.Error("Methods() is not sorted")
	}

	byName := make(map[string]bool, len(methods))
	for _, m := range methods {
		byName[m] = true
	}
	for _, want := range []string{"Name", "Email", "UUID"} {
		if !byName[want] {
			t.Errorf("Methods() missing %q", want)
		}
	}
	for _, reject := range []string{"IntRange", "ToUpper", "SQL", "Template"} {
		if byName[reject] {
			t.Errorf("Methods() contains %q, want it excluded", reject)
		}
	}
}
