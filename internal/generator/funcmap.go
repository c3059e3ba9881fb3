package generator

import (
	"reflect"
	"sort"
	"strings"
	"text/template"

	"github.com/brianvoe/gofakeit/v7"
)

// FuncMap builds a template.FuncMap from a Faker instance, exposing all
// gofakeit methods plus helper functions for use in script templates.
func FuncMap(f *gofakeit.Faker) template.FuncMap {
	fm := template.FuncMap{}

	// Add all public Faker methods via reflection (same as gofakeit internals).
	excluded := map[string]bool{"RandomMapKey": true, "SQL": true, "Template": true}
	v := reflect.ValueOf(f)
	for i := 0; i < v.NumMethod(); i++ {
		name := v.Type().Method(i).Name
		if excluded[name] || v.Type().Method(i).Type.NumOut() == 0 {
			continue
		}
		fm[name] = v.Method(i).Interface()
	}

	// Add the same helper functions gofakeit registers.
	fm["ToUpper"] = strings.ToUpper
	fm["ToLower"] = strings.ToLower
	fm["IntRange"] = func(start, end int) []int {
		n := make([]int, end-start+1)
		for i := range n {
			n[i] = start + i
		}
		return n
	}
	fm["SliceAny"] = func(args ...any) []any { return args }
	fm["SliceString"] = func(args ...string) []string { return args }
	fm["SliceInt"] = func(args ...int) []int { return args }
	fm["SliceUInt"] = func(args ...uint) []uint { return args }
	fm["SliceF32"] = func(args ...float32) []float32 { return args }

	return fm
}

// Methods returns the sorted names of provider methods callable without
// arguments. These are the names the faker kind accepts.
func (r *Registry) Methods() []string {
	var names []string
	for name, fn := range r.funcs {
		v := reflect.ValueOf(fn)
		if v.Kind() == reflect.Func && v.Type().NumIn() == 0 && v.Type().NumOut() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
