package generator

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/tomfevang/datasmith/internal/introspect"
)

// renderValue stringifies a provider result and applies the column's type
// caps: strings truncate to the declared length, numerics clamp into the
// precision/scale range.
func renderValue(v reflect.Value, col introspect.Column) (string, error) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", nil
		}
		v = v.Elem()
	}

	if t, ok := v.Interface().(time.Time); ok {
		return t.Format("2006-01-02 15:04:05"), nil
	}

	switch v.Kind() {
	case reflect.String:
		return capString(v.String(), col.MaxLength), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return capInt(v.Int(), col), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return capInt(int64(v.Uint()), col), nil

	case reflect.Float32, reflect.Float64:
		return capFloat(v.Float(), col), nil

	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil

	default:
		return fmt.Sprint(v.Interface()), nil
	}
}

// capString truncates to the column length when one is declared.
func capString(s string, length *int64) string {
	if length != nil && *length >= 0 && int64(len(s)) > *length {
		return s[:*length]
	}
	return s
}

func capInt(i int64, col introspect.Column) string {
	if col.Precision == nil {
		return strconv.FormatInt(i, 10)
	}
	clamped := capNumeric(float64(i), col.Precision, col.Scale)
	if clamped == float64(i) {
		return strconv.FormatInt(i, 10)
	}
	return strconv.FormatFloat(clamped, 'f', -1, 64)
}

func capFloat(f float64, col introspect.Column) string {
	return strconv.FormatFloat(capNumeric(f, col.Precision, col.Scale), 'f', -1, 64)
}

// checkNumericBounds rejects a column definition whose scale exceeds its
// precision before any value is produced.
func checkNumericBounds(col *introspect.Column) error {
	if col.Precision == nil {
		return nil
	}
	scale := int64(0)
	if col.Scale != nil {
		scale = *col.Scale
	}
	if scale > *col.Precision {
		return fmt.Errorf("Invalid SQL definition: scale (%d) > precision (%d)", scale, *col.Precision)
	}
	return nil
}

// numericMax is the largest value a NUMERIC(precision, scale) column
// holds: (10^(p-s) - 1) followed by s nines after the point.
func numericMax(precision, scale int64) float64 {
	return math.Pow(10, float64(precision-scale)) - math.Pow(10, float64(-scale))
}

// capNumeric clamps v into the column's numeric range. Columns without a
// declared precision pass values through unchanged; a missing scale
// counts as zero.
func capNumeric(v float64, precision, scale *int64) float64 {
	if precision == nil {
		return v
	}
	s := int64(0)
	if scale != nil {
		s = *scale
	}
	mx := numericMax(*precision, s)
	return math.Min(math.Max(-mx, v), mx)
}
