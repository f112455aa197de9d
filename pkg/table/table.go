// Package table holds helpers around the gota DataFrame used as the tabular
// structure between pipeline stages. Missing values are gota NA elements;
// builders take []any where nil marks a missing value.
//
// gota reads the text "NaN" as a missing string, so Strings stores such text
// behind textEscape and Value removes it again. Read string cells through
// Value, never through the gota element directly.
package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// New builds a DataFrame from columns, surfacing gota's deferred error.
func New(cols ...series.Series) (dataframe.DataFrame, error) {
	df := dataframe.New(cols...)
	if df.Err != nil {
		return df, fmt.Errorf("build table: %w", df.Err)
	}
	return df, nil
}

// textEscape prefixes stored text that gota would otherwise misread.
const textEscape = "\x00"

// Strings builds a String column. Text values are kept verbatim, including "NaN".
func Strings(name string, vals []any) series.Series {
	out := make([]any, len(vals))
	for i, v := range vals {
		if text, ok := v.(string); ok {
			out[i] = escapeText(text)
		} else {
			out[i] = v
		}
	}
	return series.New(out, series.String, name)
}

func escapeText(s string) string {
	if s == "NaN" || strings.HasPrefix(s, textEscape) {
		return textEscape + s
	}
	return s
}

func unescapeText(s string) string {
	return strings.TrimPrefix(s, textEscape)
}

// Ints builds an Int column.
func Ints(name string, vals []any) series.Series {
	return series.New(normalize(vals), series.Int, name)
}

// Floats builds a Float column. NaN values are stored as missing.
func Floats(name string, vals []any) series.Series {
	cleaned := normalize(vals)
	for i, v := range cleaned {
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			cleaned[i] = nil
		}
	}
	return series.New(cleaned, series.Float, name)
}

// normalize converts sized numbers to int and float64, the only numeric
// types gota elements accept. Anything else unsupported becomes NA.
func normalize(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch n := v.(type) {
		case int64:
			out[i] = int(n)
		case int32:
			out[i] = int(n)
		case float32:
			out[i] = float64(n)
		default:
			out[i] = v
		}
	}
	return out
}

// IsNA reports whether the i-th element of s is missing.
func IsNA(s series.Series, i int) bool {
	e := s.Elem(i)
	if e.IsNA() {
		return true
	}
	return s.Type() == series.Float && math.IsNaN(e.Float())
}

// Value returns the Go value of the i-th element: string, int64, float64,
// bool, or nil when missing.
func Value(s series.Series, i int) any {
	if IsNA(s, i) {
		return nil
	}
	e := s.Elem(i)
	switch s.Type() {
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return nil
		}
		return int64(v)
	case series.Float:
		return e.Float()
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return nil
		}
		return v
	default:
		return unescapeText(e.String())
	}
}

// Values returns every element of s via Value.
func Values(s series.Series) []any {
	out := make([]any, s.Len())
	for i := range out {
		out[i] = Value(s, i)
	}
	return out
}

// Has reports whether df has a column called name.
func Has(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// WithPrefix returns the column names starting with prefix, in table order.
func WithPrefix(df dataframe.DataFrame, prefix string) []string {
	var cols []string
	for _, n := range df.Names() {
		if strings.HasPrefix(n, prefix) {
			cols = append(cols, n)
		}
	}
	return cols
}

// Mutate adds or replaces a column, surfacing gota's deferred error.
func Mutate(df dataframe.DataFrame, s series.Series) (dataframe.DataFrame, error) {
	out := df.Mutate(s)
	if out.Err != nil {
		return out, fmt.Errorf("set column %q: %w", s.Name, out.Err)
	}
	return out, nil
}

// Drop removes a column, surfacing gota's deferred error.
func Drop(df dataframe.DataFrame, name string) (dataframe.DataFrame, error) {
	out := df.Drop(name)
	if out.Err != nil {
		return out, fmt.Errorf("drop column %q: %w", name, out.Err)
	}
	return out, nil
}

// Equal reports whether two frames have the same columns, types and values.
func Equal(a, b dataframe.DataFrame) bool {
	if a.Nrow() != b.Nrow() || a.Ncol() != b.Ncol() {
		return false
	}
	an, bn := a.Names(), b.Names()
	for c := range an {
		if an[c] != bn[c] {
			return false
		}
		as, bs := a.Col(an[c]), b.Col(bn[c])
		if as.Type() != bs.Type() {
			return false
		}
		for i := 0; i < a.Nrow(); i++ {
			if Value(as, i) != Value(bs, i) {
				return false
			}
		}
	}
	return true
}
