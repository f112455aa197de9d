package store

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Column is a stored column with its inferred kind.
type Column struct {
	Name string
	Kind ColumnKind
}

// DescribeColumns infers a stored column per frame column, in table order.
func DescribeColumns(df dataframe.DataFrame) []Column {
	names := df.Names()
	types := df.Types()
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Kind: kindOf(types[i])}
	}
	return cols
}

func kindOf(t series.Type) ColumnKind {
	switch t {
	case series.Int:
		return KindInteger
	case series.Float:
		return KindReal
	case series.Bool:
		return KindBoolean
	default:
		return KindText
	}
}

// createTableSQL renders CREATE TABLE for the given columns.
func createTableSQL(d Dialect, table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.QuoteIdentifier(c.Name) + " " + d.ColumnType(c.Kind)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdentifier(table), strings.Join(defs, ", "))
}

// insertSQL renders a multi-row INSERT for rows rows of cols.
func insertSQL(d Dialect, table string, cols []Column, rows int) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.QuoteIdentifier(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.QuoteIdentifier(table), strings.Join(names, ", "))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// rowsPerBatch bounds a multi-row INSERT by the configured batch size and the
// dialect's bind parameter limit.
func rowsPerBatch(d Dialect, batchSize, ncols int) int {
	if ncols == 0 {
		return batchSize
	}
	limit := d.MaxParams() / ncols
	if limit < 1 {
		limit = 1
	}
	if batchSize > 0 && batchSize < limit {
		return batchSize
	}
	return limit
}
