// Package table defines the tabular result type shared by the data API,
// the workspace, and the transform tooling.
package table

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Table holds rows of named values with a stable column order.
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// AddRow appends a row. Columns not yet known are appended to the column
// order in sorted order so row construction stays deterministic.
func (t *Table) AddRow(row map[string]any) {
	known := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		known[c] = true
	}
	var added []string
	for c := range row {
		if !known[c] {
			added = append(added, c)
		}
	}
	sort.Strings(added)
	t.Columns = append(t.Columns, added...)
	t.Rows = append(t.Rows, row)
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.NumRows() == 0
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Schema returns a copy of the ordered column names.
func (t *Table) Schema() []string {
	out := make([]string, len(t.Columns))
	copy(out, t.Columns)
	return out
}

// ColumnTypes infers a type name per column from the first non-nil value.
// Columns with no values report "unknown".
func (t *Table) ColumnTypes() map[string]string {
	types := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		types[c] = "unknown"
		for _, row := range t.Rows {
			v, ok := row[c]
			if !ok || v == nil {
				continue
			}
			types[c] = typeName(v)
			break
		}
	}
	return types
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32:
		return "float"
	case int, int32, int64:
		return "int"
	case bool:
		return "bool"
	case time.Time:
		return "date"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.Schema()...)
	for _, row := range t.Rows {
		dup := make(map[string]any, len(row))
		for k, v := range row {
			dup[k] = v
		}
		out.Rows = append(out.Rows, dup)
	}
	return out
}

// Head returns a new table containing at most n rows.
func (t *Table) Head(n int) *Table {
	out := t.Clone()
	if n >= 0 && n < len(out.Rows) {
		out.Rows = out.Rows[:n]
	}
	return out
}

// SortBy returns a new table sorted by the given column. Numeric values sort
// numerically, everything else by string form. The sort is stable.
func (t *Table) SortBy(column string, descending bool) *Table {
	out := t.Clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		less := lessValue(out.Rows[i][column], out.Rows[j][column])
		if descending {
			return lessValue(out.Rows[j][column], out.Rows[i][column])
		}
		return less
	})
	return out
}

func lessValue(a, b any) bool {
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if aok && bok {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Float returns the named value of a row as float64, or 0 if absent or
// non-numeric.
func Float(row map[string]any, column string) float64 {
	f, _ := asFloat(row[column])
	return f
}

// Select returns a new table restricted to the given columns, in the given
// order. Unknown columns are included as empty columns.
func (t *Table) Select(columns ...string) *Table {
	out := New(columns...)
	for _, row := range t.Rows {
		dup := make(map[string]any, len(columns))
		for _, c := range columns {
			if v, ok := row[c]; ok {
				dup[c] = v
			}
		}
		out.Rows = append(out.Rows, dup)
	}
	return out
}

// Rename returns a new table with a column renamed. Renaming a missing
// column is a no-op.
func (t *Table) Rename(from, to string) *Table {
	out := t.Clone()
	for i, c := range out.Columns {
		if c == from {
			out.Columns[i] = to
		}
	}
	for _, row := range out.Rows {
		if v, ok := row[from]; ok {
			delete(row, from)
			row[to] = v
		}
	}
	return out
}

// Format renders the table as an aligned text grid for logs and prompts.
// At most maxRows rows are rendered; a truncation note follows if any rows
// were dropped. maxRows <= 0 means no limit.
func (t *Table) Format(maxRows int) string {
	if t.Empty() {
		return "(no rows)"
	}
	rows := t.Rows
	truncated := 0
	if maxRows > 0 && len(rows) > maxRows {
		truncated = len(rows) - maxRows
		rows = rows[:maxRows]
	}

	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(rows))
	for ri, row := range rows {
		cells[ri] = make([]string, len(t.Columns))
		for ci, c := range t.Columns {
			s := formatCell(row[c])
			cells[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	var b strings.Builder
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], c)
	}
	b.WriteByte('\n')
	for i := range t.Columns {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", widths[i]))
	}
	for _, row := range cells {
		b.WriteByte('\n')
		for i, s := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], s)
		}
	}
	if truncated > 0 {
		fmt.Fprintf(&b, "\n... %d more rows", truncated)
	}
	return b.String()
}

func formatCell(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%.2f", n)
	case time.Time:
		return n.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}
