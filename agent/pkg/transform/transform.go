// Package transform executes plan transform steps as restricted
// expressions over workspace tables. Arbitrary code execution is
// deliberately off the table: steps get a curated set of table helpers and
// nothing else, so untrusted step parameters cannot touch the process.
package transform

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"

	"github.com/quantline/strata/agent/pkg/table"
	"github.com/quantline/strata/agent/pkg/workspace"
)

// Runner compiles and evaluates transform expressions.
type Runner struct {
	log *slog.Logger
}

// New creates a Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{log: logger}
}

// Run evaluates code against the workspace. Tables are exposed by name in
// the `tables` map; results are written back with store(name, t). As a
// convenience, a final expression value that is a table is stored under
// "result".
//
// Available helpers:
//
//	store(name, t)            write a table into the workspace
//	get(name)                 read a table from the workspace
//	merge(a, b, on)           inner join on a shared key column
//	diff(t, a, b, out)        add out = a - b per row
//	divide(t, a, b, out)      add out = a / b per row (0 when b is 0)
//	sortBy(t, col, desc)      stable sort
//	head(t, n)                first n rows
//	selectCols(t, [cols...])  restrict and reorder columns
//	rename(t, from, to)       rename a column
//	sum(t, col)               column total
func (r *Runner) Run(ws *workspace.Workspace, code string) error {
	env := r.environment(ws)

	program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return fmt.Errorf("transform compile failed: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}
	if t, ok := out.(*table.Table); ok {
		if err := ws.Add("result", t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) environment(ws *workspace.Workspace) map[string]any {
	tables := make(map[string]*table.Table)
	for _, name := range ws.Names() {
		t, _ := ws.Get(name)
		tables[name] = t
	}

	return map[string]any{
		"tables": tables,
		"store": func(name string, t *table.Table) (bool, error) {
			if err := ws.Add(name, t); err != nil {
				return false, err
			}
			return true, nil
		},
		"get": func(name string) (*table.Table, error) {
			return ws.Get(name)
		},
		"merge":  mergeTables,
		"diff":   func(t *table.Table, a, b, out string) (*table.Table, error) { return combine(t, a, b, out, subOp) },
		"divide": func(t *table.Table, a, b, out string) (*table.Table, error) { return combine(t, a, b, out, divOp) },
		"sortBy": func(t *table.Table, col string, desc bool) *table.Table { return t.SortBy(col, desc) },
		"head":   func(t *table.Table, n int) *table.Table { return t.Head(n) },
		"selectCols": func(t *table.Table, cols []any) (*table.Table, error) {
			names := make([]string, len(cols))
			for i, c := range cols {
				s, ok := c.(string)
				if !ok {
					return nil, fmt.Errorf("selectCols: column %v is not a string", c)
				}
				names[i] = s
			}
			return t.Select(names...), nil
		},
		"rename": func(t *table.Table, from, to string) *table.Table { return t.Rename(from, to) },
		"sum": func(t *table.Table, col string) float64 {
			var total float64
			for _, row := range t.Rows {
				total += table.Float(row, col)
			}
			return total
		},
	}
}

type binOp int

const (
	subOp binOp = iota
	divOp
)

func combine(t *table.Table, a, b, out string, op binOp) (*table.Table, error) {
	if !t.HasColumn(a) {
		return nil, fmt.Errorf("column %q not found", a)
	}
	if !t.HasColumn(b) {
		return nil, fmt.Errorf("column %q not found", b)
	}
	res := t.Clone()
	res.Columns = append(res.Columns, out)
	for _, row := range res.Rows {
		va := table.Float(row, a)
		vb := table.Float(row, b)
		switch op {
		case subOp:
			row[out] = va - vb
		case divOp:
			if vb == 0 {
				row[out] = 0.0
			} else {
				row[out] = va / vb
			}
		}
	}
	return res, nil
}

// mergeTables inner-joins two tables on a shared key column. Right-side
// columns that collide with left-side names are dropped, key excepted.
func mergeTables(left, right *table.Table, on string) (*table.Table, error) {
	if !left.HasColumn(on) || !right.HasColumn(on) {
		return nil, fmt.Errorf("merge key %q missing from one side", on)
	}

	rightByKey := make(map[string][]map[string]any)
	for _, row := range right.Rows {
		key := fmt.Sprint(row[on])
		rightByKey[key] = append(rightByKey[key], row)
	}

	leftCols := make(map[string]bool, len(left.Columns))
	for _, c := range left.Columns {
		leftCols[c] = true
	}
	columns := left.Schema()
	for _, c := range right.Columns {
		if !leftCols[c] {
			columns = append(columns, c)
		}
	}

	out := table.New(columns...)
	for _, lrow := range left.Rows {
		key := fmt.Sprint(lrow[on])
		for _, rrow := range rightByKey[key] {
			merged := make(map[string]any, len(columns))
			for k, v := range lrow {
				merged[k] = v
			}
			for k, v := range rrow {
				if !leftCols[k] {
					merged[k] = v
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out, nil
}
