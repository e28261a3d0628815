// Package workspace implements the agent's per-request working memory: a
// named-table store written by fetch and transform steps and read by
// describe, transform, and synthesis.
//
// A Workspace is owned exclusively by one request's executor and must never
// be shared across requests.
package workspace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quantline/strata/agent/pkg/table"
)

// NotFoundError identifies a missing table by name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q not found in workspace", e.Name)
}

// Workspace maps names to tables.
type Workspace struct {
	tables map[string]*table.Table
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{tables: make(map[string]*table.Table)}
}

// Add stores a table under name, overwriting any previous entry.
func (w *Workspace) Add(name string, t *table.Table) error {
	if t == nil {
		return fmt.Errorf("cannot add nil table %q to workspace", name)
	}
	w.tables[name] = t
	return nil
}

// Get returns the named table or a NotFoundError.
func (w *Workspace) Get(name string) (*table.Table, error) {
	t, ok := w.tables[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

// Names returns the stored table names, sorted.
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns each table's ordered column names, keyed by table name.
// This schema summary is what the planner sees when writing follow-up
// steps; it never includes the data itself.
func (w *Workspace) List() map[string][]string {
	out := make(map[string][]string, len(w.tables))
	for name, t := range w.tables {
		out[name] = t.Schema()
	}
	return out
}

// Describe returns a human-readable schema description of one table,
// including inferred column types.
func (w *Workspace) Describe(name string) (string, error) {
	t, err := w.Get(name)
	if err != nil {
		return "", err
	}
	types := t.ColumnTypes()
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s (%s)", c, types[c])
	}
	return fmt.Sprintf("Table %q: %d rows, columns: %s", name, t.NumRows(), strings.Join(cols, ", ")), nil
}

// Summary renders the whole workspace's schemas on one line per table,
// for correction prompts and needs-human diagnostics.
func (w *Workspace) Summary() string {
	names := w.Names()
	if len(names) == 0 {
		return "(empty workspace)"
	}
	lines := make([]string, len(names))
	for i, name := range names {
		t := w.tables[name]
		lines[i] = fmt.Sprintf("%s: [%s] (%d rows)", name, strings.Join(t.Columns, ", "), t.NumRows())
	}
	return strings.Join(lines, "\n")
}
