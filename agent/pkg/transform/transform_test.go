package transform

import (
	"strings"
	"testing"

	"github.com/quantline/strata/agent/pkg/table"
	"github.com/quantline/strata/agent/pkg/workspace"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New()

	q1 := table.New("client_id", "revenues")
	q1.AddRow(map[string]any{"client_id": "cl_id_citadel", "revenues": 100.0})
	q1.AddRow(map[string]any{"client_id": "cl_id_millennium", "revenues": 300.0})
	ws.Add("q1", q1)

	q2 := table.New("client_id", "revenues")
	q2.AddRow(map[string]any{"client_id": "cl_id_citadel", "revenues": 150.0})
	q2.AddRow(map[string]any{"client_id": "cl_id_millennium", "revenues": 250.0})
	ws.Add("q2", q2)

	return ws
}

func TestRunStoresResult(t *testing.T) {
	ws := newWorkspace(t)
	err := New(nil).Run(ws, `store("top", head(sortBy(tables.q1, "revenues", true), 1))`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ws.Get("top")
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() != 1 || got.Rows[0]["client_id"] != "cl_id_millennium" {
		t.Errorf("top = %v", got.Rows)
	}
}

func TestRunFinalTableStoredAsResult(t *testing.T) {
	ws := newWorkspace(t)
	if err := New(nil).Run(ws, `rename(tables.q1, "revenues", "q1_revenues")`); err != nil {
		t.Fatal(err)
	}
	got, err := ws.Get("result")
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasColumn("q1_revenues") {
		t.Errorf("result columns = %v", got.Columns)
	}
}

func TestRunMergeDiffDivide(t *testing.T) {
	ws := newWorkspace(t)
	code := `store("compare",
		divide(
			diff(
				merge(rename(tables.q2, "revenues", "q2_revenues"), tables.q1, "client_id"),
				"q2_revenues", "revenues", "delta"),
			"delta", "revenues", "growth"))`
	if err := New(nil).Run(ws, code); err != nil {
		t.Fatal(err)
	}

	got, err := ws.Get("compare")
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", got.NumRows())
	}
	for _, row := range got.Rows {
		if row["client_id"] == "cl_id_citadel" {
			if table.Float(row, "delta") != 50.0 {
				t.Errorf("delta = %v", row["delta"])
			}
			if table.Float(row, "growth") != 0.5 {
				t.Errorf("growth = %v", row["growth"])
			}
		}
	}
}

func TestRunSum(t *testing.T) {
	ws := newWorkspace(t)
	// A non-table final value is not stored.
	if err := New(nil).Run(ws, `sum(tables.q1, "revenues")`); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Get("result"); err == nil {
		t.Error("scalar result stored as table")
	}
}

func TestRunCompileError(t *testing.T) {
	err := New(nil).Run(newWorkspace(t), `store("x",`)
	if err == nil || !strings.Contains(err.Error(), "compile") {
		t.Errorf("err = %v, want compile error", err)
	}
}

func TestRunMissingColumnError(t *testing.T) {
	err := New(nil).Run(newWorkspace(t), `diff(tables.q1, "nope", "revenues", "d")`)
	if err == nil {
		t.Fatal("expected runtime error")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error does not name the missing column: %v", err)
	}
}

func TestRunMissingTableError(t *testing.T) {
	err := New(nil).Run(newWorkspace(t), `get("ghost")`)
	if err == nil {
		t.Fatal("expected not-found error")
	}
}
