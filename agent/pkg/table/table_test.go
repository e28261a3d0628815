package table

import (
	"strings"
	"testing"
)

func TestAddRowExtendsColumnsDeterministically(t *testing.T) {
	tbl := New("client_id")
	tbl.AddRow(map[string]any{"client_id": "cl_id_citadel", "revenues": 100.0, "business": "Prime"})

	want := []string{"client_id", "business", "revenues"}
	if len(tbl.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", tbl.Columns, want)
	}
	for i, c := range want {
		if tbl.Columns[i] != c {
			t.Errorf("columns[%d] = %q, want %q", i, tbl.Columns[i], c)
		}
	}
}

func TestColumnTypes(t *testing.T) {
	tbl := New("client_id", "revenues", "flag")
	tbl.AddRow(map[string]any{"client_id": "cl_id_millennium", "revenues": 42.5})
	tbl.AddRow(map[string]any{"client_id": "cl_id_citadel", "revenues": 10.0, "flag": true})

	types := tbl.ColumnTypes()
	if types["client_id"] != "string" {
		t.Errorf("client_id type = %q, want string", types["client_id"])
	}
	if types["revenues"] != "float" {
		t.Errorf("revenues type = %q, want float", types["revenues"])
	}
	if types["flag"] != "bool" {
		t.Errorf("flag type = %q, want bool", types["flag"])
	}
}

func TestSortByAndHead(t *testing.T) {
	tbl := New("name", "value")
	tbl.AddRow(map[string]any{"name": "b", "value": 2.0})
	tbl.AddRow(map[string]any{"name": "a", "value": 3.0})
	tbl.AddRow(map[string]any{"name": "c", "value": 1.0})

	top := tbl.SortBy("value", true).Head(2)
	if top.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", top.NumRows())
	}
	if top.Rows[0]["name"] != "a" || top.Rows[1]["name"] != "b" {
		t.Errorf("unexpected order: %v", top.Rows)
	}
	// Original table must be untouched.
	if tbl.Rows[0]["name"] != "b" {
		t.Errorf("source table mutated: %v", tbl.Rows)
	}
}

func TestRename(t *testing.T) {
	tbl := New("balances")
	tbl.AddRow(map[string]any{"balances": 5.0})

	got := tbl.Rename("balances", "Balance.End")
	if !got.HasColumn("Balance.End") || got.HasColumn("balances") {
		t.Fatalf("columns = %v", got.Columns)
	}
	if Float(got.Rows[0], "Balance.End") != 5.0 {
		t.Errorf("value not carried over: %v", got.Rows[0])
	}
}

func TestFormatTruncates(t *testing.T) {
	tbl := New("n")
	for i := 0; i < 10; i++ {
		tbl.AddRow(map[string]any{"n": float64(i)})
	}
	out := tbl.Format(3)
	if !strings.Contains(out, "... 7 more rows") {
		t.Errorf("missing truncation note:\n%s", out)
	}
	if got := New("n").Format(5); got != "(no rows)" {
		t.Errorf("empty format = %q", got)
	}
}
