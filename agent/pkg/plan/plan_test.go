package plan

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseDispatchesOnToolName(t *testing.T) {
	data := []byte(`{"plan": [
		{"tool_name": "data_fetch", "summary": "Fetch Q1 revenues",
		 "parameters": {"metric": "revenues", "entities": ["citadel"], "date_description": "q1 2024",
		                "row_granularity": ["client"], "output_variable": "revs"}},
		{"tool_name": "describe_table", "summary": "Inspect the result", "parameters": {"table_name": "revs"}},
		{"tool_name": "transform", "summary": "Sort descending",
		 "parameters": {"code": "store(\"top\", sortBy(tables.revs, \"revenues\", true))"}},
		{"tool_name": "list_business_lines", "summary": "List valid business lines", "parameters": {}},
		{"tool_name": "inform_user", "summary": "Tell the user", "parameters": {"message": "done"}}
	]}`)

	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(p.Steps))
	}

	fetch, ok := p.Steps[0].Op.(*FetchOp)
	if !ok {
		t.Fatalf("step 0 op = %T", p.Steps[0].Op)
	}
	if fetch.Metric != "revenues" || fetch.OutputVariable != "revs" {
		t.Errorf("fetch = %+v", fetch)
	}
	if _, ok := p.Steps[1].Op.(*DescribeOp); !ok {
		t.Errorf("step 1 op = %T", p.Steps[1].Op)
	}
	if _, ok := p.Steps[2].Op.(*TransformOp); !ok {
		t.Errorf("step 2 op = %T", p.Steps[2].Op)
	}
	if _, ok := p.Steps[3].Op.(*ListBusinessLinesOp); !ok {
		t.Errorf("step 3 op = %T", p.Steps[3].Op)
	}
	inform, ok := p.Steps[4].Op.(*InformOp)
	if !ok || inform.Message != "done" {
		t.Errorf("step 4 op = %T %v", p.Steps[4].Op, p.Steps[4].Op)
	}
}

func TestParseRejectsUnknownTool(t *testing.T) {
	_, err := Parse([]byte(`{"plan": [{"tool_name": "launch_rockets", "summary": "x", "parameters": {}}]}`))
	if err == nil || !strings.Contains(err.Error(), "launch_rockets") {
		t.Errorf("err = %v, want unknown tool error", err)
	}
}

func TestParseRejectsEmptyPlan(t *testing.T) {
	if _, err := Parse([]byte(`{"plan": []}`)); err == nil {
		t.Error("empty plan accepted")
	}
}

func TestFetchOpLegacyGranularity(t *testing.T) {
	data := []byte(`{"tool_name": "data_fetch", "summary": "s",
		"parameters": {"metric": "balances", "entities": ["millennium"],
		               "date_description": "2024", "granularity": "client", "output_variable": "b"}}`)
	var s Step
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	fetch := s.Op.(*FetchOp)
	if !reflect.DeepEqual(fetch.RowGranularity, []string{"client"}) {
		t.Errorf("row granularity = %v, want [client]", fetch.RowGranularity)
	}
}

func TestStepRoundTrip(t *testing.T) {
	orig := Step{
		Summary: "Fetch balances",
		Op: &FetchOp{
			Metric:          "balances",
			Entities:        []string{"systematic"},
			DateDescription: "fy'25",
			RowGranularity:  []string{"client", "date"},
			ColGranularity:  []string{"business"},
			BalanceType:     "Debit",
			OutputVariable:  "bals",
		},
	}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var got Step
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(orig, got) {
		t.Errorf("round trip mismatch:\n  orig %+v\n  got  %+v", orig, got)
	}
}
