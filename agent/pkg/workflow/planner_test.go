package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/plan"
)

type llmCall struct {
	system string
	user   string
}

// stubLLM serves scripted responses in order and records every call.
type stubLLM struct {
	responses []string
	calls     []llmCall
}

func (s *stubLLM) Complete(_ context.Context, system, user string, _ ...CompleteOption) (string, error) {
	s.calls = append(s.calls, llmCall{system: system, user: user})
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func mustLoadPrompts(t *testing.T) *Prompts {
	t.Helper()
	p, err := LoadPrompts()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

const fetchPlanJSON = "```json\n" + `{"plan": [
	{"tool_name": "data_fetch", "summary": "Fetch Citadel Q1 revenues",
	 "parameters": {"metric": "revenues", "entities": ["citadel"], "date_description": "q1 2024",
	                "row_granularity": ["client"], "output_variable": "revs"}}
]}` + "\n```"

func TestCreatePlanParsesFencedJSON(t *testing.T) {
	llm := &stubLLM{responses: []string{fetchPlanJSON}}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	planner := NewLLMPlanner(llm, mustLoadPrompts(t), knowledge.Default(), clock, "", nil)

	p, err := planner.CreatePlan(context.Background(), "citadel q1 revenues")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d", len(p.Steps))
	}
	if _, ok := p.Steps[0].Op.(*plan.FetchOp); !ok {
		t.Errorf("op = %T", p.Steps[0].Op)
	}

	system := llm.calls[0].system
	if !strings.Contains(system, "2025-06-15") {
		t.Error("system prompt missing today's date")
	}
	for _, want := range []string{"citadel", "systematic", "Total RWA", "data_fetch"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(llm.calls[0].user, "citadel q1 revenues") {
		t.Errorf("user prompt = %q", llm.calls[0].user)
	}
}

func TestCreatePlanWithHistoryIncludesTurns(t *testing.T) {
	llm := &stubLLM{responses: []string{fetchPlanJSON}}
	planner := NewLLMPlanner(llm, mustLoadPrompts(t), knowledge.Default(), nil, "", nil)

	history := []ConversationMessage{
		{Role: "user", Content: "what about millennium?"},
		{Role: "assistant", Content: "Millennium Q1 revenues were ..."},
	}
	if _, err := planner.CreatePlanWithHistory(context.Background(), "and citadel?", history); err != nil {
		t.Fatal(err)
	}
	user := llm.calls[0].user
	if !strings.Contains(user, "what about millennium?") || !strings.Contains(user, "and citadel?") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestCreatePlanRejectsUnusableResponse(t *testing.T) {
	llm := &stubLLM{responses: []string{"Sorry, I can't help with that."}}
	planner := NewLLMPlanner(llm, mustLoadPrompts(t), knowledge.Default(), nil, "", nil)
	if _, err := planner.CreatePlan(context.Background(), "q"); err == nil {
		t.Error("prose response accepted as plan")
	}
}

func TestCreateCorrectionPromptCarriesContext(t *testing.T) {
	llm := &stubLLM{responses: []string{fetchPlanJSON}}
	planner := NewLLMPlanner(llm, mustLoadPrompts(t), knowledge.Default(), nil, "", nil)

	_, err := planner.CreateCorrection(context.Background(), executor.CorrectionRequest{
		OriginalQuery:     "citadel balances by region",
		StepIndex:         1,
		FailedStepSummary: "Fetch balances split by region",
		ErrorMessage:      `dimension "region" is not available for this metric`,
		WorkspaceSummary:  map[string][]string{"revs": {"client_id", "client_name", "revenues"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	user := llm.calls[0].user
	for _, want := range []string{
		"citadel balances by region",
		"Fetch balances split by region",
		`dimension "region" is not available`,
		"revs: [client_id, client_name, revenues]",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("correction prompt missing %q", want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"plan": []}`, `{"plan": []}`},
		{"fenced", "```json\n{\"plan\": []}\n```", `{"plan": []}`},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose wrapped", "Here is the plan:\n{\"plan\": [1]}\nHope that helps!", `{"plan": [1]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.in); got != tc.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLLMDateParser(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"start_date": "2024-03-01", "end_date": "2024-03-31"}`}}
	parser := NewLLMDateParser(llm, mustLoadPrompts(t), clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))

	start, end, err := parser.ParseDateRange(context.Background(), "the month the fund launched")
	if err != nil {
		t.Fatal(err)
	}
	if start != time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) || end != time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC) {
		t.Errorf("range = %v..%v", start, end)
	}
	if !strings.Contains(llm.calls[0].system, "2025-06-15") {
		t.Error("date prompt missing anchor date")
	}
}

func TestLLMDateParserRejectsInvertedRange(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"start_date": "2024-06-01", "end_date": "2024-01-01"}`}}
	parser := NewLLMDateParser(llm, mustLoadPrompts(t), nil)
	if _, _, err := parser.ParseDateRange(context.Background(), "x"); err == nil {
		t.Error("inverted range accepted")
	}
}
