package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
)

// stubRunner serves one canned workflow result.
type stubRunner struct {
	result *workflow.Result
	err    error
	stages []workflow.ProgressStage
}

func (s *stubRunner) RunWithProgress(_ context.Context, question string, _ []workflow.ConversationMessage, onProgress workflow.ProgressCallback) (*workflow.Result, error) {
	if onProgress != nil {
		for _, stage := range s.stages {
			onProgress(workflow.Progress{Stage: stage})
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.UserQuestion = question
	return &res, nil
}

func TestAsk(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{result: &workflow.Result{
		Answer:        "Citadel booked $12.3M.",
		StepSummaries: []string{"Step 1: Fetch Citadel Q1 revenues"},
		Tables:        map[string][]string{"revs": {"client_id", "revenues"}},
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question": "citadel q1 revenues"}`))
	w := httptest.NewRecorder()
	Ask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Citadel booked $12.3M." || len(resp.StepSummaries) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{result: &workflow.Result{}})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	Ask(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAskSurfacesNeedsHuman(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{result: &workflow.Result{
		Answer: "I wasn't able to complete this request.",
		NeedsHuman: &executor.HumanContext{
			OriginalQuery: "q",
			FailedStep:    "Fetch vibes",
			ErrorMessage:  `unknown metric "vibes"`,
		},
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "q"}`))
	w := httptest.NewRecorder()
	Ask(w, req)

	var resp AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.NeedsHuman == nil || resp.NeedsHuman.FailedStep != "Fetch vibes" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAskRunnerError(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{err: errors.New("model overloaded")})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question": "q"}`))
	w := httptest.NewRecorder()
	Ask(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "model overloaded") {
		t.Error("internal error detail leaked to client")
	}
}

func TestAskStreamEmitsProgressAndDone(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{
		result: &workflow.Result{Answer: "done answer"},
		stages: []workflow.ProgressStage{workflow.StagePlanning, workflow.StageSynthesizing, workflow.StageComplete},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/ask/stream",
		strings.NewReader(`{"question": "q"}`))
	w := httptest.NewRecorder()
	AskStream(w, req)

	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	for _, want := range []string{"event: progress", `"stage":"planning"`, "event: done", "done answer"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
}

func TestGetVocabulary(t *testing.T) {
	Init(knowledge.Default(), &stubRunner{result: &workflow.Result{}})
	req := httptest.NewRequest(http.MethodGet, "/api/vocabulary", nil)
	w := httptest.NewRecorder()
	GetVocabulary(w, req)

	var resp VocabularyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Clients) != 4 || len(resp.CapitalMetrics) != 8 {
		t.Errorf("resp = %+v", resp)
	}
	if members := resp.GroupMembers["all clients"]; len(members) != 4 {
		t.Errorf("all clients members = %v", members)
	}
}
