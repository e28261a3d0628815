package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/workflow"
	"github.com/quantline/strata/api/metrics"
)

// AskRequest is a question, optionally bound to a persisted session.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	// History overrides the stored session history when supplied directly.
	History []workflow.ConversationMessage `json:"history,omitempty"`
}

// AskResponse is the full outcome of one run.
type AskResponse struct {
	Answer        string                 `json:"answer"`
	StepSummaries []string               `json:"step_summaries"`
	Tables        map[string][]string    `json:"tables"`
	NeedsHuman    *executor.HumanContext `json:"needs_human,omitempty"`
}

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseAskRequest(r *http.Request) (AskRequest, uuid.UUID, error) {
	var req AskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return req, uuid.Nil, fmt.Errorf("invalid request body")
	}
	if req.Question == "" {
		return req, uuid.Nil, fmt.Errorf("question is required")
	}
	var sessionID uuid.UUID
	if req.SessionID != "" {
		var err error
		if sessionID, err = uuid.Parse(req.SessionID); err != nil {
			return req, uuid.Nil, fmt.Errorf("invalid session_id")
		}
	}
	return req, sessionID, nil
}

func loadHistory(r *http.Request, req AskRequest, sessionID uuid.UUID) []workflow.ConversationMessage {
	if len(req.History) > 0 {
		return req.History
	}
	if sessionID == uuid.Nil {
		return nil
	}
	history, err := sessionHistory(r.Context(), sessionID)
	if err != nil {
		internalError("Failed to load session history", err)
		return nil
	}
	return history
}

func runOutcome(res *workflow.Result) string {
	switch {
	case res.NeedsHuman != nil:
		return "needs_human"
	case res.Informed:
		return "informed"
	default:
		return "completed"
	}
}

// Ask answers a question synchronously.
func Ask(w http.ResponseWriter, r *http.Request) {
	req, sessionID, err := parseAskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history := loadHistory(r, req, sessionID)

	start := time.Now()
	res, err := runner.RunWithProgress(r.Context(), req.Question, history, nil)
	if err != nil {
		metrics.RecordWorkflowRun("error", time.Since(start))
		writeError(w, http.StatusInternalServerError, internalError("Failed to answer question", err))
		return
	}
	metrics.RecordWorkflowRun(runOutcome(res), time.Since(start))

	if sessionID != uuid.Nil {
		appendSessionMessage(r.Context(), sessionID, "user", req.Question)
		appendSessionMessage(r.Context(), sessionID, "assistant", res.Answer)
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Answer:        res.Answer,
		StepSummaries: res.StepSummaries,
		Tables:        res.Tables,
		NeedsHuman:    res.NeedsHuman,
	})
}

// AskStream answers a question over SSE, emitting a "progress" event per
// workflow stage and a final "done" event with the full response.
func AskStream(w http.ResponseWriter, r *http.Request) {
	req, sessionID, err := parseAskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history := loadHistory(r, req, sessionID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendEvent := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	start := time.Now()
	res, err := runner.RunWithProgress(r.Context(), req.Question, history, func(p workflow.Progress) {
		ev := map[string]any{"stage": p.Stage}
		if p.StepsTotal > 0 {
			ev["steps_total"] = p.StepsTotal
		}
		if p.StepSummary != "" {
			ev["step_index"] = p.StepIndex
			ev["step_summary"] = p.StepSummary
		}
		if p.StepError != "" {
			ev["step_error"] = p.StepError
		}
		sendEvent("progress", ev)
	})
	if err != nil {
		metrics.RecordWorkflowRun("error", time.Since(start))
		sendEvent("error", map[string]string{"error": internalError("Failed to answer question", err)})
		return
	}
	metrics.RecordWorkflowRun(runOutcome(res), time.Since(start))

	if sessionID != uuid.Nil {
		appendSessionMessage(r.Context(), sessionID, "user", req.Question)
		appendSessionMessage(r.Context(), sessionID, "assistant", res.Answer)
	}

	sendEvent("done", AskResponse{
		Answer:        res.Answer,
		StepSummaries: res.StepSummaries,
		Tables:        res.Tables,
		NeedsHuman:    res.NeedsHuman,
	})
}
