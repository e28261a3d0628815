// Package handlers implements the HTTP surface of the analytics agent:
// question answering, vocabulary lookups, and session persistence.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
)

// AskRunner is the slice of workflow.Runner the handlers need.
type AskRunner interface {
	RunWithProgress(ctx context.Context, question string, history []workflow.ConversationMessage, onProgress workflow.ProgressCallback) (*workflow.Result, error)
}

var (
	kb     *knowledge.Base
	runner AskRunner
)

// Init wires the handlers' shared dependencies. Must be called before the
// router is mounted.
func Init(base *knowledge.Base, r AskRunner) {
	kb = base
	runner = r
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
