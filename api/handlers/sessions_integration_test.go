//go:build integration

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
	apitesting "github.com/quantline/strata/api/testing"
)

func sessionsRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/sessions", ListSessions)
	r.Post("/api/sessions", CreateSession)
	r.Get("/api/sessions/{id}", GetSession)
	r.Delete("/api/sessions/{id}", DeleteSession)
	return r
}

func TestSessionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pgdb, err := apitesting.NewPostgresDB(ctx, slog.Default())
	require.NoError(t, err)
	defer pgdb.Close()

	apitesting.SetupTestPostgres(t, pgdb)
	Init(knowledge.Default(), &stubRunner{result: &workflow.Result{Answer: "ok"}})

	r := sessionsRouter()

	// Create
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"title": "citadel deep dive"}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "citadel deep dive", created.Title)
	require.NotEmpty(t, created.ID)

	// Append messages directly, the way Ask does after a run.
	appendSessionMessage(ctx, created.ID, "user", "citadel q1 revenues")
	appendSessionMessage(ctx, created.ID, "assistant", "Citadel booked $12.3M.")

	// Get returns the session with its messages
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fetched struct {
		Session  Session          `json:"session"`
		Messages []SessionMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	require.Len(t, fetched.Messages, 2)
	require.Equal(t, "user", fetched.Messages[0].Role)

	// History helper sees the same turns
	history, err := sessionHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "Citadel booked $12.3M.", history[1].Content)

	// List includes it
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "citadel deep dive")

	// Delete cascades
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID.String(), nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID.String(), nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
