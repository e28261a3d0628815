package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quantline/strata/agent/pkg/workflow"
	"github.com/quantline/strata/api/config"
)

// Session is one persisted conversation.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionMessage is one turn in a session.
type SessionMessage struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionsEnabled(w http.ResponseWriter) bool {
	if config.Postgres == nil {
		writeError(w, http.StatusServiceUnavailable, "session persistence is not configured")
		return false
	}
	return true
}

// ListSessions returns sessions newest-first.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	if !sessionsEnabled(w) {
		return
	}
	rows, err := config.Postgres.Query(r.Context(),
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT 100`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("Failed to list sessions", err))
		return
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, internalError("Failed to scan session", err))
			return
		}
		sessions = append(sessions, s)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// CreateSession creates a session with an optional title.
func CreateSession(w http.ResponseWriter, r *http.Request) {
	if !sessionsEnabled(w) {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	_ = decodeJSONBody(r, &req)

	s := Session{ID: uuid.New(), Title: req.Title}
	err := config.Postgres.QueryRow(r.Context(),
		`INSERT INTO sessions (id, title) VALUES ($1, $2) RETURNING created_at, updated_at`,
		s.ID, s.Title).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("Failed to create session", err))
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GetSession returns a session with its messages.
func GetSession(w http.ResponseWriter, r *http.Request) {
	if !sessionsEnabled(w) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var s Session
	err = config.Postgres.QueryRow(r.Context(),
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("Failed to load session", err))
		return
	}

	rows, err := config.Postgres.Query(r.Context(),
		`SELECT id, role, content, created_at FROM session_messages WHERE session_id = $1 ORDER BY created_at`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("Failed to load messages", err))
		return
	}
	defer rows.Close()

	messages := []SessionMessage{}
	for rows.Next() {
		var m SessionMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, internalError("Failed to scan message", err))
			return
		}
		messages = append(messages, m)
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": s, "messages": messages})
}

// DeleteSession removes a session and its messages.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !sessionsEnabled(w) {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	tag, err := config.Postgres.Exec(r.Context(), `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("Failed to delete session", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionHistory loads a session's turns as workflow conversation messages.
func sessionHistory(ctx context.Context, sessionID uuid.UUID) ([]workflow.ConversationMessage, error) {
	if config.Postgres == nil {
		return nil, nil
	}
	rows, err := config.Postgres.Query(ctx,
		`SELECT role, content FROM session_messages WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []workflow.ConversationMessage
	for rows.Next() {
		var m workflow.ConversationMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// appendSessionMessage persists one turn and bumps the session timestamp.
// Persistence failures are logged, not fatal: the answer was already produced.
func appendSessionMessage(ctx context.Context, sessionID uuid.UUID, role, content string) {
	if config.Postgres == nil {
		return
	}
	if _, err := config.Postgres.Exec(ctx,
		`INSERT INTO session_messages (id, session_id, role, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), sessionID, role, content); err != nil {
		internalError("Failed to persist session message", err)
		return
	}
	if _, err := config.Postgres.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		internalError("Failed to touch session", err)
	}
}
