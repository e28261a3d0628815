package handlers

import (
	"log/slog"
	"strings"
)

// internalError logs the full error internally and returns a user-safe
// message without hostnames, credentials, or query text.
func internalError(operation string, err error) string {
	slog.Error(operation, "error", err)
	return operation
}

// SanitizeError strips credentials embedded in URLs from an error message
// before it is returned to a client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "://"); idx != -1 {
		if atIdx := strings.Index(msg[idx:], "@"); atIdx != -1 {
			msg = msg[:idx+3] + "***@" + msg[idx+atIdx+1:]
		}
	}
	return msg
}
