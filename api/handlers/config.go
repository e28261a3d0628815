package handlers

import (
	"net/http"
	"os"

	"github.com/quantline/strata/api/config"
)

// GetConfig returns the feature flags the UI needs at load time.
func GetConfig(w http.ResponseWriter, r *http.Request) {
	store := "clickhouse"
	if config.UseMemStore() {
		store = "mem"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store":            store,
		"sessions_enabled": config.Postgres != nil,
		"slack_enabled":    os.Getenv("SLACK_BOT_TOKEN") != "",
	})
}
