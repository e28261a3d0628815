package bot

import (
	"fmt"
	"os"
)

// Mode selects how the bot receives events from Slack.
type Mode string

const (
	// ModeSocket uses Socket Mode over a websocket (requires an app token).
	ModeSocket Mode = "socket"
	// ModeHTTP receives events on a signed HTTP endpoint.
	ModeHTTP Mode = "http"
)

// Config holds the Slack bot configuration.
type Config struct {
	Mode          Mode
	BotToken      string
	AppToken      string
	SigningSecret string
	BotUserID     string // filled in after auth test
	WebBaseURL    string // optional link back to the web UI
}

// LoadFromEnv builds a Config from the environment. When modeFlag is empty
// the mode is inferred: socket if SLACK_APP_TOKEN is set, HTTP otherwise.
func LoadFromEnv(modeFlag string) (*Config, error) {
	cfg := &Config{
		BotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		AppToken:      os.Getenv("SLACK_APP_TOKEN"),
		SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		WebBaseURL:    os.Getenv("WEB_BASE_URL"),
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN is required")
	}

	switch modeFlag {
	case "":
		if cfg.AppToken != "" {
			cfg.Mode = ModeSocket
		} else {
			cfg.Mode = ModeHTTP
		}
	case string(ModeSocket):
		cfg.Mode = ModeSocket
	case string(ModeHTTP):
		cfg.Mode = ModeHTTP
	default:
		return nil, fmt.Errorf("unknown slack mode %q (want %q or %q)", modeFlag, ModeSocket, ModeHTTP)
	}

	if cfg.Mode == ModeSocket && cfg.AppToken == "" {
		return nil, fmt.Errorf("SLACK_APP_TOKEN is required in socket mode")
	}
	if cfg.Mode == ModeHTTP && cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SLACK_SIGNING_SECRET is required in http mode")
	}
	return cfg, nil
}
