package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// Client wraps the Slack API client with the small surface the bot needs.
type Client struct {
	api       *slack.Client
	botUserID string
	log       *slog.Logger
}

// NewClient creates a Slack client. appToken may be empty in HTTP mode.
func NewClient(botToken, appToken string, log *slog.Logger) *Client {
	opts := []slack.Option{}
	if appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	return &Client{
		api: slack.New(botToken, opts...),
		log: log,
	}
}

// Initialize runs an auth test and records the bot's own user ID.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = resp.UserID
	c.log.Info("slack auth ok", "bot_user_id", resp.UserID, "team", resp.Team)
	return resp.UserID, nil
}

// API exposes the underlying client for socket mode setup.
func (c *Client) API() *slack.Client { return c.api }

// BotUserID returns the bot's user ID, empty until Initialize succeeds.
func (c *Client) BotUserID() string { return c.botUserID }

// IsBotMentioned reports whether the text contains a mention of the bot.
func (c *Client) IsBotMentioned(text string) bool {
	if c.botUserID == "" {
		return false
	}
	return strings.Contains(text, "<@"+c.botUserID+">")
}

// StripBotMention removes mentions of the bot from the text.
func (c *Client) StripBotMention(text string) string {
	if c.botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+c.botUserID+">", ""))
}

// CheckRootMessageMentioned fetches the root message of a thread and reports
// whether it mentions the given user.
func (c *Client) CheckRootMessageMentioned(ctx context.Context, channel, threadTS, userID string) (bool, error) {
	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTS,
		Limit:     1,
	})
	if err != nil {
		return false, fmt.Errorf("get thread root: %w", err)
	}
	if len(msgs) == 0 {
		return false, nil
	}
	return strings.Contains(msgs[0].Text, "<@"+userID+">"), nil
}

// PostMessage posts a message, threading it when threadTS is set.
// Returns the timestamp of the posted message.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return ts, nil
}

// UpdateMessage replaces the text of a previously posted message.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// VerifySlackSignature verifies the request signature in HTTP mode.
func VerifySlackSignature(r *http.Request, body []byte, signingSecret string) bool {
	if signingSecret == "" {
		return false
	}
	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	return verifier.Ensure() == nil
}

// TruncateString shortens s to max runes for log previews.
func TruncateString(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
