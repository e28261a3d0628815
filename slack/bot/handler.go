// Package bot answers questions about client financial data in Slack. The
// bot responds to DMs and channel mentions, and keeps following a thread once
// it has been mentioned in the thread's root message.
package bot

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const processedEventsMaxAge = 1 * time.Hour

// isTeamAllowed checks if a Slack team ID is permitted.
// If SLACK_ALLOWED_TEAM_IDS is not set, all teams are allowed.
func isTeamAllowed(teamID string) bool {
	allowed := os.Getenv("SLACK_ALLOWED_TEAM_IDS")
	if allowed == "" {
		return true
	}
	for _, id := range strings.Split(allowed, ",") {
		if strings.TrimSpace(id) == teamID {
			return true
		}
	}
	return false
}

// EventHandler routes Slack events to the message processor.
type EventHandler struct {
	slackClient *Client
	processor   *Processor
	convManager *Manager
	log         *slog.Logger
	botUserID   string
	shutdownCtx context.Context

	// Track processed events by envelope ID to avoid reprocessing duplicates.
	processedEvents   map[string]time.Time
	processedEventsMu sync.RWMutex

	// Graceful shutdown coordination.
	inFlightOps  sync.WaitGroup
	shuttingDown sync.RWMutex
	acceptingNew bool
}

// NewEventHandler creates a new event handler.
func NewEventHandler(
	slackClient *Client,
	processor *Processor,
	convManager *Manager,
	log *slog.Logger,
	botUserID string,
	shutdownCtx context.Context,
) *EventHandler {
	return &EventHandler{
		slackClient:     slackClient,
		processor:       processor,
		convManager:     convManager,
		log:             log,
		botUserID:       botUserID,
		shutdownCtx:     shutdownCtx,
		processedEvents: make(map[string]time.Time),
		acceptingNew:    true,
	}
}

// StartCleanup starts a background goroutine to clean up old processed events.
func (h *EventHandler) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.cleanup()
			}
		}
	}()
}

// StopAcceptingNew stops accepting new events and returns a function to wait
// for in-flight operations.
func (h *EventHandler) StopAcceptingNew() func() {
	h.shuttingDown.Lock()
	h.acceptingNew = false
	h.shuttingDown.Unlock()
	h.log.Info("stopped accepting new events, waiting for in-flight operations to complete")
	return h.inFlightOps.Wait
}

func (h *EventHandler) isAcceptingNew() bool {
	h.shuttingDown.RLock()
	defer h.shuttingDown.RUnlock()
	return h.acceptingNew
}

func (h *EventHandler) cleanup() {
	now := time.Now()
	h.processedEventsMu.Lock()
	for id, timestamp := range h.processedEvents {
		if now.Sub(timestamp) > processedEventsMaxAge {
			delete(h.processedEvents, id)
		}
	}
	h.processedEventsMu.Unlock()
}

// HandleEvent handles a Slack Events API event.
func (h *EventHandler) HandleEvent(ctx context.Context, e slackevents.EventsAPIEvent, eventID string) {
	h.log.Info("event received", "type", e.Type, "inner_event_type", e.InnerEvent.Type, "team_id", e.TeamID)
	EventsReceivedTotal.WithLabelValues(e.Type, e.InnerEvent.Type).Inc()

	if !isTeamAllowed(e.TeamID) {
		h.log.Warn("ignoring event from disallowed team", "team_id", e.TeamID)
		return
	}
	if e.Type != slackevents.CallbackEvent {
		h.log.Debug("ignoring non-callback event", "type", e.Type)
		return
	}

	// app_mention is more reliable than message events for channel mentions.
	if ev, ok := e.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
		h.handleAppMention(ctx, ev, eventID)
		return
	}
	if ev, ok := e.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		h.handleMessageEvent(ctx, ev, eventID)
	}
}

// handleAppMention handles app_mention events.
func (h *EventHandler) handleAppMention(ctx context.Context, ev *slackevents.AppMentionEvent, eventID string) {
	h.log.Info("app_mention received", "user", ev.User, "channel", ev.Channel, "ts", ev.TimeStamp,
		"thread_ts", ev.ThreadTimeStamp, "text_preview", TruncateString(ev.Text, 100))

	// Only a root-message mention opens a thread for follow-ups. A mention
	// inside someone else's thread answers once without adopting the thread.
	if ev.ThreadTimeStamp == "" {
		h.convManager.MarkThreadActive(ev.Channel, ev.TimeStamp)
	}

	msgEv := &slackevents.MessageEvent{
		Type:            "message",
		User:            ev.User,
		Text:            ev.Text,
		TimeStamp:       ev.TimeStamp,
		ThreadTimeStamp: ev.ThreadTimeStamp,
		Channel:         ev.Channel,
		EventTimeStamp:  ev.EventTimeStamp,
	}

	messageKey := fmt.Sprintf("%s:%s", msgEv.Channel, msgEv.TimeStamp)
	if h.processor.HasResponded(messageKey) {
		h.log.Info("skipping already responded app_mention", "message_ts", msgEv.TimeStamp, "event_id", eventID)
		MessagesIgnoredTotal.WithLabelValues("already_responded").Inc()
		return
	}
	// Mark as responded before the goroutine starts to close the race with
	// Slack's event retries.
	h.processor.MarkResponded(messageKey)
	MessagesProcessedTotal.WithLabelValues("channel").Inc()

	h.inFlightOps.Add(1)
	go func() {
		defer h.inFlightOps.Done()
		// Background context so shutdown cancellation doesn't interrupt
		// in-flight answers; the WaitGroup coordinates shutdown.
		h.processor.ProcessMessage(context.Background(), h.slackClient, msgEv, messageKey, eventID, true)
	}()
}

// handleMessageEvent handles message events (DMs and thread replies).
func (h *EventHandler) handleMessageEvent(ctx context.Context, ev *slackevents.MessageEvent, eventID string) {
	if ev.SubType != "" { // ignore edits/joins/etc
		MessagesIgnoredTotal.WithLabelValues("subtype").Inc()
		return
	}
	if ev.BotID != "" { // avoid loops
		MessagesIgnoredTotal.WithLabelValues("bot_message").Inc()
		return
	}
	txt := strings.TrimSpace(ev.Text)
	if txt == "" {
		MessagesIgnoredTotal.WithLabelValues("empty").Inc()
		return
	}

	isDM := ev.ChannelType == "im"
	isChannel := ev.ChannelType == "channel" || ev.ChannelType == "group" || ev.ChannelType == "mpim"

	switch {
	case isChannel:
		botMentioned := h.slackClient.IsBotMentioned(ev.Text)

		// A top-level mention arrives as both a message event and an
		// app_mention; let the app_mention handler take it.
		if botMentioned && ev.ThreadTimeStamp == "" {
			return
		}

		inActiveThread := false
		if ev.ThreadTimeStamp != "" {
			inActiveThread = h.convManager.IsThreadActive(ev.Channel, ev.ThreadTimeStamp)

			// Not in cache (e.g. after a restart): check whether the thread's
			// root message mentioned the bot.
			if !inActiveThread && h.slackClient.BotUserID() != "" {
				rootMentioned, err := h.slackClient.CheckRootMessageMentioned(ctx, ev.Channel, ev.ThreadTimeStamp, h.slackClient.BotUserID())
				if err != nil {
					h.log.Warn("failed to check root message for mention", "thread_ts", ev.ThreadTimeStamp, "error", err)
				} else if rootMentioned {
					h.convManager.MarkThreadActive(ev.Channel, ev.ThreadTimeStamp)
					inActiveThread = true
				}
			}
		}

		if !botMentioned && !inActiveThread {
			MessagesIgnoredTotal.WithLabelValues("not_mentioned").Inc()
			return
		}
		h.log.Info("channel message recv", "user", ev.User, "channel", ev.Channel, "ts", ev.TimeStamp,
			"thread_ts", ev.ThreadTimeStamp, "mentioned", botMentioned, "event_id", eventID,
			"text_preview", TruncateString(txt, 100))

	case isDM:
		h.log.Info("dm recv", "user", ev.User, "channel", ev.Channel, "ts", ev.TimeStamp,
			"thread_ts", ev.ThreadTimeStamp, "event_id", eventID, "text_preview", TruncateString(txt, 100))

	default:
		MessagesIgnoredTotal.WithLabelValues("unknown_channel_type").Inc()
		return
	}

	messageKey := fmt.Sprintf("%s:%s", ev.Channel, ev.TimeStamp)
	if h.processor.HasResponded(messageKey) {
		h.log.Info("skipping already responded message", "message_ts", ev.TimeStamp, "event_id", eventID)
		MessagesIgnoredTotal.WithLabelValues("already_responded").Inc()
		return
	}
	h.processor.MarkResponded(messageKey)

	channelType := ev.ChannelType
	if channelType == "" {
		channelType = "unknown"
	}
	MessagesProcessedTotal.WithLabelValues(channelType).Inc()

	h.inFlightOps.Add(1)
	go func() {
		defer h.inFlightOps.Done()
		h.processor.ProcessMessage(context.Background(), h.slackClient, ev, messageKey, eventID, isChannel)
	}()
}

// HandleSocketMode handles events from Socket Mode.
func (h *EventHandler) HandleSocketMode(ctx context.Context, client *socketmode.Client) error {
	h.log.Info("bot running in socket mode (DMs and channel mentions, thread replies enabled)")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("shutting down socket mode handler", "error", ctx.Err())
			return ctx.Err()
		case evt, ok := <-client.Events:
			if !ok {
				h.log.Info("socket mode client events channel closed")
				return nil
			}
			if !h.isAcceptingNew() {
				h.log.Info("not accepting new events, shutting down")
				return ctx.Err()
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				h.log.Info("socketmode: connecting")
			case socketmode.EventTypeConnected:
				h.log.Info("socketmode: connected")
			case socketmode.EventTypeConnectionError:
				h.log.Error("socketmode: connection error", "error", evt.Data)
			case socketmode.EventTypeEventsAPI:
				e, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					h.log.Warn("socketmode: unexpected EventsAPI payload", "data_type", fmt.Sprintf("%T", evt.Data))
					continue
				}

				// Deduplicate by envelope ID; Slack retries delivery until
				// acked, and retries can arrive before the ack lands.
				envelopeID := evt.Request.EnvelopeID
				if envelopeID != "" {
					h.processedEventsMu.RLock()
					_, alreadyProcessed := h.processedEvents[envelopeID]
					h.processedEventsMu.RUnlock()

					if alreadyProcessed {
						h.log.Info("skipping duplicate event", "envelope_id", envelopeID,
							"retry_attempt", evt.Request.RetryAttempt, "retry_reason", evt.Request.RetryReason)
						EventsDuplicateTotal.Inc()
						client.Ack(*evt.Request)
						continue
					}

					h.processedEventsMu.Lock()
					h.processedEvents[envelopeID] = time.Now()
					h.processedEventsMu.Unlock()
				}

				client.Ack(*evt.Request)
				h.HandleEvent(context.Background(), e, envelopeID)
			}
		}
	}
}

// HandleHTTP handles HTTP requests from the Slack Events API.
func (h *EventHandler) HandleHTTP(w http.ResponseWriter, r *http.Request, signingSecret string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error("failed to read request body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !VerifySlackSignature(r, body, signingSecret) {
		h.log.Warn("invalid Slack signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// URL verification challenge, sent when the endpoint is registered.
	var challengeResp struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &challengeResp); err == nil && challengeResp.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challengeResp.Challenge)); err != nil {
			h.log.Error("failed to write challenge response", "error", err)
		}
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.log.Error("failed to parse event", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// HTTP mode has no envelope ID, so derive a stable event ID for dedupe.
	var eventID string
	if event.Type == slackevents.CallbackEvent {
		if msgEv, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			eventID = fmt.Sprintf("%s:%s", msgEv.Channel, msgEv.TimeStamp)
		} else {
			eventData, _ := json.Marshal(event.InnerEvent.Data)
			eventID = fmt.Sprintf("%x", sha256.Sum256(eventData))
		}
	} else {
		eventData, _ := json.Marshal(event)
		eventID = fmt.Sprintf("%x", sha256.Sum256(eventData))
	}

	h.processedEventsMu.RLock()
	_, alreadyProcessed := h.processedEvents[eventID]
	h.processedEventsMu.RUnlock()
	if alreadyProcessed {
		h.log.Info("skipping duplicate event", "event_id", eventID)
		EventsDuplicateTotal.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	h.processedEventsMu.Lock()
	h.processedEvents[eventID] = time.Now()
	h.processedEventsMu.Unlock()

	if !h.isAcceptingNew() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("Service is shutting down")); err != nil {
			h.log.Error("failed to write shutdown response", "error", err)
		}
		return
	}

	// Respond within Slack's 3 second window, process asynchronously.
	w.WriteHeader(http.StatusOK)
	go h.HandleEvent(context.Background(), event, eventID)
}
