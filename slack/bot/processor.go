package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/snormore/slackmd"

	"github.com/quantline/strata/agent/pkg/workflow"
)

const (
	respondedMaxAge = 1 * time.Hour
	// Slack rejects messages over 40000 characters.
	slackMessageMaxLen = 39000
	// Minimum gap between edits of the status message, to stay well under
	// Slack's rate limits while steps stream in.
	statusUpdateInterval = 1 * time.Second
)

// Processor answers a single Slack message: it posts a status placeholder in
// the thread, runs the workflow with progress edits, and replaces the
// placeholder with the final answer.
type Processor struct {
	client      *Client
	runner      ChatRunner
	convManager *Manager
	log         *slog.Logger
	webBaseURL  string

	respondedMu sync.RWMutex
	responded   map[string]time.Time
}

// NewProcessor creates a message processor.
func NewProcessor(client *Client, runner ChatRunner, convManager *Manager, log *slog.Logger, webBaseURL string) *Processor {
	return &Processor{
		client:      client,
		runner:      runner,
		convManager: convManager,
		log:         log,
		webBaseURL:  webBaseURL,
		responded:   make(map[string]time.Time),
	}
}

// HasResponded reports whether a message key was already answered.
func (p *Processor) HasResponded(messageKey string) bool {
	p.respondedMu.RLock()
	defer p.respondedMu.RUnlock()
	_, ok := p.responded[messageKey]
	return ok
}

// MarkResponded records a message key as answered.
func (p *Processor) MarkResponded(messageKey string) {
	p.respondedMu.Lock()
	p.responded[messageKey] = time.Now()
	p.respondedMu.Unlock()
}

// StartCleanup starts a background goroutine that expires old responded keys.
func (p *Processor) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.cleanup()
			}
		}
	}()
}

func (p *Processor) cleanup() {
	cutoff := time.Now().Add(-respondedMaxAge)
	p.respondedMu.Lock()
	for key, at := range p.responded {
		if at.Before(cutoff) {
			delete(p.responded, key)
		}
	}
	p.respondedMu.Unlock()
}

// ProcessMessage answers one message. It is called from its own goroutine.
func (p *Processor) ProcessMessage(ctx context.Context, client *Client, ev *slackevents.MessageEvent, messageKey, eventID string, isChannel bool) {
	question := client.StripBotMention(ev.Text)
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	if question == "" {
		if _, err := client.PostMessage(ctx, ev.Channel, threadTS, "Ask me about client revenues, balances, or capital metrics."); err != nil {
			p.log.Error("failed to post usage hint", "error", err, "channel", ev.Channel)
		}
		return
	}

	statusTS, err := client.PostMessage(ctx, ev.Channel, threadTS, ":hourglass_flowing_sand: Working on it...")
	if err != nil {
		p.log.Error("failed to post status message", "error", err, "channel", ev.Channel, "event_id", eventID)
		return
	}

	history := p.convManager.History(ev.Channel, threadTS)

	var lastStatus string
	var lastUpdate time.Time
	onProgress := func(prog workflow.Progress) {
		status := statusText(prog)
		if status == "" || status == lastStatus {
			return
		}
		if time.Since(lastUpdate) < statusUpdateInterval && prog.Stage != workflow.StageSynthesizing {
			return
		}
		if err := client.UpdateMessage(ctx, ev.Channel, statusTS, status); err != nil {
			p.log.Warn("failed to update status message", "error", err)
			return
		}
		lastStatus = status
		lastUpdate = time.Now()
	}

	result, err := p.runner.ChatStream(ctx, question, history, threadKey(ev.Channel, threadTS), onProgress)
	if err != nil {
		p.log.Error("workflow failed", "error", err, "event_id", eventID, "channel", ev.Channel)
		AnswersTotal.WithLabelValues("error").Inc()
		msg := "Sorry, something went wrong while answering that. Please try again."
		if err := client.UpdateMessage(ctx, ev.Channel, statusTS, msg); err != nil {
			p.log.Error("failed to post error message", "error", err)
		}
		return
	}

	outcome := "completed"
	if result.NeedsHuman != nil {
		outcome = "needs_human"
	}
	AnswersTotal.WithLabelValues(outcome).Inc()

	answer := slackmd.Convert(result.Answer)
	if len(answer) > slackMessageMaxLen {
		answer = answer[:slackMessageMaxLen] + "\n_(truncated)_"
	}
	if err := client.UpdateMessage(ctx, ev.Channel, statusTS, answer); err != nil {
		p.log.Error("failed to post answer", "error", err, "event_id", eventID)
		return
	}

	p.convManager.AppendTurn(ev.Channel, threadTS, "user", question)
	p.convManager.AppendTurn(ev.Channel, threadTS, "assistant", result.Answer)
	if isChannel {
		p.convManager.MarkThreadActive(ev.Channel, threadTS)
	}

	p.log.Info("answered", "channel", ev.Channel, "thread_ts", threadTS, "steps", len(result.StepSummaries), "outcome", outcome)
}

// statusText renders a progress update as a one-line status message.
// Stages with no user-visible status return "".
func statusText(p workflow.Progress) string {
	switch p.Stage {
	case workflow.StagePlanning:
		return ":brain: Planning..."
	case workflow.StagePlanned:
		if p.StepsTotal == 1 {
			return ":brain: Planned 1 step"
		}
		return fmt.Sprintf(":brain: Planned %d steps", p.StepsTotal)
	case workflow.StageStepStarted:
		return fmt.Sprintf(":gear: Step %d/%d: %s", p.StepIndex+1, p.StepsTotal, p.StepSummary)
	case workflow.StageStepComplete:
		if p.StepError != "" {
			return fmt.Sprintf(":warning: Step %d hit a snag, adjusting the plan...", p.StepIndex+1)
		}
		return ""
	case workflow.StageSynthesizing:
		return ":memo: Writing up the answer..."
	default:
		return ""
	}
}
