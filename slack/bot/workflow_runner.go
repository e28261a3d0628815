package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
)

// ChatStreamResult holds the outcome of one chat workflow run.
type ChatStreamResult struct {
	Answer        string
	StepSummaries []string
	Tables        map[string][]string
	NeedsHuman    *executor.HumanContext
	SessionID     string
}

// ChatRunner runs chat workflows and returns results.
type ChatRunner interface {
	ChatStream(
		ctx context.Context,
		message string,
		history []workflow.ConversationMessage,
		sessionID string,
		onProgress workflow.ProgressCallback,
	) (ChatStreamResult, error)
}

// WorkflowRunner answers questions by invoking the agent workflow in-process,
// without going through the HTTP API. Its workflow is configured with Slack
// formatting guidance so answers render as mrkdwn.
type WorkflowRunner struct {
	runner *workflow.Runner
	log    *slog.Logger
}

// NewWorkflowRunner builds the Slack-facing workflow over the given knowledge
// base and data store.
func NewWorkflowRunner(kb *knowledge.Base, store dataapi.Store, log *slog.Logger) (*WorkflowRunner, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	prompts, err := workflow.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	model := anthropic.ModelClaudeHaiku4_5
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		model = anthropic.Model(m)
	}

	runner, err := workflow.NewRunner(workflow.Config{
		Logger:        log,
		LLM:           workflow.NewAnthropicLLMClient(model, 4096),
		KB:            kb,
		Store:         store,
		Prompts:       prompts,
		FormatContext: prompts.Slack,
	})
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return &WorkflowRunner{runner: runner, log: log}, nil
}

// ChatStream runs the agent workflow and streams progress via the callback.
func (r *WorkflowRunner) ChatStream(
	ctx context.Context,
	message string,
	history []workflow.ConversationMessage,
	sessionID string,
	onProgress workflow.ProgressCallback,
) (ChatStreamResult, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	ctx = workflow.ContextWithWorkflowIDs(ctx, sessionID, uuid.New().String())

	result, err := r.runner.RunWithProgress(ctx, message, history, onProgress)
	if err != nil {
		return ChatStreamResult{}, err
	}
	return ChatStreamResult{
		Answer:        result.Answer,
		StepSummaries: result.StepSummaries,
		Tables:        result.Tables,
		NeedsHuman:    result.NeedsHuman,
		SessionID:     sessionID,
	}, nil
}
