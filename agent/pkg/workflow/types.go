package workflow

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/plan"
	"github.com/quantline/strata/agent/pkg/resolve"
)

// Context keys for workflow tracing
type ctxKeySessionID struct{}
type ctxKeyWorkflowID struct{}

// ContextWithWorkflowIDs adds session and workflow IDs to a context for tracing.
func ContextWithWorkflowIDs(ctx context.Context, sessionID, workflowID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeySessionID{}, sessionID)
	ctx = context.WithValue(ctx, ctxKeyWorkflowID{}, workflowID)
	return ctx
}

// SessionIDFromContext extracts the session ID from context, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeySessionID{}).(string)
	return id, ok
}

// WorkflowIDFromContext extracts the workflow ID from context, if present.
func WorkflowIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyWorkflowID{}).(string)
	return id, ok
}

// Config holds the configuration for the workflow.
type Config struct {
	Logger     *slog.Logger
	LLM        LLMClient
	KB         *knowledge.Base
	Store      dataapi.Store
	Prompts    *Prompts         // defaults to LoadPrompts() if nil
	Clock      clockwork.Clock  // nil means real clock
	Matcher    resolve.Matcher  // optional entity matcher override
	MaxRetries int              // per-step failure budget (default executor.DefaultMaxRetries)
	MaxRows    int              // max table rows rendered into the synthesis prompt (default 50)
	FormatContext string // Optional formatting context appended to the synthesis prompt (e.g., Slack formatting guidelines)
	EnvContext    string // Optional environment context prepended to the planner prompt (e.g., "You are serving the EMEA desk.")
}

// CompleteOptions holds options for LLM completion.
type CompleteOptions struct {
	CacheSystemPrompt bool // Enable prompt caching for the system prompt
}

// CompleteOption is a functional option for Complete.
type CompleteOption func(*CompleteOptions)

// WithCacheControl enables prompt caching for the system prompt.
// This marks the system prompt as cacheable, reducing costs for
// repeated calls with the same system prompt prefix.
func WithCacheControl() CompleteOption {
	return func(o *CompleteOptions) {
		o.CacheSystemPrompt = true
	}
}

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	// Options can be passed to control caching behavior.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

// ConversationMessage represents a message in conversation history.
type ConversationMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// ProgressStage represents a stage in the workflow execution.
type ProgressStage string

const (
	StagePlanning     ProgressStage = "planning"
	StagePlanned      ProgressStage = "planned"
	StageExecuting    ProgressStage = "executing"
	StageStepStarted  ProgressStage = "step_started"
	StageStepComplete ProgressStage = "step_done"
	StageReplanning   ProgressStage = "replanning"
	StageSynthesizing ProgressStage = "synthesizing"
	StageNeedsHuman   ProgressStage = "needs_human"
	StageComplete     ProgressStage = "complete"
	StageError        ProgressStage = "error"
)

// Progress represents the current state of workflow execution.
type Progress struct {
	Stage      ProgressStage
	StepsTotal int    // Set once the plan is known
	StepIndex  int    // For step stages: zero-based step cursor
	StepSummary string // For step stages: the step's summary line
	StepError  string // For StageStepComplete: error if the step failed
	Error      error  // Set if a fatal error occurred
}

// ProgressCallback is called at each stage of workflow execution.
type ProgressCallback func(Progress)

// Result holds the complete outcome of running the workflow.
type Result struct {
	// Input
	UserQuestion string

	// The plan as initially produced (before any correction splices).
	Plan *plan.Plan

	// Human-readable summaries of the steps that executed successfully.
	StepSummaries []string

	// Final workspace schemas, keyed by table name.
	Tables map[string][]string

	// The user-facing answer. For an inform short-circuit this is the
	// terminal message verbatim; otherwise it is synthesized.
	Answer string

	// Informed is true when an inform step ended the run directly.
	Informed bool

	// NeedsHuman is set when execution escalated instead of completing.
	NeedsHuman *executor.HumanContext
}
