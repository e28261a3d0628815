package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/plan"
)

// LLMPlanner produces plans and corrections through an LLM. It implements
// executor.Planner.
type LLMPlanner struct {
	llm        LLMClient
	prompts    *Prompts
	kb         *knowledge.Base
	clock      clockwork.Clock
	envContext string
	log        *slog.Logger
}

// NewLLMPlanner creates a planner. The knowledge base is rendered into the
// system prompt so the model plans against real vocabularies.
func NewLLMPlanner(llm LLMClient, p *Prompts, kb *knowledge.Base, clock clockwork.Clock, envContext string, logger *slog.Logger) *LLMPlanner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LLMPlanner{
		llm:        llm,
		prompts:    p,
		kb:         kb,
		clock:      clock,
		envContext: envContext,
		log:        logger,
	}
}

func (p *LLMPlanner) systemPrompt() string {
	return BuildPlannerSystemPrompt(p.prompts.Planner, KnowledgeContext(p.kb), p.envContext, p.clock.Now())
}

// CreatePlan implements executor.Planner.
func (p *LLMPlanner) CreatePlan(ctx context.Context, query string) (*plan.Plan, error) {
	return p.CreatePlanWithHistory(ctx, query, nil)
}

// CreatePlanWithHistory plans with prior conversation turns as context.
func (p *LLMPlanner) CreatePlanWithHistory(ctx context.Context, query string, history []ConversationMessage) (*plan.Plan, error) {
	var sb strings.Builder
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n\n", msg.Role, msg.Content)
	}
	sb.WriteString("Question: " + query)

	raw, err := p.llm.Complete(ctx, p.systemPrompt(), sb.String(), WithCacheControl())
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}
	parsed, err := plan.Parse([]byte(extractJSON(raw)))
	if err != nil {
		return nil, fmt.Errorf("planner returned an unusable plan: %w", err)
	}
	p.log.Info("plan created", "steps", len(parsed.Steps))
	return parsed, nil
}

// CreateCorrection implements executor.Planner. The correction prompt carries
// the failed step, the error, and the workspace schemas so the model can plan
// around what already succeeded.
func (p *LLMPlanner) CreateCorrection(ctx context.Context, req executor.CorrectionRequest) (*plan.Plan, error) {
	user := p.prompts.Correction
	user = strings.ReplaceAll(user, "{{QUESTION}}", req.OriginalQuery)
	user = strings.ReplaceAll(user, "{{FAILED_STEP}}", req.FailedStepSummary)
	user = strings.ReplaceAll(user, "{{ERROR}}", req.ErrorMessage)
	user = strings.ReplaceAll(user, "{{WORKSPACE}}", formatWorkspaceSummary(req.WorkspaceSummary))

	raw, err := p.llm.Complete(ctx, p.systemPrompt(), user, WithCacheControl())
	if err != nil {
		return nil, fmt.Errorf("correction generation failed: %w", err)
	}
	parsed, err := plan.Parse([]byte(extractJSON(raw)))
	if err != nil {
		return nil, fmt.Errorf("planner returned an unusable correction: %w", err)
	}
	p.log.Info("correction created", "failed_step", req.FailedStepSummary, "steps", len(parsed.Steps))
	return parsed, nil
}
