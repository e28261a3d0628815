// Package executor interprets a plan step by step against a fresh
// workspace, with bounded per-step retries and re-planning on failure.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantline/strata/agent/pkg/plan"
	"github.com/quantline/strata/agent/pkg/table"
	"github.com/quantline/strata/agent/pkg/transform"
	"github.com/quantline/strata/agent/pkg/workspace"
)

// DefaultMaxRetries is the per-step failure budget. Retries are not "run
// the same step again": every failure below the budget re-plans through
// the Planner with full error context, because step failures in this
// domain are usually semantic planning errors that would simply reproduce.
const DefaultMaxRetries = 2

// Planner produces plans from user queries and corrected plans from
// failure context. Planner failures are fatal for the request; the
// executor does not retry the planner itself.
type Planner interface {
	CreatePlan(ctx context.Context, query string) (*plan.Plan, error)
	CreateCorrection(ctx context.Context, req CorrectionRequest) (*plan.Plan, error)
}

// CorrectionRequest carries everything the planner needs to produce a
// replacement plan after a step failure.
type CorrectionRequest struct {
	OriginalQuery     string
	StepIndex         int // zero-based cursor of the failed step
	FailedStepSummary string
	ErrorMessage      string
	WorkspaceSummary  map[string][]string
}

// FetchTool executes fetch steps. Implemented by query.Tool.
type FetchTool interface {
	Execute(ctx context.Context, op *plan.FetchOp) (*table.Table, error)
	BusinessLines() map[string][]string
}

// TransformRunner evaluates transform expressions against the workspace.
type TransformRunner interface {
	Run(ws *workspace.Workspace, code string) error
}

// Status is the terminal status of a plan execution.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusNeedsHuman Status = "needs_human"
)

// HumanContext is the diagnostic payload of a needs-human outcome:
// sufficient for an operator to resume the task without re-deriving the
// failure from logs.
type HumanContext struct {
	OriginalQuery    string              `json:"original_query"`
	FailedStep       string              `json:"failed_step"`
	ErrorMessage     string              `json:"error_message"`
	WorkspaceSummary map[string][]string `json:"workspace_summary"`
}

// Result is the outcome of executing a plan.
type Result struct {
	Status    Status
	Workspace *workspace.Workspace
	Summaries []string
	// TerminalMessage is set when an inform step short-circuited the run;
	// it bypasses synthesis entirely.
	TerminalMessage string
	// NeedsHuman is set when Status is StatusNeedsHuman.
	NeedsHuman *HumanContext
}

// StepEvent is a progress notification. Done is false when a step starts
// and true when it finishes; Err carries the failure if any.
type StepEvent struct {
	Index   int
	Total   int
	Summary string
	Done    bool
	Err     error
}

// Config wires an Executor.
type Config struct {
	Fetch      FetchTool
	Transform  TransformRunner
	Planner    Planner
	MaxRetries int // default DefaultMaxRetries
	Logger     *slog.Logger
	OnStep     func(StepEvent) // optional progress callback
}

// Executor drives plans to completion.
type Executor struct {
	fetch      FetchTool
	transform  TransformRunner
	planner    Planner
	maxRetries int
	log        *slog.Logger
	onStep     func(StepEvent)
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Transform == nil {
		cfg.Transform = transform.New(cfg.Logger)
	}
	if cfg.OnStep == nil {
		cfg.OnStep = func(StepEvent) {}
	}
	return &Executor{
		fetch:      cfg.Fetch,
		transform:  cfg.Transform,
		planner:    cfg.Planner,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Logger,
		onStep:     cfg.OnStep,
	}
}

// Execute runs the plan over a fresh workspace. It returns an error only
// when the planner's correction path itself fails; every other failure is
// absorbed into the retry/re-plan/needs-human transitions.
func (e *Executor) Execute(ctx context.Context, initial *plan.Plan, userQuery string) (*Result, error) {
	steps := append([]plan.Step(nil), initial.Steps...)
	ws := workspace.New()
	var summaries []string
	cursor := 0
	retries := 0

	for cursor < len(steps) {
		step := steps[cursor]
		e.onStep(StepEvent{Index: cursor, Total: len(steps), Summary: step.Summary})
		e.log.Info("executing step", "index", cursor+1, "total", len(steps), "summary", step.Summary)

		terminal, err := e.runStep(ctx, ws, step)
		e.onStep(StepEvent{Index: cursor, Total: len(steps), Summary: step.Summary, Done: true, Err: err})

		if err == nil {
			summaries = append(summaries, fmt.Sprintf("Step %d: %s", cursor+1, step.Summary))
			retries = 0
			cursor++
			if terminal != "" {
				// inform short-circuit: remaining steps and synthesis
				// are skipped.
				return &Result{
					Status:          StatusCompleted,
					Workspace:       ws,
					Summaries:       summaries,
					TerminalMessage: terminal,
				}, nil
			}
			continue
		}

		e.log.Warn("step failed", "index", cursor+1, "summary", step.Summary, "error", err)
		retries++
		if retries >= e.maxRetries {
			return &Result{
				Status:    StatusNeedsHuman,
				Workspace: ws,
				Summaries: summaries,
				NeedsHuman: &HumanContext{
					OriginalQuery:    userQuery,
					FailedStep:       step.Summary,
					ErrorMessage:     err.Error(),
					WorkspaceSummary: ws.List(),
				},
			}, nil
		}

		// Re-plan: keep everything already executed, replace the suffix
		// wholesale, and retry at the same cursor. The failure counter
		// carries over; only success resets it.
		corrected, perr := e.planner.CreateCorrection(ctx, CorrectionRequest{
			OriginalQuery:     userQuery,
			StepIndex:         cursor,
			FailedStepSummary: step.Summary,
			ErrorMessage:      err.Error(),
			WorkspaceSummary:  ws.List(),
		})
		if perr != nil {
			return nil, fmt.Errorf("planner correction failed: %w", perr)
		}
		steps = append(steps[:cursor:cursor], corrected.Steps...)
		e.log.Info("plan corrected", "kept_steps", cursor, "new_steps", len(corrected.Steps))
	}

	return &Result{
		Status:    StatusCompleted,
		Workspace: ws,
		Summaries: summaries,
	}, nil
}

// runStep dispatches a step to its tool. The returned string is non-empty
// only for the inform kind's terminal message. The switch is exhaustive
// over the step sum type; an unhandled kind is a bug, not a retryable
// failure, but it still feeds the same recovery path.
func (e *Executor) runStep(ctx context.Context, ws *workspace.Workspace, step plan.Step) (string, error) {
	switch op := step.Op.(type) {
	case *plan.FetchOp:
		result, err := e.fetch.Execute(ctx, op)
		if err != nil {
			return "", err
		}
		name := op.OutputVariable
		if name == "" {
			name = "result"
		}
		return "", ws.Add(name, result)

	case *plan.DescribeOp:
		desc, err := ws.Describe(op.TableName)
		if err != nil {
			return "", err
		}
		e.log.Info("described table", "table", op.TableName, "schema", desc)
		return "", nil

	case *plan.TransformOp:
		return "", e.transform.Run(ws, op.Code)

	case *plan.ListBusinessLinesOp:
		e.log.Info("listed business lines", "lines", e.fetch.BusinessLines())
		return "", nil

	case *plan.InformOp:
		if op.Message == "" {
			return "", fmt.Errorf("inform step has no message")
		}
		return op.Message, nil

	default:
		return "", fmt.Errorf("unhandled step kind %T", step.Op)
	}
}
