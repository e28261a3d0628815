// Package workflow wires the planner, executor, and synthesizer into the
// end-to-end question-answering pipeline, and owns the LLM surface for all
// three.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantline/strata/agent/pkg/executor"
	"github.com/quantline/strata/agent/pkg/query"
	"github.com/quantline/strata/agent/pkg/transform"
)

// Runner executes the full pipeline: plan, run the plan with self-correction,
// synthesize the answer.
type Runner struct {
	cfg       Config
	planner   *LLMPlanner
	queryTool *query.Tool
	transform *transform.Runner
	synth     *Synthesizer
	log       *slog.Logger
}

// NewRunner validates the config and wires the pipeline.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.KB == nil {
		return nil, fmt.Errorf("knowledge base is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return nil, err
		}
		cfg.Prompts = p
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{
		cfg:     cfg,
		planner: NewLLMPlanner(cfg.LLM, cfg.Prompts, cfg.KB, cfg.Clock, cfg.EnvContext, cfg.Logger),
		queryTool: query.New(query.Config{
			KB:         cfg.KB,
			Store:      cfg.Store,
			Clock:      cfg.Clock,
			DateParser: NewLLMDateParser(cfg.LLM, cfg.Prompts, cfg.Clock),
			Matcher:    cfg.Matcher,
			Logger:     cfg.Logger,
		}),
		transform: transform.New(cfg.Logger),
		synth:     NewSynthesizer(cfg.LLM, cfg.Prompts, cfg.FormatContext, cfg.MaxRows, cfg.Logger),
		log:       cfg.Logger,
	}, nil
}

// Run executes the pipeline for a single question.
func (r *Runner) Run(ctx context.Context, question string) (*Result, error) {
	return r.RunWithProgress(ctx, question, nil, nil)
}

// RunWithHistory executes the pipeline with conversation context.
func (r *Runner) RunWithHistory(ctx context.Context, question string, history []ConversationMessage) (*Result, error) {
	return r.RunWithProgress(ctx, question, history, nil)
}

// RunWithProgress executes the pipeline with progress callbacks.
func (r *Runner) RunWithProgress(ctx context.Context, question string, history []ConversationMessage, onProgress ProgressCallback) (*Result, error) {
	notify := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	notify(Progress{Stage: StagePlanning})
	r.log.Info("planning", "question", question)
	initial, err := r.planner.CreatePlanWithHistory(ctx, question, history)
	if err != nil {
		notify(Progress{Stage: StageError, Error: err})
		return nil, err
	}
	notify(Progress{Stage: StagePlanned, StepsTotal: len(initial.Steps)})

	// A fresh executor per run, so its step events bridge into this run's
	// callback.
	exec := executor.New(executor.Config{
		Fetch:      r.queryTool,
		Transform:  r.transform,
		Planner:    r.planner,
		MaxRetries: r.cfg.MaxRetries,
		Logger:     r.log,
		OnStep: func(ev executor.StepEvent) {
			p := Progress{
				StepsTotal:  ev.Total,
				StepIndex:   ev.Index,
				StepSummary: ev.Summary,
			}
			if !ev.Done {
				p.Stage = StageStepStarted
			} else {
				p.Stage = StageStepComplete
				if ev.Err != nil {
					p.StepError = ev.Err.Error()
				}
			}
			notify(p)
		},
	})

	notify(Progress{Stage: StageExecuting, StepsTotal: len(initial.Steps)})
	execResult, err := exec.Execute(ctx, initial, question)
	if err != nil {
		notify(Progress{Stage: StageError, Error: err})
		return nil, err
	}

	result := &Result{
		UserQuestion:  question,
		Plan:          initial,
		StepSummaries: execResult.Summaries,
		Tables:        execResult.Workspace.List(),
	}

	if execResult.Status == executor.StatusNeedsHuman {
		result.NeedsHuman = execResult.NeedsHuman
		result.Answer = needsHumanMessage(execResult.NeedsHuman)
		notify(Progress{Stage: StageNeedsHuman})
		notify(Progress{Stage: StageComplete})
		r.log.Warn("run escalated", "question", question, "failed_step", execResult.NeedsHuman.FailedStep)
		return result, nil
	}

	if execResult.TerminalMessage != "" {
		// inform short-circuit: the message is the answer, no synthesis.
		result.Answer = execResult.TerminalMessage
		result.Informed = true
		notify(Progress{Stage: StageComplete})
		return result, nil
	}

	notify(Progress{Stage: StageSynthesizing})
	answer, err := r.synth.Synthesize(ctx, question, execResult.Workspace, execResult.Summaries)
	if err != nil {
		notify(Progress{Stage: StageError, Error: err})
		return nil, err
	}
	result.Answer = answer

	notify(Progress{Stage: StageComplete})
	r.log.Info("run complete", "question", question, "steps", len(result.StepSummaries), "tables", len(result.Tables))
	return result, nil
}

// needsHumanMessage renders the escalation context as a user-facing message.
func needsHumanMessage(hc *executor.HumanContext) string {
	if hc == nil {
		return "I wasn't able to complete this request."
	}
	return fmt.Sprintf(
		"I wasn't able to complete this request.\n\nFailed step: %s\nError: %s\n\nPlease rephrase the question or loop in the analytics team.",
		hc.FailedStep, hc.ErrorMessage)
}
