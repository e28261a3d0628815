package bot

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quantline/strata/agent/pkg/workflow"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRespondedDedupe(t *testing.T) {
	p := NewProcessor(nil, nil, NewManager(nil), discardLogger(), "")

	if p.HasResponded("C1:111.0") {
		t.Error("responded before being marked")
	}
	p.MarkResponded("C1:111.0")
	if !p.HasResponded("C1:111.0") {
		t.Error("not responded after being marked")
	}

	p.respondedMu.Lock()
	p.responded["C1:111.0"] = time.Now().Add(-2 * respondedMaxAge)
	p.respondedMu.Unlock()
	p.cleanup()
	if p.HasResponded("C1:111.0") {
		t.Error("stale responded key survived cleanup")
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		name     string
		progress workflow.Progress
		want     string
	}{
		{"planning", workflow.Progress{Stage: workflow.StagePlanning}, "Planning"},
		{"planned one", workflow.Progress{Stage: workflow.StagePlanned, StepsTotal: 1}, "Planned 1 step"},
		{"planned many", workflow.Progress{Stage: workflow.StagePlanned, StepsTotal: 3}, "Planned 3 steps"},
		{"step started", workflow.Progress{Stage: workflow.StageStepStarted, StepIndex: 1, StepsTotal: 3, StepSummary: "Fetch revenues"}, "Step 2/3: Fetch revenues"},
		{"step failed", workflow.Progress{Stage: workflow.StageStepComplete, StepIndex: 0, StepError: "boom"}, "Step 1 hit a snag"},
		{"synthesizing", workflow.Progress{Stage: workflow.StageSynthesizing}, "Writing up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusText(tt.progress)
			if !strings.Contains(got, tt.want) {
				t.Errorf("statusText(%v) = %q, want containing %q", tt.progress.Stage, got, tt.want)
			}
		})
	}
}

func TestStatusTextSilentStages(t *testing.T) {
	for _, stage := range []workflow.ProgressStage{
		workflow.StageExecuting,
		workflow.StageComplete,
		workflow.StageNeedsHuman,
		workflow.StageError,
	} {
		if got := statusText(workflow.Progress{Stage: stage}); got != "" {
			t.Errorf("statusText(%v) = %q, want silent", stage, got)
		}
	}
	if got := statusText(workflow.Progress{Stage: workflow.StageStepComplete}); got != "" {
		t.Errorf("clean step completion should be silent, got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString = %q", got)
	}
	if got := TruncateString("a much longer message", 6); got != "a much..." {
		t.Errorf("TruncateString = %q", got)
	}
}
