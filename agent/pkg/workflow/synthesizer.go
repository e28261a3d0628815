package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantline/strata/agent/pkg/workspace"
)

// DefaultMaxSynthesisRows caps how many rows of each table are rendered into
// the synthesis prompt.
const DefaultMaxSynthesisRows = 50

// Synthesizer turns an executed workspace into a user-facing answer.
type Synthesizer struct {
	llm           LLMClient
	prompts       *Prompts
	formatContext string
	maxRows       int
	log           *slog.Logger
}

// NewSynthesizer creates a synthesizer. formatContext, if non-empty, is
// appended to the system prompt (e.g. Slack formatting guidelines).
func NewSynthesizer(llm LLMClient, p *Prompts, formatContext string, maxRows int, logger *slog.Logger) *Synthesizer {
	if maxRows <= 0 {
		maxRows = DefaultMaxSynthesisRows
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{llm: llm, prompts: p, formatContext: formatContext, maxRows: maxRows, log: logger}
}

// Synthesize renders the step summaries and workspace tables into a prompt
// and asks the model for the final answer.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ws *workspace.Workspace, summaries []string) (string, error) {
	system := s.prompts.Synthesis
	if s.formatContext != "" {
		system += "\n\n# Output Formatting\n\n" + s.formatContext
	}

	var sb strings.Builder
	sb.WriteString("Question: " + question + "\n\n")
	if len(summaries) > 0 {
		sb.WriteString("Steps executed:\n")
		for _, line := range summaries {
			sb.WriteString("- " + line + "\n")
		}
		sb.WriteString("\n")
	}
	for _, name := range ws.Names() {
		t, err := ws.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "## Table %q\n\n%s\n\n", name, t.Format(s.maxRows))
	}

	answer, err := s.llm.Complete(ctx, system, sb.String())
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	s.log.Info("synthesis complete", "answer_len", len(answer))
	return strings.TrimSpace(answer), nil
}
