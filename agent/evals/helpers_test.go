//go:build evals

package evals_test

import (
	"log/slog"
	"os"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
)

func init() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// evalModel returns the model used for evals. Haiku keeps the suite fast and
// cheap; override with ANTHROPIC_MODEL to grade a different model.
func evalModel() anthropic.Model {
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		return anthropic.Model(m)
	}
	return anthropic.ModelClaudeHaiku4_5
}

// newEvalRunner builds a full workflow over the in-memory store with a real
// Anthropic client. Skips the test when no API key is configured.
func newEvalRunner(t *testing.T) *workflow.Runner {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval")
	}

	log := testLogger()
	kb := knowledge.Default()
	runner, err := workflow.NewRunner(workflow.Config{
		Logger: log,
		LLM:    workflow.NewAnthropicLLMClient(evalModel(), 4096),
		KB:     kb,
		Store:  dataapi.NewMemStore(kb, log),
	})
	require.NoError(t, err)
	return runner
}

// newEvalPlanner builds just the planner, for evals that grade plan shape
// without executing anything.
func newEvalPlanner(t *testing.T) *workflow.LLMPlanner {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval")
	}

	prompts, err := workflow.LoadPrompts()
	require.NoError(t, err)
	return workflow.NewLLMPlanner(
		workflow.NewAnthropicLLMClient(evalModel(), 4096),
		prompts,
		knowledge.Default(),
		nil,
		"",
		testLogger(),
	)
}
