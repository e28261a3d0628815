// Command strata answers a single question about client financial data from
// the terminal. It runs the agent workflow in-process against either the
// in-memory store or ClickHouse, depending on environment configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
	"github.com/quantline/strata/api/config"
	"github.com/quantline/strata/utils/pkg/logger"
)

const defaultTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	quietFlag := flag.BoolP("quiet", "q", false, "suppress progress output, print only the answer")
	modelFlag := flag.String("model", "", "Anthropic model to use (or set ANTHROPIC_MODEL env var)")
	timeoutFlag := flag.Duration("timeout", defaultTimeout, "overall run timeout")
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: strata [flags] <question>")
	}

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	if err := config.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer config.Close()

	kb := knowledge.Default()

	var store dataapi.Store
	if config.UseMemStore() {
		log.Debug("using in-memory data store")
		store = dataapi.NewMemStore(kb, log)
	} else {
		store = dataapi.NewCHStore(config.DB, log)
	}

	model := anthropic.ModelClaudeHaiku4_5
	if *modelFlag != "" {
		model = anthropic.Model(*modelFlag)
	} else if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		model = anthropic.Model(m)
	}

	runner, err := workflow.NewRunner(workflow.Config{
		Logger: log,
		LLM:    workflow.NewAnthropicLLMClient(model, 4096),
		KB:     kb,
		Store:  store,
	})
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var onProgress workflow.ProgressCallback
	if !*quietFlag {
		onProgress = printProgress
	}

	result, err := runner.RunWithProgress(ctx, question, nil, onProgress)
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)

	if result.NeedsHuman != nil {
		os.Exit(2)
	}
	return nil
}

// printProgress writes one status line per workflow stage to stderr, keeping
// stdout clean for the answer.
func printProgress(p workflow.Progress) {
	switch p.Stage {
	case workflow.StagePlanning:
		fmt.Fprintln(os.Stderr, "Planning...")
	case workflow.StagePlanned:
		fmt.Fprintf(os.Stderr, "Planned %d steps\n", p.StepsTotal)
	case workflow.StageStepStarted:
		fmt.Fprintf(os.Stderr, "  [%d/%d] %s\n", p.StepIndex+1, p.StepsTotal, p.StepSummary)
	case workflow.StageStepComplete:
		if p.StepError != "" {
			fmt.Fprintf(os.Stderr, "  [%d/%d] failed: %s (adjusting plan)\n", p.StepIndex+1, p.StepsTotal, p.StepError)
		}
	case workflow.StageSynthesizing:
		fmt.Fprintln(os.Stderr, "Synthesizing answer...")
	case workflow.StageNeedsHuman:
		fmt.Fprintln(os.Stderr, "Escalating: the question could not be answered automatically.")
	}
}
