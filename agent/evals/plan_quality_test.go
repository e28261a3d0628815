//go:build evals

package evals_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantline/strata/agent/pkg/plan"
)

// These evals grade plan shape against a live model. They are judgment
// checks, not regression tests: a failure means the prompt or model drifted,
// not necessarily that code broke.

func firstFetch(t *testing.T, p *plan.Plan) *plan.FetchOp {
	t.Helper()
	for _, step := range p.Steps {
		if op, ok := step.Op.(*plan.FetchOp); ok {
			return op
		}
	}
	t.Fatalf("plan has no data_fetch step: %+v", p)
	return nil
}

func TestPlanSingleClientRevenue(t *testing.T) {
	planner := newEvalPlanner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p, err := planner.CreatePlan(ctx, "What were Citadel's revenues in Q1 2024?")
	require.NoError(t, err)
	require.NotEmpty(t, p.Steps)

	fetch := firstFetch(t, p)
	require.Equal(t, "revenues", fetch.Metric)
	require.Contains(t, fetch.Entities, "citadel")
	require.NotEmpty(t, fetch.DateDescription)
}

func TestPlanGroupComparisonUsesClientGranularity(t *testing.T) {
	planner := newEvalPlanner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p, err := planner.CreatePlan(ctx, "Compare 2024 revenues across the systematic clients")
	require.NoError(t, err)

	fetch := firstFetch(t, p)
	require.Equal(t, "revenues", fetch.Metric)
	require.Contains(t, fetch.RowGranularity, "client")
}

func TestPlanOffTopicQuestionInforms(t *testing.T) {
	planner := newEvalPlanner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p, err := planner.CreatePlan(ctx, "What's the weather like in London today?")
	require.NoError(t, err)
	require.NotEmpty(t, p.Steps)

	_, ok := p.Steps[0].Op.(*plan.InformOp)
	require.True(t, ok, "off-topic question should produce an inform step, got %T", p.Steps[0].Op)
}

func TestEndToEndAnswerMentionsClient(t *testing.T) {
	runner := newEvalRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := runner.Run(ctx, "What were Citadel's revenues in January 2024?")
	require.NoError(t, err)
	require.Nil(t, result.NeedsHuman, "run escalated: %+v", result.NeedsHuman)
	require.NotEmpty(t, result.Answer)
	require.Contains(t, result.Answer, "Citadel")
}
