package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/plan"
	"github.com/quantline/strata/agent/pkg/table"
)

// countingStore records which metric methods were called.
type countingStore struct {
	dataapi.Store
	calls int
}

func (s *countingStore) Revenues(ctx context.Context, q dataapi.RevenueQuery) (*table.Table, error) {
	s.calls++
	return s.Store.Revenues(ctx, q)
}

func (s *countingStore) Balances(ctx context.Context, q dataapi.BalanceQuery) (*table.Table, error) {
	s.calls++
	return s.Store.Balances(ctx, q)
}

func newTestTool(store dataapi.Store) *Tool {
	return New(Config{
		KB:    knowledge.Default(),
		Store: store,
		Clock: clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)),
	})
}

func TestExecuteRevenues(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	got, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "revenues",
		Entities:        []string{"citadel", "milenium"},
		DateDescription: "q1 2024",
		RowGranularity:  []string{"client"},
		OutputVariable:  "revs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2 (typo resolved)", got.NumRows())
	}
	if !got.HasColumn("client_id") || !got.HasColumn("revenues") {
		t.Errorf("columns = %v", got.Columns)
	}
}

func TestExecuteCapitalMetric(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	got, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "Total RWA",
		Entities:        []string{"systematic"},
		DateDescription: "fy'25",
		RowGranularity:  []string{"aggregate"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasColumn("Total RWA") {
		t.Errorf("columns = %v", got.Columns)
	}
}

func TestExecuteUnknownMetric(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	_, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "vibes",
		Entities:        []string{"citadel"},
		DateDescription: "2024",
		RowGranularity:  []string{"aggregate"},
	})
	if err == nil || !strings.Contains(err.Error(), "vibes") {
		t.Errorf("err = %v", err)
	}
}

func TestExecuteValidationAbortsBeforeStoreCall(t *testing.T) {
	store := &countingStore{Store: dataapi.NewMemStore(knowledge.Default(), nil)}
	tool := newTestTool(store)

	_, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "revenues",
		Entities:        []string{"citadel"},
		DateDescription: "2024",
		RowGranularity:  []string{"client", "client"},
	})
	var ve *dataapi.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times before validation failure", store.calls)
	}
}

func TestExecuteRejectsInapplicableFilters(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	cases := []plan.FetchOp{
		{Metric: "revenues", Entities: []string{"citadel"}, DateDescription: "2024",
			RowGranularity: []string{"client"}, BalanceType: "Debit"},
		{Metric: "revenues", Entities: []string{"citadel"}, DateDescription: "2024",
			RowGranularity: []string{"client"}, Countries: []string{"USA"}},
		{Metric: "Total AE", Entities: []string{"citadel"}, DateDescription: "2024",
			RowGranularity: []string{"client"}, Regions: []string{"EMEA"}},
		{Metric: "balances", Entities: []string{"citadel"}, DateDescription: "2024",
			RowGranularity: []string{"client"}, FinOrExec: []string{"Financing"}},
	}
	for i := range cases {
		if _, err := tool.Execute(context.Background(), &cases[i]); err == nil {
			t.Errorf("case %d: inapplicable filter accepted: %+v", i, cases[i])
		}
	}
}

func TestExecuteRejectsInapplicableDimensions(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	_, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "Total AE",
		Entities:        []string{"citadel"},
		DateDescription: "2024",
		RowGranularity:  []string{"region"},
	})
	if err == nil || !strings.Contains(err.Error(), "region") {
		t.Errorf("err = %v", err)
	}
}

func TestExecuteResolvesGlobalRegionWildcard(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	got, err := tool.Execute(context.Background(), &plan.FetchOp{
		Metric:          "balances",
		Entities:        []string{"citadel"},
		DateDescription: "q1 2024",
		RowGranularity:  []string{"region"},
		Regions:         []string{"global"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() < 3 {
		t.Errorf("global wildcard produced %d regions", got.NumRows())
	}
}

func TestBusinessResolution(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))

	got, err := tool.resolveBusiness("equities")
	if err != nil || got != "Equities" {
		t.Errorf("equities = %q, %v", got, err)
	}
	got, err = tool.resolveBusiness("ficc")
	if err != nil || got != "FICC" {
		t.Errorf("ficc = %q, %v", got, err)
	}
	if _, err := tool.resolveBusiness("underwater basket weaving"); err == nil {
		t.Error("nonsense business accepted")
	}
}

func TestBusinessLines(t *testing.T) {
	tool := newTestTool(dataapi.NewMemStore(knowledge.Default(), nil))
	lines := tool.BusinessLines()
	if len(lines["valid_businesses"]) != 3 || len(lines["valid_subbusinesses"]) != 8 {
		t.Errorf("lines = %v", lines)
	}
}
