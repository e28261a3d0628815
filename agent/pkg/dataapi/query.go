package dataapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantline/strata/agent/pkg/table"
)

// ErrIncompatibleBalanceType is returned by strict stores when a balance
// type filter cannot occur for the queried sub-business (e.g. Synthetic
// Longs on a PB book). Lenient stores return an empty table instead.
var ErrIncompatibleBalanceType = errors.New("balance type is not compatible with the selected sub-business")

// Scope holds the parameters shared by every metric query: which clients,
// which dates, and how to group the result. An empty ClientIDs list means
// the whole client universe.
type Scope struct {
	ClientIDs   []string
	StartDate   time.Time
	EndDate     time.Time
	Granularity Granularity
}

// Validate checks the scope's structural invariants.
func (s Scope) Validate() error {
	if s.StartDate.After(s.EndDate) {
		return fmt.Errorf("start date %s after end date %s",
			s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"))
	}
	return s.Granularity.Validate()
}

// RevenueQuery fetches revenue flows. Revenues support region,
// financing/execution, and primary/secondary filters but not country or
// balance-type filters.
type RevenueQuery struct {
	Scope
	Regions            []string
	Business           string // may be the "Equities" umbrella
	SubBusiness        string
	FinOrExec          []string // "Financing" / "Execution"
	PrimaryOrSecondary []string // "Primary" / "Secondary"
}

// BalanceQuery fetches balances. Balances additionally support country and
// balance-type filters.
type BalanceQuery struct {
	Scope
	Regions     []string
	Countries   []string
	Business    string
	SubBusiness string
	BalanceType string
}

// CapitalQuery fetches a capital metric (RWA, balance sheet, GSIB points,
// attributed equity). Capital supports only business and sub-business
// filters: no region, country, or balance-type dimension exists for it.
type CapitalQuery struct {
	Scope
	Metric      string // one of knowledge.Base.CapitalMetrics
	Business    string
	SubBusiness string
}

// Store is the data-fetch collaborator: one method per metric kind. A
// structurally valid query that matches no rows returns an empty table,
// never an error.
type Store interface {
	Revenues(ctx context.Context, q RevenueQuery) (*table.Table, error)
	Balances(ctx context.Context, q BalanceQuery) (*table.Table, error)
	// BalancesDecomposition breaks balance movement over the range into
	// start/end levels and total/MTM/activity deltas.
	BalancesDecomposition(ctx context.Context, q BalanceQuery) (*table.Table, error)
	Capital(ctx context.Context, q CapitalQuery) (*table.Table, error)
}
