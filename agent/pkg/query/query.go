// Package query implements the data-fetch tool: it resolves the free-text
// parts of a fetch step (entities, dates, filter vocabularies), validates
// the granularity specification, and dispatches to the metric store. It
// orchestrates only; it never fabricates or post-processes data.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/plan"
	"github.com/quantline/strata/agent/pkg/resolve"
	"github.com/quantline/strata/agent/pkg/table"
)

// Config wires a Tool.
type Config struct {
	KB         *knowledge.Base
	Store      dataapi.Store
	Clock      clockwork.Clock    // nil means real clock
	DateParser resolve.DateParser // optional LLM fallback for date phrasing
	Matcher    resolve.Matcher    // optional entity matcher override
	Logger     *slog.Logger
}

// Tool executes fetch steps.
type Tool struct {
	kb            *knowledge.Base
	store         dataapi.Store
	entities      *resolve.EntityResolver
	dates         *resolve.DateRangeResolver
	regions       *resolve.VocabResolver
	countries     *resolve.VocabResolver
	subBusinesses *resolve.VocabResolver
	log           *slog.Logger
}

// New creates a Tool over the given knowledge base and store.
func New(cfg Config) *Tool {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	var entityOpts []resolve.EntityResolverOption
	if cfg.Matcher != nil {
		entityOpts = append(entityOpts, resolve.WithMatcher(cfg.Matcher))
	}
	var dateOpts []resolve.DateRangeResolverOption
	if cfg.DateParser != nil {
		dateOpts = append(dateOpts, resolve.WithFallbackParser(cfg.DateParser))
	}
	return &Tool{
		kb:            cfg.KB,
		store:         cfg.Store,
		entities:      resolve.NewEntityResolver(cfg.KB, cfg.Logger, entityOpts...),
		dates:         resolve.NewDateRangeResolver(cfg.Clock, cfg.Logger, dateOpts...),
		regions:       resolve.NewVocabResolver("region", cfg.KB.Regions, []string{"global"}, cfg.Logger),
		countries:     resolve.NewVocabResolver("country", cfg.KB.Countries(), []string{"global"}, cfg.Logger),
		subBusinesses: resolve.NewVocabResolver("subbusiness", cfg.KB.SubBusinesses, nil, cfg.Logger),
		log:           cfg.Logger,
	}
}

// metricKind classifies a fetch metric.
type metricKind int

const (
	kindRevenues metricKind = iota
	kindBalances
	kindBalancesDecomposition
	kindCapital
)

// allowedDims lists the grouping dimensions each metric kind supports, on
// top of the universally valid aggregate/client/date.
var allowedDims = map[metricKind]map[dataapi.Dimension]bool{
	kindRevenues: {
		dataapi.DimBusiness: true, dataapi.DimSubBusiness: true, dataapi.DimRegion: true,
		dataapi.DimFinOrExec: true, dataapi.DimPrimaryOrSecondary: true,
	},
	kindBalances: {
		dataapi.DimBusiness: true, dataapi.DimSubBusiness: true, dataapi.DimRegion: true,
		dataapi.DimCountry: true, dataapi.DimBalanceType: true,
	},
	kindBalancesDecomposition: {
		dataapi.DimBusiness: true, dataapi.DimSubBusiness: true, dataapi.DimRegion: true,
		dataapi.DimCountry: true,
	},
	kindCapital: {
		dataapi.DimBusiness: true, dataapi.DimSubBusiness: true,
	},
}

func (t *Tool) metricKindOf(metric string) (metricKind, error) {
	switch metric {
	case "revenues":
		return kindRevenues, nil
	case "balances":
		return kindBalances, nil
	case "balances_decomposition":
		return kindBalancesDecomposition, nil
	}
	for _, m := range t.kb.CapitalMetrics {
		if m == metric {
			return kindCapital, nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", metric)
}

// Execute resolves, validates, and dispatches a fetch step. Any resolution,
// validation, or store failure propagates to the caller; the executor owns
// recovery.
func (t *Tool) Execute(ctx context.Context, op *plan.FetchOp) (*table.Table, error) {
	kind, err := t.metricKindOf(op.Metric)
	if err != nil {
		return nil, err
	}
	if err := checkFilters(kind, op); err != nil {
		return nil, err
	}

	clientIDs := t.entities.Resolve(op.Entities)
	startDate, endDate := t.dates.Resolve(ctx, op.DateDescription)
	t.log.Debug("resolved fetch step",
		"metric", op.Metric, "clients", clientIDs,
		"start", startDate.Format("2006-01-02"), "end", endDate.Format("2006-01-02"))

	granularity := dataapi.Granularity{
		Rows: dataapi.Dimensions(op.RowGranularity),
		Cols: dataapi.Dimensions(op.ColGranularity),
	}
	if err := granularity.Validate(); err != nil {
		return nil, err
	}
	if err := checkDims(kind, granularity); err != nil {
		return nil, err
	}

	scope := dataapi.Scope{
		ClientIDs:   clientIDs,
		StartDate:   startDate,
		EndDate:     endDate,
		Granularity: granularity,
	}
	business, err := t.resolveBusiness(op.Business)
	if err != nil {
		return nil, err
	}
	subBusiness, err := t.resolveSubBusiness(op.SubBusiness)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindRevenues:
		return t.store.Revenues(ctx, dataapi.RevenueQuery{
			Scope:              scope,
			Regions:            t.regions.Resolve(op.Regions),
			Business:           business,
			SubBusiness:        subBusiness,
			FinOrExec:          op.FinOrExec,
			PrimaryOrSecondary: op.PrimaryOrSecondary,
		})
	case kindBalances:
		return t.store.Balances(ctx, dataapi.BalanceQuery{
			Scope:       scope,
			Regions:     t.regions.Resolve(op.Regions),
			Countries:   t.countries.Resolve(op.Countries),
			Business:    business,
			SubBusiness: subBusiness,
			BalanceType: op.BalanceType,
		})
	case kindBalancesDecomposition:
		return t.store.BalancesDecomposition(ctx, dataapi.BalanceQuery{
			Scope:       scope,
			Regions:     t.regions.Resolve(op.Regions),
			Countries:   t.countries.Resolve(op.Countries),
			Business:    business,
			SubBusiness: subBusiness,
		})
	case kindCapital:
		return t.store.Capital(ctx, dataapi.CapitalQuery{
			Scope:       scope,
			Metric:      op.Metric,
			Business:    business,
			SubBusiness: subBusiness,
		})
	default:
		return nil, fmt.Errorf("unhandled metric kind %d", kind)
	}
}

// checkFilters rejects filters that do not exist for the metric kind, so
// the planner gets an actionable error instead of a silently ignored
// parameter.
func checkFilters(kind metricKind, op *plan.FetchOp) error {
	if kind != kindBalances && op.BalanceType != "" {
		return fmt.Errorf("balance_type filter is only valid for the balances metric, not %q", op.Metric)
	}
	if kind != kindRevenues && (len(op.FinOrExec) > 0 || len(op.PrimaryOrSecondary) > 0) {
		return fmt.Errorf("fin_or_exec and primary_or_secondary filters are only valid for the revenues metric, not %q", op.Metric)
	}
	if kind == kindCapital && (len(op.Regions) > 0 || len(op.Countries) > 0) {
		return fmt.Errorf("capital metrics do not support region or country filters")
	}
	if kind == kindRevenues && len(op.Countries) > 0 {
		return fmt.Errorf("country filter is only valid for balance metrics, not %q", op.Metric)
	}
	return nil
}

func checkDims(kind metricKind, g dataapi.Granularity) error {
	universal := map[dataapi.Dimension]bool{
		dataapi.DimAggregate: true, dataapi.DimClient: true, dataapi.DimDate: true,
	}
	for _, d := range append(append([]dataapi.Dimension{}, g.Rows...), g.Cols...) {
		if !universal[d] && !allowedDims[kind][d] {
			return fmt.Errorf("dimension %q is not available for this metric", d)
		}
	}
	return nil
}

// resolveBusiness resolves a business filter. "Equities" is an umbrella
// over Prime and Equities Ex Prime and passes through as-is.
func (t *Tool) resolveBusiness(text string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" {
		return "", nil
	}
	if clean == "equities" {
		return "Equities", nil
	}
	matcher := resolve.NewFuzzyMatcher()
	match, ok := matcher.BestMatch(clean, t.kb.Businesses)
	if !ok || match.Score < resolve.DefaultThreshold {
		return "", fmt.Errorf("unknown business line %q", text)
	}
	return match.Candidate, nil
}

func (t *Tool) resolveSubBusiness(text string) (string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return "", nil
	}
	resolved := t.subBusinesses.Resolve([]string{clean})
	if len(resolved) == 0 {
		return "", fmt.Errorf("unknown sub-business line %q", text)
	}
	return resolved[0], nil
}

// BusinessLines returns the valid business and sub-business vocabularies,
// the payload of the list-business-lines tool.
func (t *Tool) BusinessLines() map[string][]string {
	return map[string][]string{
		"valid_businesses":    t.kb.Businesses,
		"valid_subbusinesses": t.kb.SubBusinesses,
	}
}
