package dataapi

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/table"
)

// MemStore is a deterministic in-memory Store used for development and
// tests. It synthesizes plausible daily records on demand, seeded from the
// query itself, so identical queries always return identical tables.
type MemStore struct {
	kb     *knowledge.Base
	strict bool
	log    *slog.Logger
}

// MemStoreOption configures a MemStore.
type MemStoreOption func(*MemStore)

// WithStrictBalanceTypes makes incompatible balance-type/sub-business
// combinations return ErrIncompatibleBalanceType instead of an empty table.
func WithStrictBalanceTypes() MemStoreOption {
	return func(s *MemStore) { s.strict = true }
}

// NewMemStore creates a deterministic in-memory store.
func NewMemStore(kb *knowledge.Base, logger *slog.Logger, opts ...MemStoreOption) *MemStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &MemStore{kb: kb, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record is one synthesized daily line item.
type record struct {
	date               time.Time
	clientID           string
	business           string
	subBusiness        string
	region             string
	country            string
	finOrExec          string
	primaryOrSecondary string
	balanceType        string
	value              float64
}

func seedFor(parts ...any) int64 {
	h := fnv.New64a()
	fmt.Fprint(h, parts...)
	return int64(h.Sum64())
}

// Revenues implements Store. Revenue values aggregate by sum.
func (s *MemStore) Revenues(ctx context.Context, q RevenueQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seedFor("revenues", fmt.Sprintf("%+v", q))))
	records := s.generate(rng, q.Scope, func(r *rand.Rand) float64 {
		return float64(1000 + r.Intn(49000))
	})
	records = filterRecords(records, recordFilter{
		regions:            q.Regions,
		business:           q.Business,
		subBusiness:        q.SubBusiness,
		finOrExec:          q.FinOrExec,
		primaryOrSecondary: q.PrimaryOrSecondary,
	})
	return aggregate(records, "revenues", aggSum, q.Granularity), nil
}

// Balances implements Store. Balance values aggregate by mean: a balance is
// a level, not a flow.
func (s *MemStore) Balances(ctx context.Context, q BalanceQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.BalanceType != "" && q.SubBusiness != "" && !compatibleBalanceType(q.SubBusiness, q.BalanceType) {
		if s.strict {
			return nil, fmt.Errorf("%w: %s with %s", ErrIncompatibleBalanceType, q.BalanceType, q.SubBusiness)
		}
		s.log.Warn("incompatible balance type for sub-business, returning empty table",
			"balance_type", q.BalanceType, "subbusiness", q.SubBusiness)
		return table.New("balances"), nil
	}

	rng := rand.New(rand.NewSource(seedFor("balances", fmt.Sprintf("%+v", q))))
	records := s.generate(rng, q.Scope, func(r *rand.Rand) float64 {
		return float64(100000 + r.Intn(4900000))
	})
	records = filterRecords(records, recordFilter{
		regions:     q.Regions,
		countries:   q.Countries,
		business:    q.Business,
		subBusiness: q.SubBusiness,
		balanceType: q.BalanceType,
	})
	return aggregate(records, "balances", aggMean, q.Granularity), nil
}

// BalancesDecomposition implements Store: the balance movement over the
// range split into start/end levels and total/MTM/activity deltas.
func (s *MemStore) BalancesDecomposition(ctx context.Context, q BalanceQuery) (*table.Table, error) {
	base, err := s.Balances(ctx, q)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seedFor("balances_decomposition", fmt.Sprintf("%+v", q))))

	out := table.New()
	for _, c := range base.Columns {
		if c == "balances" {
			out.Columns = append(out.Columns,
				"Balance.Start", "Balance.End",
				"Balance.Delta.Total", "Balance.Delta.MTM", "Balance.Delta.Activity")
			continue
		}
		out.Columns = append(out.Columns, c)
	}

	for _, row := range base.Rows {
		end := table.Float(row, "balances")
		start := end * (1 + (rng.Float64()*0.4 - 0.2))
		deltaTotal := end - start
		mtm := deltaTotal * (0.3 + rng.Float64()*0.4)
		dup := make(map[string]any, len(row)+4)
		for k, v := range row {
			if k == "balances" {
				continue
			}
			dup[k] = v
		}
		dup["Balance.Start"] = start
		dup["Balance.End"] = end
		dup["Balance.Delta.Total"] = deltaTotal
		dup["Balance.Delta.MTM"] = mtm
		dup["Balance.Delta.Activity"] = deltaTotal - mtm
		out.Rows = append(out.Rows, dup)
	}
	return out, nil
}

// Capital implements Store. Capital metrics aggregate by sum and carry no
// region/country dimension.
func (s *MemStore) Capital(ctx context.Context, q CapitalQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	known := false
	for _, m := range s.kb.CapitalMetrics {
		if m == q.Metric {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown capital metric %q", q.Metric)
	}

	rng := rand.New(rand.NewSource(seedFor("capital", fmt.Sprintf("%+v", q))))
	records := s.generate(rng, q.Scope, capitalValueFn(q.Metric))
	records = filterRecords(records, recordFilter{
		business:    q.Business,
		subBusiness: q.SubBusiness,
	})
	return aggregate(records, q.Metric, aggSum, q.Granularity), nil
}

// capitalValueFn picks a plausible value range per capital metric family.
func capitalValueFn(metric string) func(*rand.Rand) float64 {
	switch {
	case strings.Contains(metric, "RWA"):
		return func(r *rand.Rand) float64 { return float64(100000 + r.Intn(4900000)) }
	case strings.Contains(metric, "Balance Sheet"):
		return func(r *rand.Rand) float64 { return float64(1000000 + r.Intn(19000000)) }
	case strings.Contains(metric, "GSIB"):
		return func(r *rand.Rand) float64 { return float64(10 + r.Intn(990)) }
	default:
		return func(r *rand.Rand) float64 { return float64(50000 + r.Intn(1950000)) }
	}
}

// generate synthesizes 1-3 line items per client per day across the range.
func (s *MemStore) generate(rng *rand.Rand, scope Scope, value func(*rand.Rand) float64) []record {
	clients := scope.ClientIDs
	if len(clients) == 0 {
		clients = s.kb.AllClientIDs()
	}

	var records []record
	for d := scope.StartDate; !d.After(scope.EndDate); d = d.AddDate(0, 0, 1) {
		for _, clientID := range clients {
			n := 1 + rng.Intn(3)
			for i := 0; i < n; i++ {
				subBusiness := pick(rng, s.kb.SubBusinesses)
				region := pick(rng, s.kb.Regions)
				records = append(records, record{
					date:               d,
					clientID:           clientID,
					business:           pick(rng, s.kb.Businesses),
					subBusiness:        subBusiness,
					region:             region,
					country:            pick(rng, s.kb.CountriesByRegion[region]),
					finOrExec:          pick(rng, []string{"Financing", "Execution"}),
					primaryOrSecondary: pick(rng, []string{"Primary", "Secondary"}),
					balanceType:        pick(rng, knowledge.CompatibleBalanceTypes(subBusiness)),
					value:              value(rng),
				})
			}
		}
	}
	return records
}

func pick(rng *rand.Rand, values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[rng.Intn(len(values))]
}

type recordFilter struct {
	regions            []string
	countries          []string
	business           string
	subBusiness        string
	balanceType        string
	finOrExec          []string
	primaryOrSecondary []string
}

func filterRecords(records []record, f recordFilter) []record {
	out := records[:0]
	for _, r := range records {
		if len(f.regions) > 0 && !containsStr(f.regions, r.region) {
			continue
		}
		if len(f.countries) > 0 && !containsStr(f.countries, r.country) {
			continue
		}
		if f.business != "" && !businessMatches(f.business, r.business) {
			continue
		}
		if f.subBusiness != "" && r.subBusiness != f.subBusiness {
			continue
		}
		if f.balanceType != "" && r.balanceType != f.balanceType {
			continue
		}
		if len(f.finOrExec) > 0 && !containsStr(f.finOrExec, r.finOrExec) {
			continue
		}
		if len(f.primaryOrSecondary) > 0 && !containsStr(f.primaryOrSecondary, r.primaryOrSecondary) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// businessMatches honors the "Equities" umbrella covering Prime and
// Equities Ex Prime.
func businessMatches(filter, business string) bool {
	if filter == "Equities" {
		return business == "Prime" || business == "Equities Ex Prime"
	}
	return business == filter
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func compatibleBalanceType(subBusiness, balanceType string) bool {
	return containsStr(knowledge.CompatibleBalanceTypes(subBusiness), balanceType)
}
