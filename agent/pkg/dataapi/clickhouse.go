package dataapi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"golang.org/x/sync/errgroup"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/table"
)

// CHStore is the production Store backed by ClickHouse fact tables. It
// pushes filtering and aggregation to the server, then pivots column
// dimensions client-side, so its result shape matches MemStore exactly.
//
// Fact tables (fact_revenues, fact_balances, fact_capital) share the
// dimension columns date, client_id, business, subbusiness, region,
// country, fin_or_exec, primary_or_secondary, balance_type plus a Float64
// value column; fact_capital additionally has a metric column.
type CHStore struct {
	conn   driver.Conn
	strict bool
	log    *slog.Logger
}

// CHStoreOption configures a CHStore.
type CHStoreOption func(*CHStore)

// WithStrictBalanceTypesCH makes incompatible balance-type/sub-business
// combinations return ErrIncompatibleBalanceType instead of an empty table.
func WithStrictBalanceTypesCH() CHStoreOption {
	return func(s *CHStore) { s.strict = true }
}

// NewCHStore creates a ClickHouse-backed store over an open connection.
func NewCHStore(conn driver.Conn, logger *slog.Logger, opts ...CHStoreOption) *CHStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &CHStore{conn: conn, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revenues implements Store.
func (s *CHStore) Revenues(ctx context.Context, q RevenueQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	f := chFilters{
		clientIDs:          q.ClientIDs,
		regions:            q.Regions,
		business:           q.Business,
		subBusiness:        q.SubBusiness,
		finOrExec:          q.FinOrExec,
		primaryOrSecondary: q.PrimaryOrSecondary,
	}
	return s.fetch(ctx, "fact_revenues", "revenues", aggSum, q.Scope, f)
}

// Balances implements Store.
func (s *CHStore) Balances(ctx context.Context, q BalanceQuery) (*table.Table, error) {
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
	f := chFilters{
		clientIDs:   q.ClientIDs,
		regions:     q.Regions,
		countries:   q.Countries,
		business:    q.Business,
		subBusiness: q.SubBusiness,
		balanceType: q.BalanceType,
	}
	return s.fetch(ctx, "fact_balances", "balances", aggMean, q.Scope, f)
}

// BalancesDecomposition implements Store. Start and end levels come from
// the first and last day of the range; the MTM component is the
// mark-to-market movement column aggregated over the range, activity is
// the remainder.
func (s *CHStore) BalancesDecomposition(ctx context.Context, q BalanceQuery) (*table.Table, error) {
	base, err := s.Balances(ctx, q)
	if err != nil {
		return nil, err
	}
	if base.Empty() {
		return table.New(append(dimColumns(q.Granularity),
			"Balance.Start", "Balance.End",
			"Balance.Delta.Total", "Balance.Delta.MTM", "Balance.Delta.Activity")...), nil
	}

	startQ := q
	startQ.EndDate = q.StartDate

	// The start-level and MTM fetches are independent of each other.
	var startTbl, mtmTbl *table.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		startTbl, err = s.Balances(gctx, startQ)
		return err
	})
	g.Go(func() error {
		var err error
		mtmTbl, err = s.fetch(gctx, "fact_balance_mtm", "mtm", aggSum, q.Scope, chFilters{
			clientIDs:   q.ClientIDs,
			regions:     q.Regions,
			countries:   q.Countries,
			business:    q.Business,
			subBusiness: q.SubBusiness,
			balanceType: q.BalanceType,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keyCols := dimColumns(q.Granularity)
	startByKey := indexByKey(startTbl, keyCols, "balances")
	mtmByKey := indexByKey(mtmTbl, keyCols, "mtm")

	out := table.New(append(keyCols,
		"Balance.Start", "Balance.End",
		"Balance.Delta.Total", "Balance.Delta.MTM", "Balance.Delta.Activity")...)
	for _, row := range base.Rows {
		key := rowKeyOf(row, keyCols)
		end := table.Float(row, "balances")
		start := startByKey[key]
		deltaTotal := end - start
		mtm := mtmByKey[key]
		dup := make(map[string]any, len(keyCols)+5)
		for _, c := range keyCols {
			dup[c] = row[c]
		}
		if v, ok := row["client_name"]; ok {
			dup["client_name"] = v
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

// Capital implements Store.
func (s *CHStore) Capital(ctx context.Context, q CapitalQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	f := chFilters{
		clientIDs:   q.ClientIDs,
		business:    q.Business,
		subBusiness: q.SubBusiness,
		metric:      q.Metric,
	}
	return s.fetch(ctx, "fact_capital", q.Metric, aggSum, q.Scope, f)
}

type chFilters struct {
	clientIDs          []string
	regions            []string
	countries          []string
	business           string
	subBusiness        string
	balanceType        string
	finOrExec          []string
	primaryOrSecondary []string
	metric             string
}

// chColumn maps a dimension to its fact-table column.
func chColumn(d Dimension) string {
	if d == DimClient {
		return "client_id"
	}
	if d == DimDate {
		return "toString(date)"
	}
	return string(d)
}

// fetch builds and runs the grouped aggregate query, then pivots the
// column dimensions into the shared result shape.
func (s *CHStore) fetch(ctx context.Context, tableName, metric string, kind aggKind, scope Scope, f chFilters) (*table.Table, error) {
	var rowDims, colDims []Dimension
	if !scope.Granularity.Aggregate() {
		rowDims = scope.Granularity.Rows
	}
	if len(scope.Granularity.Cols) > 0 && !(len(scope.Granularity.Cols) == 1 && scope.Granularity.Cols[0] == DimAggregate) {
		colDims = scope.Granularity.Cols
	}
	groupDims := append(append([]Dimension{}, rowDims...), colDims...)

	var sel, group []string
	for _, d := range groupDims {
		sel = append(sel, fmt.Sprintf("%s AS %s", chColumn(d), string(d)))
		group = append(group, string(d))
	}
	sel = append(sel, "sum(value) AS value_sum", "count() AS value_count")

	where := []string{"date >= ?", "date <= ?"}
	args := []any{scope.StartDate.Format(time.DateOnly), scope.EndDate.Format(time.DateOnly)}
	addIn := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		ph := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		where = append(where, fmt.Sprintf("%s IN (%s)", col, ph))
		for _, v := range vals {
			args = append(args, v)
		}
	}
	addIn("client_id", f.clientIDs)
	addIn("region", f.regions)
	addIn("country", f.countries)
	addIn("fin_or_exec", f.finOrExec)
	addIn("primary_or_secondary", f.primaryOrSecondary)
	if f.business == "Equities" {
		where = append(where, "business IN (?, ?)")
		args = append(args, "Prime", "Equities Ex Prime")
	} else if f.business != "" {
		where = append(where, "business = ?")
		args = append(args, f.business)
	}
	if f.subBusiness != "" {
		where = append(where, "subbusiness = ?")
		args = append(args, f.subBusiness)
	}
	if f.balanceType != "" {
		where = append(where, "balance_type = ?")
		args = append(args, f.balanceType)
	}
	if f.metric != "" {
		where = append(where, "metric = ?")
		args = append(args, f.metric)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(sel, ", "), tableName, strings.Join(where, " AND "))
	if len(group) > 0 {
		sql += " GROUP BY " + strings.Join(group, ", ")
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query failed: %w", err)
	}
	defer rows.Close()

	type cell struct {
		sum   float64
		count uint64
	}
	const sep = "\x1f"
	cells := make(map[string]map[string]*cell)
	var rowKeys []string
	colNames := map[string]bool{}

	for rows.Next() {
		dimVals := make([]string, len(groupDims))
		dest := make([]any, 0, len(groupDims)+2)
		for i := range dimVals {
			dest = append(dest, &dimVals[i])
		}
		var sum float64
		var count uint64
		dest = append(dest, &sum, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("clickhouse scan failed: %w", err)
		}

		rowKey := strings.Join(dimVals[:len(rowDims)], sep)
		colName := metric
		if len(colDims) > 0 {
			colName = strings.Join(dimVals[len(rowDims):], " / ")
		}

		byCol, ok := cells[rowKey]
		if !ok {
			byCol = make(map[string]*cell)
			cells[rowKey] = byCol
			rowKeys = append(rowKeys, rowKey)
		}
		c, ok := byCol[colName]
		if !ok {
			c = &cell{}
			byCol[colName] = c
		}
		c.sum += sum
		c.count += count
		colNames[colName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows failed: %w", err)
	}

	sort.Strings(rowKeys)
	valueCols := make([]string, 0, len(colNames))
	for name := range colNames {
		valueCols = append(valueCols, name)
	}
	sort.Strings(valueCols)
	if len(valueCols) == 0 {
		valueCols = []string{metric}
	}

	columns := make([]string, 0, len(rowDims)+len(valueCols)+1)
	for _, d := range rowDims {
		columns = append(columns, rowColumnName(d))
	}
	withClientName := containsDim(rowDims, DimClient)
	if withClientName {
		columns = append(columns, "client_name")
	}
	columns = append(columns, valueCols...)

	out := table.New(columns...)
	for _, rowKey := range rowKeys {
		parts := strings.Split(rowKey, sep)
		row := make(map[string]any, len(columns))
		for i, d := range rowDims {
			row[rowColumnName(d)] = parts[i]
			if d == DimClient {
				row["client_name"] = knowledge.ClientDisplayName(parts[i])
			}
		}
		for _, colName := range valueCols {
			c, ok := cells[rowKey][colName]
			if !ok {
				continue
			}
			v := c.sum
			if kind == aggMean && c.count > 0 {
				v = c.sum / float64(c.count)
			}
			row[colName] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// dimColumns returns the key column names of a granularity's row dims.
func dimColumns(g Granularity) []string {
	if g.Aggregate() {
		return nil
	}
	out := make([]string, 0, len(g.Rows))
	for _, d := range g.Rows {
		out = append(out, rowColumnName(d))
	}
	return out
}

func rowKeyOf(row map[string]any, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		parts[i] = fmt.Sprint(row[c])
	}
	return strings.Join(parts, "\x1f")
}

func indexByKey(t *table.Table, keyCols []string, valueCol string) map[string]float64 {
	out := make(map[string]float64, t.NumRows())
	for _, row := range t.Rows {
		out[rowKeyOf(row, keyCols)] = table.Float(row, valueCol)
	}
	return out
}
