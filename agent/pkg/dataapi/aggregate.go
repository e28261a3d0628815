package dataapi

import (
	"sort"
	"strings"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/table"
)

type aggKind int

const (
	aggSum aggKind = iota
	aggMean
)

// rowColumnName maps a row dimension to its output column name.
func rowColumnName(d Dimension) string {
	if d == DimClient {
		return "client_id"
	}
	return string(d)
}

func dimValue(r record, d Dimension) string {
	switch d {
	case DimClient:
		return r.clientID
	case DimDate:
		return r.date.Format("2006-01-02")
	case DimBusiness:
		return r.business
	case DimSubBusiness:
		return r.subBusiness
	case DimRegion:
		return r.region
	case DimCountry:
		return r.country
	case DimBalanceType:
		return r.balanceType
	case DimFinOrExec:
		return r.finOrExec
	case DimPrimaryOrSecondary:
		return r.primaryOrSecondary
	default:
		return ""
	}
}

// aggregate groups records by the row dimensions, pivots the column
// dimensions into one value column per distinct combination, and reduces
// values with the given aggregation. Output rows are sorted by their row
// keys; pivot columns are sorted by combination name. With aggregate row
// granularity a single total row is produced.
func aggregate(records []record, metric string, kind aggKind, g Granularity) *table.Table {
	rowDims := g.Rows
	if g.Aggregate() {
		rowDims = nil
	}
	var colDims []Dimension
	if len(g.Cols) > 0 && !(len(g.Cols) == 1 && g.Cols[0] == DimAggregate) {
		colDims = g.Cols
	}

	type cell struct {
		sum   float64
		count int
	}
	const sep = "\x1f"

	// rowKey -> colName -> accumulated cell
	cells := make(map[string]map[string]*cell)
	rowKeys := []string{}
	colNames := map[string]bool{}

	for _, r := range records {
		rowParts := make([]string, len(rowDims))
		for i, d := range rowDims {
			rowParts[i] = dimValue(r, d)
		}
		rowKey := strings.Join(rowParts, sep)

		colName := metric
		if len(colDims) > 0 {
			colParts := make([]string, len(colDims))
			for i, d := range colDims {
				colParts[i] = dimValue(r, d)
			}
			colName = strings.Join(colParts, " / ")
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
		c.sum += r.value
		c.count++
		colNames[colName] = true
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
	if len(records) == 0 {
		return out
	}

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
			if kind == aggMean {
				v = c.sum / float64(c.count)
			}
			row[colName] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
