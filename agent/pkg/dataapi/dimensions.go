// Package dataapi defines the metric query surface: grouping dimensions,
// granularity validation, per-metric query types, and the Store
// implementations that serve them.
package dataapi

import (
	"fmt"
	"strings"
)

// Dimension is a grouping dimension for result tables.
type Dimension string

const (
	// DimAggregate collapses the result to a single total row. It is
	// exclusive: it cannot be combined with any other dimension.
	DimAggregate Dimension = "aggregate"

	DimClient             Dimension = "client"
	DimDate               Dimension = "date"
	DimBusiness           Dimension = "business"
	DimSubBusiness        Dimension = "subbusiness"
	DimRegion             Dimension = "region"
	DimCountry            Dimension = "country"
	DimBalanceType        Dimension = "balance_type"
	DimFinOrExec          Dimension = "fin_or_exec"
	DimPrimaryOrSecondary Dimension = "primary_or_secondary"
)

// rowOnlyDimensions may never appear as column dimensions: pivoting on
// per-client or per-date values would explode column counts.
var rowOnlyDimensions = map[Dimension]bool{
	DimClient: true,
	DimDate:   true,
}

// Granularity is the grouping specification of a query: 1-2 ordered row
// dimensions and optionally 1-2 ordered column (pivot) dimensions.
type Granularity struct {
	Rows []Dimension `json:"rows"`
	Cols []Dimension `json:"cols,omitempty"`
}

// Aggregate reports whether the row list is the single aggregate sentinel.
func (g Granularity) Aggregate() bool {
	return len(g.Rows) == 1 && g.Rows[0] == DimAggregate
}

// ValidationError reports which structural rule a granularity specification
// violated and the offending values.
type ValidationError struct {
	Field  string // "row_granularity" or "col_granularity"
	Reason string
	Values []Dimension
}

func (e *ValidationError) Error() string {
	vals := make([]string, len(e.Values))
	for i, v := range e.Values {
		vals[i] = string(v)
	}
	return fmt.Sprintf("invalid %s: %s (%s)", e.Field, e.Reason, strings.Join(vals, ", "))
}

// Validate checks the granularity against its structural rules, in order,
// first failure wins:
//  1. rows has 1-2 elements with no duplicates
//  2. "aggregate" in rows is exclusive
//  3. cols, if present, has 1-2 elements with no duplicates
//  4. "aggregate" in cols is exclusive
//  5. rows and cols share no dimension
//  6. cols excludes the row-only dimensions (client, date)
func (g Granularity) Validate() error {
	if len(g.Rows) < 1 || len(g.Rows) > 2 {
		return &ValidationError{Field: "row_granularity", Reason: "must have 1 or 2 dimensions", Values: g.Rows}
	}
	if d, ok := firstDuplicate(g.Rows); ok {
		return &ValidationError{Field: "row_granularity", Reason: "duplicate dimension", Values: []Dimension{d}}
	}
	if containsDim(g.Rows, DimAggregate) && len(g.Rows) != 1 {
		return &ValidationError{Field: "row_granularity", Reason: "aggregate cannot be combined with other dimensions", Values: g.Rows}
	}
	if len(g.Cols) > 0 {
		if len(g.Cols) > 2 {
			return &ValidationError{Field: "col_granularity", Reason: "must have 1 or 2 dimensions", Values: g.Cols}
		}
		if d, ok := firstDuplicate(g.Cols); ok {
			return &ValidationError{Field: "col_granularity", Reason: "duplicate dimension", Values: []Dimension{d}}
		}
		if containsDim(g.Cols, DimAggregate) && len(g.Cols) != 1 {
			return &ValidationError{Field: "col_granularity", Reason: "aggregate cannot be combined with other dimensions", Values: g.Cols}
		}
		if overlap := intersectDims(g.Rows, g.Cols); len(overlap) > 0 {
			return &ValidationError{Field: "col_granularity", Reason: "dimension appears in both row and column granularity", Values: overlap}
		}
		for _, d := range g.Cols {
			if rowOnlyDimensions[d] {
				return &ValidationError{Field: "col_granularity", Reason: "dimension is row-only", Values: []Dimension{d}}
			}
		}
	}
	return nil
}

func firstDuplicate(dims []Dimension) (Dimension, bool) {
	seen := make(map[Dimension]bool, len(dims))
	for _, d := range dims {
		if seen[d] {
			return d, true
		}
		seen[d] = true
	}
	return "", false
}

func containsDim(dims []Dimension, target Dimension) bool {
	for _, d := range dims {
		if d == target {
			return true
		}
	}
	return false
}

func intersectDims(a, b []Dimension) []Dimension {
	inA := make(map[Dimension]bool, len(a))
	for _, d := range a {
		inA[d] = true
	}
	var out []Dimension
	for _, d := range b {
		if inA[d] {
			out = append(out, d)
		}
	}
	return out
}

// Dimensions converts a string list into dimensions without validation.
func Dimensions(names []string) []Dimension {
	if len(names) == 0 {
		return nil
	}
	out := make([]Dimension, len(names))
	for i, n := range names {
		out[i] = Dimension(strings.ToLower(strings.TrimSpace(n)))
	}
	return out
}
