package dataapi

import (
	"errors"
	"strings"
	"testing"
)

func TestGranularityValidate(t *testing.T) {
	tests := []struct {
		name       string
		g          Granularity
		wantErr    bool
		wantField  string
		wantValues string // substring of the error message
	}{
		{
			name: "single row dimension",
			g:    Granularity{Rows: []Dimension{DimClient}},
		},
		{
			name: "two row dimensions",
			g:    Granularity{Rows: []Dimension{DimDate, DimClient}},
		},
		{
			name: "aggregate alone",
			g:    Granularity{Rows: []Dimension{DimAggregate}},
		},
		{
			name: "rows with column pivot",
			g:    Granularity{Rows: []Dimension{DimDate, DimClient}, Cols: []Dimension{DimBusiness, DimRegion}},
		},
		{
			name:      "empty rows",
			g:         Granularity{},
			wantErr:   true,
			wantField: "row_granularity",
		},
		{
			name:      "three row dimensions",
			g:         Granularity{Rows: []Dimension{DimClient, DimBusiness, DimDate}},
			wantErr:   true,
			wantField: "row_granularity",
		},
		{
			name:       "duplicate row dimension",
			g:          Granularity{Rows: []Dimension{DimClient, DimClient}},
			wantErr:    true,
			wantField:  "row_granularity",
			wantValues: "client",
		},
		{
			name:      "aggregate combined with another dimension",
			g:         Granularity{Rows: []Dimension{DimAggregate, DimClient}},
			wantErr:   true,
			wantField: "row_granularity",
		},
		{
			name:      "duplicate column dimension",
			g:         Granularity{Rows: []Dimension{DimClient}, Cols: []Dimension{DimBusiness, DimBusiness}},
			wantErr:   true,
			wantField: "col_granularity",
		},
		{
			name:       "row and column overlap",
			g:          Granularity{Rows: []Dimension{DimClient, DimBusiness}, Cols: []Dimension{DimBusiness, DimRegion}},
			wantErr:    true,
			wantField:  "col_granularity",
			wantValues: "business",
		},
		{
			name:       "client is row-only",
			g:          Granularity{Rows: []Dimension{DimBusiness}, Cols: []Dimension{DimClient}},
			wantErr:    true,
			wantField:  "col_granularity",
			wantValues: "client",
		},
		{
			name:       "date is row-only",
			g:          Granularity{Rows: []Dimension{DimBusiness}, Cols: []Dimension{DimDate}},
			wantErr:    true,
			wantField:  "col_granularity",
			wantValues: "date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
			}
			if tt.wantValues != "" && !strings.Contains(err.Error(), tt.wantValues) {
				t.Errorf("error %q does not name offending value %q", err.Error(), tt.wantValues)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	got := Dimensions([]string{" Client", "DATE"})
	if got[0] != DimClient || got[1] != DimDate {
		t.Errorf("Dimensions = %v", got)
	}
	if Dimensions(nil) != nil {
		t.Error("Dimensions(nil) should be nil")
	}
}
