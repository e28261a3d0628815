package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestDateResolver(now time.Time, opts ...DateRangeResolverOption) *DateRangeResolver {
	return NewDateRangeResolver(clockwork.NewFakeClockAt(now), nil, opts...)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDates(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	r := newTestDateResolver(now)

	tests := []struct {
		text      string
		wantStart time.Time
		wantEnd   time.Time
	}{
		// Fiscal years span Oct 1 of the prior year through Sep 30.
		{"fy'25", day(2024, time.October, 1), day(2025, time.September, 30)},
		{"FY2024", day(2023, time.October, 1), day(2024, time.September, 30)},
		// Quarters.
		{"q1 2024", day(2024, time.January, 1), day(2024, time.March, 31)},
		{"qtr 2 2024", day(2024, time.April, 1), day(2024, time.June, 30)},
		{"q4'23", day(2023, time.October, 1), day(2023, time.December, 31)},
		// Bare year.
		{"2023", day(2023, time.January, 1), day(2023, time.December, 31)},
		{"revenues for 2022 please", day(2022, time.January, 1), day(2022, time.December, 31)},
		// Relative terms recurse through the literal-year rule.
		{"last year", day(2024, time.January, 1), day(2024, time.December, 31)},
		{"this year", day(2025, time.January, 1), day(2025, time.December, 31)},
		// A month with a four-digit 20xx year is swallowed by the earlier
		// bare-year rule; the cascade order is strict.
		{"january 2024", day(2024, time.January, 1), day(2024, time.December, 31)},
		// Free-form single date (no 20xx year) widens to the whole month.
		{"march 1999", day(1999, time.March, 1), day(1999, time.March, 31)},
		{"Jan 5, 1998", day(1998, time.January, 1), day(1998, time.January, 31)},
		// Unparseable input defaults to year-to-date.
		{"whenever things were good", day(2025, time.January, 1), day(2025, time.June, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			start, end := r.Resolve(context.Background(), tt.text)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("Resolve(%q) = (%s, %s), want (%s, %s)",
					tt.text, start.Format("2006-01-02"), end.Format("2006-01-02"),
					tt.wantStart.Format("2006-01-02"), tt.wantEnd.Format("2006-01-02"))
			}
			if start.After(end) {
				t.Errorf("Resolve(%q): start %s after end %s", tt.text, start, end)
			}
		})
	}
}

func TestResolveDatesCascadePrecedence(t *testing.T) {
	r := newTestDateResolver(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	// "q1 2024" contains a bare four-digit year but must resolve via the
	// earlier quarter rule.
	start, end := r.Resolve(context.Background(), "q1 2024")
	if !start.Equal(day(2024, time.January, 1)) || !end.Equal(day(2024, time.March, 31)) {
		t.Errorf("quarter rule did not win: (%s, %s)", start, end)
	}

	// "fy2024" contains a year too but must resolve via the fiscal rule.
	start, end = r.Resolve(context.Background(), "fy2024")
	if !start.Equal(day(2023, time.October, 1)) {
		t.Errorf("fiscal rule did not win: start %s", start)
	}
}

func TestResolveDatesRelativeYearIdempotence(t *testing.T) {
	for _, now := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
	} {
		r := newTestDateResolver(now)
		gotStart, gotEnd := r.Resolve(context.Background(), "last year")
		wantStart, wantEnd := r.Resolve(context.Background(), fmt.Sprint(now.Year()-1))
		if !gotStart.Equal(wantStart) || !gotEnd.Equal(wantEnd) {
			t.Errorf("at %s: last year = (%s, %s), want (%s, %s)", now, gotStart, gotEnd, wantStart, wantEnd)
		}
	}
}

type stubDateParser struct {
	start, end time.Time
	err        error
	calls      int
}

func (p *stubDateParser) ParseDateRange(_ context.Context, _ string) (time.Time, time.Time, error) {
	p.calls++
	return p.start, p.end, p.err
}

func TestResolveDatesFallbackParser(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	parser := &stubDateParser{start: day(2024, time.November, 25), end: day(2024, time.December, 2)}
	r := newTestDateResolver(now, WithFallbackParser(parser))

	start, end := r.Resolve(context.Background(), "the week of thanksgiving")
	if parser.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", parser.calls)
	}
	if !start.Equal(parser.start) || !end.Equal(parser.end) {
		t.Errorf("fallback range = (%s, %s)", start, end)
	}

	// Deterministic patterns must not reach the fallback.
	r.Resolve(context.Background(), "q1 2024")
	if parser.calls != 1 {
		t.Errorf("fallback called for deterministic input")
	}
}

func TestResolveDatesFallbackErrorUsesDefault(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	parser := &stubDateParser{err: errors.New("model unavailable")}
	r := newTestDateResolver(now, WithFallbackParser(parser))

	start, end := r.Resolve(context.Background(), "some era")
	if !start.Equal(day(2025, time.January, 1)) || !end.Equal(day(2025, time.June, 15)) {
		t.Errorf("default range = (%s, %s)", start, end)
	}
}
