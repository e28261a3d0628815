package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// DateParser is the expensive fallback for date phrasing the deterministic
// cascade cannot handle. Implemented by an LLM-backed parser; optional.
type DateParser interface {
	ParseDateRange(ctx context.Context, text string) (start, end time.Time, err error)
}

var (
	fiscalYearRe = regexp.MustCompile(`fy'?(\d{2,4})`)
	quarterRe    = regexp.MustCompile(`(?:q|qtr)\s?([1-4])\s?'?(\d{2,4})`)
	bareYearRe   = regexp.MustCompile(`\b(20\d{2})\b`)
)

// monthLayouts are tried in order for free-form single-date phrasing.
var monthLayouts = []string{
	"January 2006",
	"Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"2006-01",
	"01/2006",
}

// DateRangeResolver converts free-text date phrases into concrete
// (start, end) pairs. It tries fast deterministic patterns first and only
// reaches for the fallback parser for genuinely unstructured phrasing.
// Resolution never fails: the final default is January 1 of the current
// year through today.
type DateRangeResolver struct {
	clock    clockwork.Clock
	fallback DateParser
	log      *slog.Logger
}

// DateRangeResolverOption configures a DateRangeResolver.
type DateRangeResolverOption func(*DateRangeResolver)

// WithFallbackParser sets the natural-language fallback parser.
func WithFallbackParser(p DateParser) DateRangeResolverOption {
	return func(r *DateRangeResolver) { r.fallback = p }
}

// NewDateRangeResolver creates a resolver. A nil clock uses the real clock.
func NewDateRangeResolver(clock clockwork.Clock, logger *slog.Logger, opts ...DateRangeResolverOption) *DateRangeResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &DateRangeResolver{clock: clock, log: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the matcher cascade; first match wins. The returned range
// always satisfies start <= end, both at midnight UTC.
func (r *DateRangeResolver) Resolve(ctx context.Context, text string) (time.Time, time.Time) {
	clean := strings.ToLower(strings.TrimSpace(text))

	// Fiscal year: fy'25 / fy2025 spans Oct 1 of the prior calendar year
	// through Sep 30.
	if m := fiscalYearRe.FindStringSubmatch(clean); m != nil {
		year := normalizeYear(m[1])
		return date(year-1, time.October, 1), date(year, time.September, 30)
	}

	// Quarter: q1 2025, qtr 2 '25. Quarter N spans months [3N-2, 3N].
	if m := quarterRe.FindStringSubmatch(clean); m != nil {
		quarter, _ := strconv.Atoi(m[1])
		year := normalizeYear(m[2])
		start := date(year, time.Month((quarter-1)*3+1), 1)
		return start, start.AddDate(0, 3, -1)
	}

	// Bare calendar year.
	if m := bareYearRe.FindStringSubmatch(clean); m != nil {
		year, _ := strconv.Atoi(m[1])
		return date(year, time.January, 1), date(year, time.December, 31)
	}

	// Relative terms recurse with the literal year substituted.
	now := r.clock.Now()
	if strings.Contains(clean, "last year") {
		return r.Resolve(ctx, fmt.Sprint(now.Year()-1))
	}
	if strings.Contains(clean, "this year") {
		return r.Resolve(ctx, fmt.Sprint(now.Year()))
	}

	// Free-form single date widens to the whole containing month: a phrase
	// naming a single day almost always means the month around it.
	if parsed, ok := parseSingleDate(clean); ok {
		start := date(parsed.Year(), parsed.Month(), 1)
		return start, start.AddDate(0, 1, -1)
	}

	if r.fallback != nil {
		start, end, err := r.fallback.ParseDateRange(ctx, text)
		if err == nil && !start.After(end) {
			return midnight(start), midnight(end)
		}
		if err != nil {
			r.log.Warn("fallback date parsing failed", "text", text, "error", err)
		}
	}

	r.log.Warn("could not parse date description, using year-to-date default", "text", text)
	return date(now.Year(), time.January, 1), midnight(now)
}

func parseSingleDate(clean string) (time.Time, bool) {
	titled := titleWords(clean)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, titled); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w[0] >= 'a' && w[0] <= 'z' {
			words[i] = string(w[0]-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// normalizeYear maps two-digit years into the 2000s.
func normalizeYear(s string) int {
	year, _ := strconv.Atoi(s)
	if year < 100 {
		year += 2000
	}
	return year
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func midnight(t time.Time) time.Time {
	return date(t.Year(), t.Month(), t.Day())
}
