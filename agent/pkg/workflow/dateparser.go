package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// LLMDateParser is the fallback date parser for phrasings the deterministic
// cascade cannot handle. It implements resolve.DateParser.
type LLMDateParser struct {
	llm     LLMClient
	prompts *Prompts
	clock   clockwork.Clock
}

// NewLLMDateParser creates the fallback parser.
func NewLLMDateParser(llm LLMClient, p *Prompts, clock clockwork.Clock) *LLMDateParser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LLMDateParser{llm: llm, prompts: p, clock: clock}
}

type dateRangeResponse struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ParseDateRange asks the model for a concrete range. Dates come back as
// midnight UTC.
func (p *LLMDateParser) ParseDateRange(ctx context.Context, text string) (time.Time, time.Time, error) {
	system := strings.ReplaceAll(p.prompts.DateParser, "{{TODAY}}", p.clock.Now().UTC().Format("2006-01-02"))
	raw, err := p.llm.Complete(ctx, system, text)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date parse failed: %w", err)
	}

	var resp dateRangeResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unparseable date response %q: %w", raw, err)
	}
	start, err := time.Parse("2006-01-02", resp.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start_date %q: %w", resp.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", resp.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end_date %q: %w", resp.EndDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("date range %s..%s is inverted", resp.StartDate, resp.EndDate)
	}
	return start, end, nil
}
