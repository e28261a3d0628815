package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/quantline/strata/agent/pkg/knowledge"
)

// EntityResolver resolves free-text client and group names into canonical
// client IDs. Unmatched tokens are dropped with a warning rather than
// failing the request: a query naming an unknown client degrades to "no
// data for that client".
type EntityResolver struct {
	kb        *knowledge.Base
	matcher   Matcher
	threshold int
	log       *slog.Logger
	names     []string // cached union of client and group names, sorted
}

// EntityResolverOption configures an EntityResolver.
type EntityResolverOption func(*EntityResolver)

// WithMatcher overrides the matching strategy (default fuzzy).
func WithMatcher(m Matcher) EntityResolverOption {
	return func(r *EntityResolver) { r.matcher = m }
}

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold int) EntityResolverOption {
	return func(r *EntityResolver) { r.threshold = threshold }
}

// NewEntityResolver creates a resolver over the given knowledge base.
func NewEntityResolver(kb *knowledge.Base, logger *slog.Logger, opts ...EntityResolverOption) *EntityResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &EntityResolver{
		kb:        kb,
		matcher:   NewFuzzyMatcher(),
		threshold: DefaultThreshold,
		log:       logger,
		names:     kb.EntityNames(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps tokens to a deduplicated, sorted set of canonical client
// IDs. Empty input yields empty output. Group names expand to their
// members; the "all clients" group expands to the full client table.
func (r *EntityResolver) Resolve(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	ids := make(map[string]bool)
	for _, token := range tokens {
		clean := strings.ToLower(strings.TrimSpace(token))
		if clean == "" {
			continue
		}

		match, ok := r.matcher.BestMatch(clean, r.names)
		if !ok || match.Score < r.threshold {
			r.log.Warn("could not confidently match entity, ignoring", "token", token, "score", match.Score)
			continue
		}

		if members, isGroup := r.kb.GroupMembers(match.Candidate); isGroup {
			for _, id := range members {
				ids[id] = true
			}
		} else if id, isClient := r.kb.Clients[match.Candidate]; isClient {
			ids[id] = true
		}
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// VocabResolver resolves free text against a small controlled vocabulary
// (regions, countries, business lines). A designated wildcard token
// short-circuits to the full vocabulary without scoring.
type VocabResolver struct {
	name      string
	values    []string
	wildcards map[string]bool
	matcher   Matcher
	threshold int
	log       *slog.Logger
}

// NewVocabResolver creates a vocabulary resolver. name is used in log
// output only.
func NewVocabResolver(name string, values []string, wildcards []string, logger *slog.Logger) *VocabResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	wc := make(map[string]bool, len(wildcards))
	for _, w := range wildcards {
		wc[strings.ToLower(w)] = true
	}
	return &VocabResolver{
		name:      name,
		values:    values,
		wildcards: wc,
		matcher:   NewFuzzyMatcher(),
		threshold: DefaultThreshold,
		log:       logger,
	}
}

// Resolve maps tokens to canonical vocabulary values, deduplicated in
// vocabulary order. Unmatched tokens are dropped with a warning.
func (r *VocabResolver) Resolve(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	selected := make(map[string]bool)
	for _, token := range tokens {
		clean := strings.ToLower(strings.TrimSpace(token))
		if clean == "" {
			continue
		}
		if r.wildcards[clean] {
			for _, v := range r.values {
				selected[v] = true
			}
			continue
		}

		match, ok := r.matcher.BestMatch(clean, r.values)
		if !ok || match.Score < r.threshold {
			r.log.Warn("could not confidently match value, ignoring", "vocabulary", r.name, "token", token, "score", match.Score)
			continue
		}
		selected[match.Candidate] = true
	}

	var out []string
	for _, v := range r.values {
		if selected[v] {
			out = append(out, v)
		}
	}
	return out
}
