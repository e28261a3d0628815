package resolve

import "strings"

// FuzzyMatcher scores candidates by normalized Levenshtein similarity.
// It is deterministic, dependency-free, and the default matching strategy.
type FuzzyMatcher struct{}

// NewFuzzyMatcher returns the default edit-distance matcher.
func NewFuzzyMatcher() *FuzzyMatcher {
	return &FuzzyMatcher{}
}

// BestMatch implements Matcher. Ties keep the earlier candidate, so callers
// passing sorted candidate lists get deterministic results.
func (m *FuzzyMatcher) BestMatch(query string, candidates []string) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}
	query = strings.ToLower(strings.TrimSpace(query))
	best := Match{Score: -1}
	for _, c := range candidates {
		score := similarity(query, strings.ToLower(c))
		if score > best.Score {
			best = Match{Candidate: c, Score: score}
		}
	}
	return best, true
}

// similarity maps edit distance onto a 0-100 scale:
// 100 * (1 - distance/max(len(a), len(b))).
func similarity(a, b string) int {
	if a == b {
		return 100
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein(a, b)
	return int(float64(longest-d) / float64(longest) * 100)
}

// levenshtein computes edit distance with the classic two-row dynamic
// program over bytes.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
