// Package resolve turns free-text entity, vocabulary, and date-range input
// into canonical identifiers and concrete dates.
package resolve

// DefaultThreshold is the acceptance score below which a match is dropped.
// Scores are on a 0-100 scale; 80 balances false-accepts against
// false-rejects for the typo rates seen in real queries.
const DefaultThreshold = 80

// Match is a scored candidate.
type Match struct {
	Candidate string
	Score     int // 0-100
}

// Matcher finds the best-scoring candidate for a query string. Both fuzzy
// edit-distance matching and embedding-based semantic matching implement
// this; resolvers apply the acceptance threshold themselves.
type Matcher interface {
	// BestMatch returns the highest-scoring candidate. ok is false only
	// when candidates is empty or matching is impossible (e.g. the
	// embedding backend is down).
	BestMatch(query string, candidates []string) (match Match, ok bool)
}
