package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

const embedTimeout = 5 * time.Second

// SemanticMatcher scores candidates by cosine similarity of embedding
// vectors fetched from an HTTP embedding endpoint (Ollama-style /api/embed).
// Candidate vectors are computed once and cached for the process lifetime,
// so repeated resolution against the same vocabulary only embeds the query.
//
// Safe for concurrent use. If the embedding backend is unavailable,
// BestMatch reports ok=false and callers fall back to the fuzzy matcher.
type SemanticMatcher struct {
	url    string
	model  string
	client *http.Client
	log    *slog.Logger

	mu      sync.RWMutex
	vectors map[string][]float32 // candidate -> unit-normalized vector
}

// NewSemanticMatcher creates a matcher against an embedding endpoint.
func NewSemanticMatcher(url, model string, logger *slog.Logger) *SemanticMatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SemanticMatcher{
		url:     url,
		model:   model,
		client:  &http.Client{Timeout: embedTimeout},
		log:     logger,
		vectors: make(map[string][]float32),
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// BestMatch implements Matcher. Cosine similarity is mapped onto the shared
// 0-100 score scale.
func (m *SemanticMatcher) BestMatch(query string, candidates []string) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
	defer cancel()

	qv, err := m.vector(ctx, strings.ToLower(strings.TrimSpace(query)))
	if err != nil {
		m.log.Warn("embedding query failed", "error", err)
		return Match{}, false
	}

	best := Match{Score: -1}
	for _, c := range candidates {
		cv, err := m.vector(ctx, strings.ToLower(c))
		if err != nil {
			m.log.Warn("embedding candidate failed", "candidate", c, "error", err)
			continue
		}
		score := int(cosine(qv, cv) * 100)
		if score > best.Score {
			best = Match{Candidate: c, Score: score}
		}
	}
	if best.Score < 0 {
		return Match{}, false
	}
	return best, true
}

// vector returns the unit-normalized embedding for text, caching it.
func (m *SemanticMatcher) vector(ctx context.Context, text string) ([]float32, error) {
	m.mu.RLock()
	v, ok := m.vectors[text]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	body, err := json.Marshal(embedRequest{Model: m.model, Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed endpoint returned %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed endpoint returned no vector")
	}

	v = normalize(out.Embeddings[0])
	m.mu.Lock()
	m.vectors[text] = v
	m.mu.Unlock()
	return v, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// cosine of two unit vectors is their dot product.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
