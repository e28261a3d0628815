package resolve

import (
	"reflect"
	"testing"

	"github.com/quantline/strata/agent/pkg/knowledge"
)

func newTestEntityResolver(t *testing.T) *EntityResolver {
	t.Helper()
	return NewEntityResolver(knowledge.Default(), nil)
}

func TestResolveEntities(t *testing.T) {
	r := newTestEntityResolver(t)

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{
			name:   "simple lookup",
			tokens: []string{"millennium"},
			want:   []string{"cl_id_millennium"},
		},
		{
			name:   "typo handling",
			tokens: []string{"pont 72"},
			want:   []string{"cl_id_point72"},
		},
		{
			name:   "case and whitespace insensitive group expansion",
			tokens: []string{"  SYSTEMATIC "},
			want:   []string{"cl_id_citadel", "cl_id_some_other_quant", "cl_id_twosigma"},
		},
		{
			name:   "mixed list",
			tokens: []string{"Citadel", "quant"},
			want:   []string{"cl_id_citadel", "cl_id_some_other_quant", "cl_id_twosigma"},
		},
		{
			name:   "deduplication across group and member",
			tokens: []string{"Citadel", "systematic"},
			want:   []string{"cl_id_citadel", "cl_id_some_other_quant", "cl_id_twosigma"},
		},
		{
			name:   "unmatched token dropped",
			tokens: []string{"zzzzzz corp", "citadel"},
			want:   []string{"cl_id_citadel"},
		},
		{
			name:   "empty input",
			tokens: nil,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.tokens)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%v) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}
}

func TestResolveEntitiesDeterministic(t *testing.T) {
	r := newTestEntityResolver(t)
	first := r.Resolve([]string{"systematic", "millennium"})
	second := r.Resolve([]string{"systematic", "millennium"})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolution not deterministic: %v vs %v", first, second)
	}
}

func TestResolveAllClientsGroup(t *testing.T) {
	kb := knowledge.Default()
	r := NewEntityResolver(kb, nil)
	got := r.Resolve([]string{"all clients"})
	if !reflect.DeepEqual(got, kb.AllClientIDs()) {
		t.Errorf("all clients = %v, want %v", got, kb.AllClientIDs())
	}
}

func TestVocabResolver(t *testing.T) {
	kb := knowledge.Default()
	r := NewVocabResolver("region", kb.Regions, []string{"global"}, nil)

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"exact", []string{"EMEA"}, []string{"EMEA"}},
		{"typo", []string{"amercas"}, []string{"AMERICAS"}},
		{"wildcard", []string{"global"}, []string{"AMERICAS", "EMEA", "ASIA", "NA"}},
		{"dedup in vocab order", []string{"asia", "emea", "ASIA"}, []string{"EMEA", "ASIA"}},
		{"unmatched dropped", []string{"atlantis"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.tokens)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%v) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}
}
