// Package knowledge holds the static entity and vocabulary knowledge base
// the resolvers match free-text input against. The base is loaded once at
// process start and is read-only afterwards, so it is safe to share across
// concurrent requests.
package knowledge

import (
	"fmt"
	"sort"
)

// Base is the entity knowledge base: client names, named client groups, and
// the controlled vocabularies for every filter dimension.
type Base struct {
	// Clients maps lowercase client names to canonical IDs.
	Clients map[string]string `json:"clients"`
	// Groups maps lowercase group names to member canonical IDs. An empty
	// member list means "expand dynamically to every known client".
	Groups map[string][]string `json:"groups"`

	Businesses    []string `json:"businesses"`
	SubBusinesses []string `json:"subbusinesses"`
	Regions       []string `json:"regions"`
	// CountriesByRegion drives both the country vocabulary and the mock
	// data generator.
	CountriesByRegion map[string][]string `json:"countries_by_region"`
	BalanceTypes      []string            `json:"balance_types"`
	CapitalMetrics    []string            `json:"capital_metrics"`
}

// Default returns the built-in knowledge base snapshot.
func Default() *Base {
	return &Base{
		Clients: map[string]string{
			"millennium": "cl_id_millennium",
			"citadel":    "cl_id_citadel",
			"point 72":   "cl_id_point72",
			"two sigma":  "cl_id_twosigma",
		},
		Groups: map[string][]string{
			"systematic":    {"cl_id_twosigma", "cl_id_citadel", "cl_id_some_other_quant"},
			"quant":         {"cl_id_twosigma", "cl_id_some_other_quant"},
			"multi-manager": {"cl_id_millennium", "cl_id_point72"},
			"all clients":   {},
		},
		Businesses:    []string{"Prime", "Equities Ex Prime", "FICC"},
		SubBusinesses: []string{"PB", "SPG", "Futures", "DCS", "One Delta", "Eq Deriv", "Credit", "Macro"},
		Regions:       []string{"AMERICAS", "EMEA", "ASIA", "NA"},
		CountriesByRegion: map[string][]string{
			"AMERICAS": {"USA", "CAN", "BRA"},
			"EMEA":     {"GBR", "FRA", "DEU"},
			"ASIA":     {"JPN", "HKG", "AUS"},
			"NA":       {"USA", "CAN"},
		},
		BalanceTypes: []string{"Debit", "Credit", "Physical Shorts", "Synthetic Longs", "Synthetic Shorts"},
		CapitalMetrics: []string{
			"Total RWA", "Portfolio RWA", "Borrow RWA",
			"Balance Sheet", "Supplemental Balance Sheet",
			"GSIB Points", "Total AE", "Preferred AE",
		},
	}
}

// Validate checks the base's structural invariants: canonical IDs unique
// across the client table and every vocabulary non-empty.
func (b *Base) Validate() error {
	seen := make(map[string]string, len(b.Clients))
	for name, id := range b.Clients {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("canonical ID %q mapped by both %q and %q", id, prev, name)
		}
		seen[id] = name
	}
	for _, vocab := range [][]string{b.Businesses, b.SubBusinesses, b.Regions, b.BalanceTypes, b.CapitalMetrics} {
		if len(vocab) == 0 {
			return fmt.Errorf("empty vocabulary in knowledge base")
		}
	}
	return nil
}

// AllClientIDs returns every known canonical client ID, sorted.
func (b *Base) AllClientIDs() []string {
	ids := make([]string, 0, len(b.Clients))
	for _, id := range b.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntityNames returns the union of client names and group names, sorted.
// This is the candidate set for entity resolution.
func (b *Base) EntityNames() []string {
	names := make([]string, 0, len(b.Clients)+len(b.Groups))
	for name := range b.Clients {
		names = append(names, name)
	}
	for name := range b.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupMembers returns the member IDs for a group name. The "all clients"
// convention (empty member list) expands to the full client table.
func (b *Base) GroupMembers(name string) ([]string, bool) {
	members, ok := b.Groups[name]
	if !ok {
		return nil, false
	}
	if len(members) == 0 {
		return b.AllClientIDs(), true
	}
	return members, true
}

// Countries returns the deduplicated country vocabulary, sorted.
func (b *Base) Countries() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cs := range b.CountriesByRegion {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// CompatibleBalanceTypes returns the balance types a sub-business can carry.
// PB and Clearing books hold physical debit/credit/short balances; SPG holds
// synthetic longs and shorts; everything else defaults to the physical set.
func CompatibleBalanceTypes(subBusiness string) []string {
	switch subBusiness {
	case "SPG":
		return []string{"Synthetic Longs", "Synthetic Shorts"}
	default:
		return []string{"Debit", "Credit", "Physical Shorts"}
	}
}

// ClientDisplayName derives a display name from a canonical ID
// (cl_id_citadel -> Citadel).
func ClientDisplayName(id string) string {
	const prefix = "cl_id_"
	name := id
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		name = id[len(prefix):]
	}
	if name == "" {
		return name
	}
	return titleCase(name)
}

func titleCase(s string) string {
	out := []byte(s)
	upper := true
	for i, c := range out {
		switch {
		case upper && c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
			upper = false
		case c == '_' || c == ' ' || c == '-':
			out[i] = ' '
			upper = true
		default:
			upper = false
		}
	}
	return string(out)
}
