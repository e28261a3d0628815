package handlers

import (
	"net/http"
	"sort"
)

// VocabularyResponse is the full controlled vocabulary the UI can offer for
// autocomplete and validation.
type VocabularyResponse struct {
	Clients        []string            `json:"clients"`
	Groups         []string            `json:"groups"`
	Businesses     []string            `json:"businesses"`
	SubBusinesses  []string            `json:"subbusinesses"`
	Regions        []string            `json:"regions"`
	Countries      []string            `json:"countries"`
	BalanceTypes   []string            `json:"balance_types"`
	CapitalMetrics []string            `json:"capital_metrics"`
	GroupMembers   map[string][]string `json:"group_members"`
}

// GetVocabulary returns the entity names and filter vocabularies.
func GetVocabulary(w http.ResponseWriter, r *http.Request) {
	clients := make([]string, 0, len(kb.Clients))
	for name := range kb.Clients {
		clients = append(clients, name)
	}
	sort.Strings(clients)

	groups := make([]string, 0, len(kb.Groups))
	members := make(map[string][]string, len(kb.Groups))
	for name := range kb.Groups {
		groups = append(groups, name)
		if ids, ok := kb.GroupMembers(name); ok {
			members[name] = ids
		}
	}
	sort.Strings(groups)

	writeJSON(w, http.StatusOK, VocabularyResponse{
		Clients:        clients,
		Groups:         groups,
		Businesses:     kb.Businesses,
		SubBusinesses:  kb.SubBusinesses,
		Regions:        kb.Regions,
		Countries:      kb.Countries(),
		BalanceTypes:   kb.BalanceTypes,
		CapitalMetrics: kb.CapitalMetrics,
		GroupMembers:   members,
	})
}
