package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow/prompts"
)

// Prompts contains the workflow prompt templates loaded from embedded files.
type Prompts struct {
	Planner    string // Plan-generation system prompt with tool and rule guidance
	Correction string // Correction prompt template for step failures
	Synthesis  string // Final-answer system prompt
	DateParser string // Date-range extraction prompt
	Slack      string // Slack-specific formatting guidelines
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}
	var err error
	if p.Planner, err = loadPrompt("PLANNER.md"); err != nil {
		return nil, err
	}
	if p.Correction, err = loadPrompt("CORRECTION.md"); err != nil {
		return nil, err
	}
	if p.Synthesis, err = loadPrompt("SYNTHESIS.md"); err != nil {
		return nil, err
	}
	if p.DateParser, err = loadPrompt("DATE_PARSER.md"); err != nil {
		return nil, err
	}
	if p.Slack, err = loadPrompt("SLACK.md"); err != nil {
		return nil, err
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.FS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// BuildPlannerSystemPrompt composes the planner prompt: today's date, optional
// environment context, the base template, and the knowledge context spliced
// into its placeholder.
func BuildPlannerSystemPrompt(base, knowledgeContext, envContext string, now time.Time) string {
	prompt := fmt.Sprintf("Today's date: %s (UTC)\n\n%s", now.UTC().Format("2006-01-02"), base)
	prompt = strings.ReplaceAll(prompt, "{{KNOWLEDGE_CONTEXT}}", knowledgeContext)
	if envContext != "" {
		prompt += "\n\n# Environment\n\n" + envContext
	}
	return prompt
}

// KnowledgeContext formats the knowledge base as prompt text so the planner
// knows which entities, vocabularies, and metrics exist.
func KnowledgeContext(kb *knowledge.Base) string {
	var sb strings.Builder

	sb.WriteString("# Known Entities and Vocabularies\n\n")

	clients := make([]string, 0, len(kb.Clients))
	for name := range kb.Clients {
		clients = append(clients, name)
	}
	sort.Strings(clients)
	sb.WriteString("Clients: " + strings.Join(clients, ", ") + "\n")

	groups := make([]string, 0, len(kb.Groups))
	for name := range kb.Groups {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	sb.WriteString("Client groups: " + strings.Join(groups, ", ") + "\n\n")

	sb.WriteString("Businesses: " + strings.Join(kb.Businesses, ", ") +
		" (\"Equities\" is accepted as the umbrella over Prime and Equities Ex Prime)\n")
	sb.WriteString("Sub-businesses: " + strings.Join(kb.SubBusinesses, ", ") + "\n")
	sb.WriteString("Regions: " + strings.Join(kb.Regions, ", ") + "\n")
	sb.WriteString("Countries: " + strings.Join(kb.Countries(), ", ") + "\n")
	sb.WriteString("Balance types: " + strings.Join(kb.BalanceTypes, ", ") + "\n")
	sb.WriteString("Capital metrics: " + strings.Join(kb.CapitalMetrics, ", ") + "\n\n")

	sb.WriteString("The fiscal year runs 1 October through 30 September; " +
		"fiscal year N ends 30 September of calendar year N.\n")
	sb.WriteString("Revenues and capital aggregate by sum over the period; " +
		"balances aggregate by daily average.")

	return sb.String()
}

// formatWorkspaceSummary renders table schemas for correction prompts.
func formatWorkspaceSummary(tables map[string][]string) string {
	if len(tables) == 0 {
		return "(empty workspace)"
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("%s: [%s]", name, strings.Join(tables[name], ", "))
	}
	return strings.Join(lines, "\n")
}

// extractJSON strips markdown code fences and surrounding prose from a model
// response, returning the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
