package cache

import (
	"strings"

	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
	"github.com/rmarchant/plinth/internal/tokens"
)

// Section limits for dynamic assembly.
const (
	recentDecisionLimit   = 5
	progressEntryLimit    = 5
	techDecisionPool      = 10
	techDecisionLimit     = 3
	fallbackDecisionLimit = 3
)

// Dynamic section names.
const (
	SectionActiveContext     = "active_context"
	SectionRecentDecisions   = "recent_decisions"
	SectionCurrentProgress   = "current_progress"
	SectionTechDecisions     = "tech_decisions"
	SectionFallbackDecisions = "fallback_decisions"
)

// Intent keyword sets. A query intent activates a section when any of the
// section's keywords appears as a substring of the lowercased intent.
var (
	decisionKeywords = []string{
		"decision", "decide", "choice", "architecture", "design", "pattern", "approach",
	}
	progressKeywords = []string{
		"task", "progress", "todo", "work", "status", "current", "doing", "working",
	}
	techKeywords = []string{
		"react", "query", "redis", "database", "api", "performance",
		"optimization", "cache", "caching", "review", "best", "practices",
	}
)

// DynamicBundle is the budget-bounded volatile context for one query.
type DynamicBundle struct {
	Sections        []Section `json:"sections"`
	Text            string    `json:"dynamic_context"`
	TotalTokens     int       `json:"total_tokens"`
	BudgetUsed      int       `json:"budget_used"`
	BudgetRemaining int       `json:"budget_remaining"`
}

// AssembleDynamic builds the volatile context for a query intent, greedily
// adding sections in fixed priority order and skipping any section whose
// rendered size exceeds the remaining budget. Reads that fail or come back
// empty drop their section rather than aborting the assembly.
func AssembleDynamic(store knowledge.Store, workspace, queryIntent string, budget int) (*DynamicBundle, error) {
	if budget <= 0 {
		return nil, errors.NewInvalidRequest("token_budget must be positive")
	}

	intent := strings.ToLower(queryIntent)
	remaining := budget

	var sections []Section
	add := func(name, text string) bool {
		if text == "" {
			return false
		}
		cost := tokens.EstimateText(text)
		if cost > remaining {
			return false
		}
		sections = append(sections, Section{Name: name, Text: text, Tokens: cost})
		remaining -= cost
		return true
	}

	if active, err := store.ActiveContext(workspace); err == nil && !active.IsEmpty() {
		add(SectionActiveContext, renderActiveContext(active))
	}

	decisionsAdded := false
	if containsAny(intent, decisionKeywords) {
		if decisions, err := store.Decisions(workspace, recentDecisionLimit); err == nil && len(decisions) > 0 {
			decisionsAdded = add(SectionRecentDecisions, renderDecisions("=== RECENT DECISIONS ===", decisions))
		}
	}

	if containsAny(intent, progressKeywords) {
		if entries, err := store.Progress(workspace, knowledge.StatusInProgress, progressEntryLimit); err == nil && len(entries) > 0 {
			add(SectionCurrentProgress, renderProgress(entries))
		}
	}

	if !decisionsAdded && containsAny(intent, techKeywords) {
		if relevant := relevantTechDecisions(store, workspace); len(relevant) > 0 {
			decisionsAdded = add(SectionTechDecisions, renderDecisions("=== RECENT DECISIONS ===", relevant))
		}
	}

	// A near-empty result still gets recent decisions as general grounding.
	if len(sections) <= 1 && !decisionsAdded {
		if decisions, err := store.Decisions(workspace, fallbackDecisionLimit); err == nil && len(decisions) > 0 {
			add(SectionFallbackDecisions, renderDecisions("=== RECENT DECISIONS ===", decisions))
		}
	}

	texts := make([]string, len(sections))
	total := 0
	for i, s := range sections {
		texts[i] = s.Text
		total += s.Tokens
	}

	return &DynamicBundle{
		Sections:        sections,
		Text:            strings.Join(texts, "\n"),
		TotalTokens:     total,
		BudgetUsed:      budget - remaining,
		BudgetRemaining: remaining,
	}, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// relevantTechDecisions keeps the most recent decisions whose combined text
// fields mention any technical keyword. Recency order is preserved; the
// intent only decides whether this step runs at all.
func relevantTechDecisions(store knowledge.Store, workspace string) []knowledge.Decision {
	decisions, err := store.Decisions(workspace, techDecisionPool)
	if err != nil {
		return nil
	}

	var matches []knowledge.Decision
	for _, d := range decisions {
		text := strings.ToLower(d.Summary + " " + d.Rationale + " " + d.ImplementationDetails)
		if containsAny(text, techKeywords) {
			matches = append(matches, d)
			if len(matches) == techDecisionLimit {
				break
			}
		}
	}
	return matches
}
