package cache

import (
	"fmt"
	"sort"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/knowledge"
	"github.com/rmarchant/plinth/internal/tokens"
)

// Priority tiers, ordered high < medium < low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// Rank returns the sort rank of a priority (unknown tiers sort last).
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// CacheableEntry is one knowledge entry annotated for cache planning.
type CacheableEntry struct {
	Source        string        `json:"source"`
	Priority      Priority      `json:"priority"`
	TokenEstimate int           `json:"token_estimate"`
	Content       content.Value `json:"content"`
}

// classifyDecisionLimit caps how many recent decisions enter classification.
const classifyDecisionLimit = 10

// Classify pulls candidate knowledge entries from the store and returns them
// annotated with priority tier and token estimate, stably sorted by tier.
// Absent or unreachable categories contribute zero entries; classification
// itself never fails.
func Classify(store knowledge.Store, workspace string) []CacheableEntry {
	var entries []CacheableEntry

	// 1. Project context (high priority)
	if project, err := store.ProjectContext(workspace); err == nil && !project.IsEmpty() {
		entries = append(entries, CacheableEntry{
			Source:        "project_context",
			Priority:      PriorityHigh,
			TokenEstimate: tokens.Estimate(project),
			Content:       project,
		})
	}

	// 2. System patterns (medium priority)
	if patterns, err := store.SystemPatterns(workspace, 0); err == nil {
		for _, p := range patterns {
			c := patternContent(p)
			entries = append(entries, CacheableEntry{
				Source:        "system_pattern/" + p.Name,
				Priority:      PriorityMedium,
				TokenEstimate: tokens.Estimate(c),
				Content:       c,
			})
		}
	}

	// 3. Cache-flagged custom data (medium priority)
	if flagged, err := store.CacheFlaggedCustomData(workspace); err == nil {
		for _, e := range flagged {
			entries = append(entries, CacheableEntry{
				Source:        fmt.Sprintf("custom_data/%s/%s", e.Category, e.Key),
				Priority:      PriorityMedium,
				TokenEstimate: tokens.Estimate(e.Value),
				Content:       e.Value,
			})
		}
	}

	// 4. Active context (low priority)
	if active, err := store.ActiveContext(workspace); err == nil && !active.IsEmpty() {
		entries = append(entries, CacheableEntry{
			Source:        "active_context",
			Priority:      PriorityLow,
			TokenEstimate: tokens.Estimate(active),
			Content:       active,
		})
	}

	// 5. Recent decisions (low priority)
	if decisions, err := store.Decisions(workspace, classifyDecisionLimit); err == nil {
		for _, d := range decisions {
			c := decisionContent(d)
			entries = append(entries, CacheableEntry{
				Source:        fmt.Sprintf("decision/%d", d.ID),
				Priority:      PriorityLow,
				TokenEstimate: tokens.Estimate(c),
				Content:       c,
			})
		}
	}

	// Stable sort keeps within-tier pull order intact.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority.Rank() < entries[j].Priority.Rank()
	})

	return entries
}

// patternContent projects a pattern into estimator-facing content.
func patternContent(p knowledge.Pattern) content.Value {
	return content.NewMap().
		Set("name", content.String(p.Name)).
		Set("description", content.String(p.Description)).
		Set("tags", stringList(p.Tags)).
		Value()
}

// decisionContent projects a decision into estimator-facing content.
func decisionContent(d knowledge.Decision) content.Value {
	return content.NewMap().
		Set("summary", content.String(d.Summary)).
		Set("rationale", content.String(d.Rationale)).
		Set("implementation_details", content.String(d.ImplementationDetails)).
		Set("tags", stringList(d.Tags)).
		Value()
}

func stringList(items []string) content.Value {
	values := make([]content.Value, len(items))
	for i, s := range items {
		values[i] = content.String(s)
	}
	return content.List(values...)
}
