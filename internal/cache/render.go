package cache

import (
	"fmt"
	"strings"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// Renderers produce the canonical text for each context section. Stability
// matters more than beauty here: the stable-prefix fingerprint is a hash of
// this text, so renders must be byte-identical for identical knowledge.

// renderProjectContext renders the labeled-field project template.
// Fields are fixed so the prefix does not reshape itself when freeform keys
// come and go.
func renderProjectContext(ctx content.Value) string {
	name := fieldText(ctx, "name")
	if name == "" {
		name = "Current Project"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "PROJECT: %s\n", name)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", fieldText(ctx, "description"))
	fmt.Fprintf(&b, "GOALS: %s\n", fieldText(ctx, "goals"))
	fmt.Fprintf(&b, "ARCHITECTURE: %s\n", fieldText(ctx, "architecture"))
	fmt.Fprintf(&b, "TECHNOLOGIES: %s\n", fieldText(ctx, "technologies"))
	return b.String()
}

// renderPatterns renders name/description/tags blocks.
func renderPatterns(patterns []knowledge.Pattern) string {
	var lines []string
	for _, p := range patterns {
		lines = append(lines, "PATTERN: "+p.Name)
		lines = append(lines, "DESCRIPTION: "+p.Description)
		if len(p.Tags) > 0 {
			lines = append(lines, "TAGS: "+strings.Join(p.Tags, ", "))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderCriticalData renders category/key/value blocks with deterministic
// value serialization.
func renderCriticalData(entries []knowledge.CustomEntry) string {
	var lines []string
	for _, e := range entries {
		lines = append(lines, "CATEGORY: "+e.Category)
		lines = append(lines, "KEY: "+e.Key)
		lines = append(lines, "VALUE: "+valueText(e.Value))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderActiveContext renders the session snapshot with its own banner; the
// dynamic assembler joins bare section texts.
func renderActiveContext(ctx content.Value) string {
	lines := []string{"=== ACTIVE CONTEXT ==="}
	for _, key := range ctx.Keys() {
		heading := strings.ToUpper(strings.ReplaceAll(key, "_", " "))
		lines = append(lines, heading+": "+valueText(ctx.Get(key)))
	}
	return strings.Join(lines, "\n")
}

// renderDecisions renders decision/rationale blocks for dynamic context.
func renderDecisions(banner string, decisions []knowledge.Decision) string {
	lines := []string{banner}
	for _, d := range decisions {
		lines = append(lines, "DECISION: "+d.Summary)
		if d.Rationale != "" {
			lines = append(lines, "RATIONALE: "+d.Rationale)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderProgress renders [STATUS] description lines for dynamic context.
func renderProgress(entries []knowledge.ProgressEntry) string {
	lines := []string{"=== CURRENT PROGRESS ==="}
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = "UNKNOWN"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", status, e.Description))
	}
	return strings.Join(lines, "\n")
}

// fieldText extracts a map field as display text; missing fields render as
// empty strings, keeping the template's shape fixed.
func fieldText(ctx content.Value, key string) string {
	return valueText(ctx.Get(key))
}

// valueText renders a value for a template slot: strings verbatim, scalars
// as their literals, structures as deterministic JSON, null as empty.
func valueText(v content.Value) string {
	switch v.Kind() {
	case content.KindNull:
		return ""
	case content.KindString:
		return v.Str()
	case content.KindBool, content.KindNumber:
		return v.Literal()
	default:
		return v.JSON()
	}
}
