package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rmarchant/plinth/internal/knowledge"
	"github.com/rmarchant/plinth/internal/tokens"
)

// FormatOllamaOptimized wraps each section in === NAME === banners tuned for
// prompt-prefix reuse; any other format value joins bare section texts with
// a blank line.
const FormatOllamaOptimized = "ollama_optimized"

// FormatVersion identifies the stable-prefix layout. Bump when a renderer or
// the assembly format changes, since that invalidates every cached prefix.
const FormatVersion = "1.0"

// stablePatternLimit caps how many most-recently-modified patterns enter the
// stable prefix; patterns past the cutoff churn too much to cache.
const stablePatternLimit = 3

// Section is one named, rendered part of a context bundle.
type Section struct {
	Name         string `json:"section"`
	Text         string `json:"content"`
	Tokens       int    `json:"tokens"`
	LastModified int64  `json:"last_modified,omitempty"`
	ItemCount    int    `json:"item_count,omitempty"`
}

// StableBundle is a reusable, fingerprinted context prefix.
type StableBundle struct {
	Sections      []Section `json:"sections"`
	Text          string    `json:"stable_prefix"`
	Fingerprint   string    `json:"fingerprint"`
	TotalTokens   int       `json:"total_tokens"`
	FormatVersion string    `json:"format_version"`
	GeneratedAt   int64     `json:"generated_at"`
}

// BuildStablePrefix assembles the high-stability knowledge categories into a
// deterministic context prefix. For a fixed knowledge snapshot the
// concatenated text and fingerprint are byte-identical across builds; that
// property is what lets an inference runtime reuse its prompt cache.
//
// A category whose read fails degrades to an absent section; the build
// itself only fails on a malformed workspace argument.
func BuildStablePrefix(store knowledge.Store, workspace, format string) *StableBundle {
	var sections []Section

	// 1. Project context
	if project, err := store.ProjectContext(workspace); err == nil && !project.IsEmpty() {
		text := renderProjectContext(project)
		lastModified, _ := store.LastModified(workspace, knowledge.CategoryProjectContext)
		sections = append(sections, Section{
			Name:         "project_context",
			Text:         text,
			Tokens:       tokens.EstimateText(text),
			LastModified: lastModified,
		})
	}

	// 2. System patterns (most recently modified first)
	if patterns, err := store.SystemPatterns(workspace, stablePatternLimit); err == nil && len(patterns) > 0 {
		text := renderPatterns(patterns)
		sections = append(sections, Section{
			Name:      "system_patterns",
			Text:      text,
			Tokens:    tokens.EstimateText(text),
			ItemCount: len(patterns),
		})
	}

	// 3. Critical custom data
	if critical, err := store.CacheFlaggedCustomData(workspace); err == nil && len(critical) > 0 {
		text := renderCriticalData(critical)
		sections = append(sections, Section{
			Name:      "critical_specs",
			Text:      text,
			Tokens:    tokens.EstimateText(text),
			ItemCount: len(critical),
		})
	}

	text := assembleStable(sections, format)

	total := 0
	for _, s := range sections {
		total += s.Tokens
	}

	sum := md5.Sum([]byte(text))
	return &StableBundle{
		Sections:      sections,
		Text:          text,
		Fingerprint:   hex.EncodeToString(sum[:]),
		TotalTokens:   total,
		FormatVersion: FormatVersion,
		GeneratedAt:   time.Now().Unix(),
	}
}

// assembleStable concatenates rendered sections according to format.
func assembleStable(sections []Section, format string) string {
	if format == FormatOllamaOptimized {
		var parts []string
		for _, s := range sections {
			parts = append(parts, "=== "+bannerName(s.Name)+" ===")
			parts = append(parts, s.Text)
			parts = append(parts, "")
		}
		return strings.Join(parts, "\n")
	}

	var parts []string
	for _, s := range sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// bannerName turns a section name into its banner form
// ("project_context" → "PROJECT CONTEXT").
func bannerName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "_", " "))
}
