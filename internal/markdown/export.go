// Package markdown moves a workspace knowledge base in and out of a
// directory of markdown files. The export layout is the import format:
// headings delimit entries, field paragraphs carry metadata, and fenced
// JSON blocks carry structured values byte-for-byte.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// Export file names within the target directory.
const (
	fileProductContext = "product_context.md"
	fileActiveContext  = "active_context.md"
	fileDecisions      = "decisions.md"
	filePatterns       = "system_patterns.md"
	fileProgress       = "progress.md"
	customDataDir      = "custom_data"
)

// ExportResult reports what an export wrote.
type ExportResult struct {
	Path       string `json:"path"`
	Files      int    `json:"files"`
	Entries    int    `json:"entries"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes the workspace knowledge base as markdown files under dir.
// An empty dir selects ~/.plinth/exports/<workspace>-<timestamp>.
func Export(store *db.Store, workspace, dir string) (*ExportResult, error) {
	now := time.Now()
	if dir == "" {
		var err error
		dir, err = defaultExportDir(workspace, now)
		if err != nil {
			return nil, err
		}
	}
	dir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("bad export path: %v", err))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	result := &ExportResult{Path: dir, ExportedAt: now.Unix()}

	if err := exportContext(store, workspace, dir, fileProductContext, "Product Context", result); err != nil {
		return nil, err
	}
	if err := exportContext(store, workspace, dir, fileActiveContext, "Active Context", result); err != nil {
		return nil, err
	}
	if err := exportDecisions(store, workspace, dir, result); err != nil {
		return nil, err
	}
	if err := exportPatterns(store, workspace, dir, result); err != nil {
		return nil, err
	}
	if err := exportProgress(store, workspace, dir, result); err != nil {
		return nil, err
	}
	if err := exportCustomData(store, workspace, dir, result); err != nil {
		return nil, err
	}

	return result, nil
}

func defaultExportDir(workspace string, now time.Time) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("cannot resolve home directory: %w", err))
	}
	name := fmt.Sprintf("%s-%s", db.NormalizeWorkspace(workspace), now.UTC().Format("20060102-150405"))
	return filepath.Join(home, ".plinth", "exports", name), nil
}

func exportContext(store *db.Store, workspace, dir, filename, title string, result *ExportResult) error {
	var value content.Value
	var err error
	if filename == fileProductContext {
		value, err = store.ProjectContext(workspace)
	} else {
		value, err = store.ActiveContext(workspace)
	}
	if err != nil {
		return err
	}
	if value.IsEmpty() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for _, key := range value.Keys() {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", key, jsonBlock(value.Get(key)))
		result.Entries++
	}
	return writeFile(dir, filename, b.String(), result)
}

func exportDecisions(store *db.Store, workspace, dir string, result *ExportResult) error {
	decisions, err := store.Decisions(workspace, 0)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Decisions\n")
	for _, d := range decisions {
		fmt.Fprintf(&b, "\n## %s\n", d.Summary)
		if d.Rationale != "" {
			fmt.Fprintf(&b, "\nRationale: %s\n", d.Rationale)
		}
		if d.ImplementationDetails != "" {
			fmt.Fprintf(&b, "\nImplementation: %s\n", d.ImplementationDetails)
		}
		if len(d.Tags) > 0 {
			fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(d.Tags, ", "))
		}
		result.Entries++
	}
	return writeFile(dir, fileDecisions, b.String(), result)
}

func exportPatterns(store *db.Store, workspace, dir string, result *ExportResult) error {
	patterns, err := store.SystemPatterns(workspace, 0)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("# System Patterns\n")
	for _, p := range patterns {
		fmt.Fprintf(&b, "\n## %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(&b, "\nDescription: %s\n", p.Description)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(p.Tags, ", "))
		}
		result.Entries++
	}
	return writeFile(dir, filePatterns, b.String(), result)
}

func exportProgress(store *db.Store, workspace, dir string, result *ExportResult) error {
	entries, err := store.Progress(workspace, "", 0)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Progress\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n[%s] %s\n", e.Status, e.Description)
		result.Entries++
	}
	return writeFile(dir, fileProgress, b.String(), result)
}

func exportCustomData(store *db.Store, workspace, dir string, result *ExportResult) error {
	entries, err := store.CustomData(workspace, "")
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	byCategory := make(map[string][]knowledge.CustomEntry)
	var order []string
	for _, e := range entries {
		if _, seen := byCategory[e.Category]; !seen {
			order = append(order, e.Category)
		}
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	sub := filepath.Join(dir, customDataDir)
	if err := os.MkdirAll(sub, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create custom data directory: %w", err))
	}

	for _, category := range order {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n", category)
		for _, e := range byCategory[category] {
			fmt.Fprintf(&b, "\n## %s\n", e.Key)
			if e.CacheHint {
				b.WriteString("\nCache: pinned\n")
			}
			fmt.Fprintf(&b, "\n%s\n", jsonBlock(e.Value))
			result.Entries++
		}
		if err := writeFile(sub, categoryFileName(category), b.String(), result); err != nil {
			return err
		}
	}
	return nil
}

// jsonBlock renders a value as a fenced JSON code block.
func jsonBlock(v content.Value) string {
	return "```json\n" + v.JSON() + "\n```"
}

// categoryFileName maps a category to a safe markdown file name. Path
// separators must not leak into the directory layout.
func categoryFileName(category string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		default:
			return r
		}
	}, category)
	return safe + ".md"
}

func writeFile(dir, name, body string, result *ExportResult) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to write %s: %w", name, err))
	}
	result.Files++
	return nil
}
