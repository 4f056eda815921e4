package markdown

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/rmarchant/plinth/internal/cache"
	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// importChangeSource marks context versions written by an import.
const importChangeSource = "kb_import"

// ImportResult reports what an import read back.
type ImportResult struct {
	Path     string   `json:"path"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// Import reads a markdown export directory back into the workspace.
// Contexts are overwritten; list entries are re-logged. Malformed files and
// entries are skipped with a warning, never aborting the rest of the import.
func Import(store *db.Store, workspace, dir string) (*ImportResult, error) {
	if dir == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	dir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("bad import path: %v", err))
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NewNotFound(dir)
	}

	result := &ImportResult{Path: dir}

	importContextFile(store, workspace, filepath.Join(dir, fileProductContext), "product", result)
	importContextFile(store, workspace, filepath.Join(dir, fileActiveContext), "active", result)
	importDecisionsFile(store, workspace, filepath.Join(dir, fileDecisions), result)
	importPatternsFile(store, workspace, filepath.Join(dir, filePatterns), result)
	importProgressFile(store, workspace, filepath.Join(dir, fileProgress), result)
	importCustomDataDir(store, workspace, filepath.Join(dir, customDataDir), result)

	for _, w := range result.Warnings {
		log.Printf("kb import: %s", w)
	}
	return result, nil
}

// Parsed markdown stream

type nodeKind int

const (
	nodeHeading nodeKind = iota
	nodeParagraph
	nodeCode
)

type mdNode struct {
	kind  nodeKind
	level int
	text  string
}

// parseNodes flattens a markdown document into the heading / paragraph /
// code-block stream the importers consume. The export format only uses
// top-level blocks.
func parseNodes(source []byte) []mdNode {
	doc := goldmark.New().Parser().Parse(gtext.NewReader(source))

	var nodes []mdNode
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			nodes = append(nodes, mdNode{kind: nodeHeading, level: v.Level, text: nodeText(v, source)})
		case *ast.Paragraph:
			nodes = append(nodes, mdNode{kind: nodeParagraph, text: nodeText(v, source)})
		case *ast.FencedCodeBlock:
			nodes = append(nodes, mdNode{kind: nodeCode, text: codeText(v, source)})
		}
	}
	return nodes
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		} else {
			b.WriteString(nodeText(c, source))
		}
	}
	return strings.TrimSpace(b.String())
}

func codeText(n *ast.FencedCodeBlock, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimRight(b.String(), "\n")
}

// loadNodes reads and parses one export file; a missing file is not an
// error, it just contributes nothing.
func loadNodes(path string, result *ImportResult) ([]mdNode, bool) {
	source, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: %v", filepath.Base(path), err))
			result.Skipped++
		}
		return nil, false
	}
	return parseNodes(source), true
}

// Per-file importers

func importContextFile(store *db.Store, workspace, path, contextType string, result *ImportResult) {
	nodes, ok := loadNodes(path, result)
	if !ok {
		return
	}

	builder := content.NewMap()
	entries := 0
	for i := 0; i < len(nodes); i++ {
		if nodes[i].kind != nodeHeading || nodes[i].level != 2 {
			continue
		}
		key := nodes[i].text
		value, found := nextCode(nodes, i+1)
		if !found {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: key %q has no value block", filepath.Base(path), key))
			result.Skipped++
			continue
		}
		parsed, err := content.FromJSON([]byte(value))
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: key %q: %v", filepath.Base(path), key, err))
			result.Skipped++
			continue
		}
		builder.Set(key, parsed)
		entries++
	}
	if entries == 0 {
		return
	}

	full := builder.Value()
	update := db.ContextUpdate{Content: &full, ChangeSource: importChangeSource}
	var err error
	if contextType == "product" {
		err = store.UpdateProjectContext(workspace, update)
	} else {
		err = store.UpdateActiveContext(workspace, update)
	}
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: %v", filepath.Base(path), err))
		result.Skipped += entries
		return
	}
	result.Imported += entries
}

func importDecisionsFile(store *db.Store, workspace, path string, result *ImportResult) {
	nodes, ok := loadNodes(path, result)
	if !ok {
		return
	}

	flush := func(d *knowledge.Decision) {
		if d == nil {
			return
		}
		if _, err := store.LogDecision(workspace, *d); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("decision %q: %v", d.Summary, err))
			result.Skipped++
			return
		}
		result.Imported++
	}

	var current *knowledge.Decision
	for _, n := range nodes {
		switch {
		case n.kind == nodeHeading && n.level == 2:
			flush(current)
			current = &knowledge.Decision{Summary: n.text}
		case n.kind == nodeParagraph && current != nil:
			switch {
			case strings.HasPrefix(n.text, "Rationale: "):
				current.Rationale = strings.TrimPrefix(n.text, "Rationale: ")
			case strings.HasPrefix(n.text, "Implementation: "):
				current.ImplementationDetails = strings.TrimPrefix(n.text, "Implementation: ")
			case strings.HasPrefix(n.text, "Tags: "):
				current.Tags = splitTags(strings.TrimPrefix(n.text, "Tags: "))
			}
		}
	}
	flush(current)
}

func importPatternsFile(store *db.Store, workspace, path string, result *ImportResult) {
	nodes, ok := loadNodes(path, result)
	if !ok {
		return
	}

	flush := func(p *knowledge.Pattern) {
		if p == nil {
			return
		}
		if _, err := store.LogPattern(workspace, *p); err != nil {
			if errors.IsCode(err, errors.ErrAlreadyExists) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("pattern %q already exists", p.Name))
			} else {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("pattern %q: %v", p.Name, err))
			}
			result.Skipped++
			return
		}
		result.Imported++
	}

	var current *knowledge.Pattern
	for _, n := range nodes {
		switch {
		case n.kind == nodeHeading && n.level == 2:
			flush(current)
			current = &knowledge.Pattern{Name: n.text}
		case n.kind == nodeParagraph && current != nil:
			switch {
			case strings.HasPrefix(n.text, "Description: "):
				current.Description = strings.TrimPrefix(n.text, "Description: ")
			case strings.HasPrefix(n.text, "Tags: "):
				current.Tags = splitTags(strings.TrimPrefix(n.text, "Tags: "))
			}
		}
	}
	flush(current)
}

func importProgressFile(store *db.Store, workspace, path string, result *ImportResult) {
	nodes, ok := loadNodes(path, result)
	if !ok {
		return
	}

	for _, n := range nodes {
		if n.kind != nodeParagraph || !strings.HasPrefix(n.text, "[") {
			continue
		}
		end := strings.Index(n.text, "] ")
		if end < 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("progress entry %q is malformed", n.text))
			result.Skipped++
			continue
		}
		entry := knowledge.ProgressEntry{
			Status:      n.text[1:end],
			Description: n.text[end+2:],
		}
		if _, err := store.LogProgress(workspace, entry); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("progress entry %q: %v", n.text, err))
			result.Skipped++
			continue
		}
		result.Imported++
	}
}

func importCustomDataDir(store *db.Store, workspace, dir string, result *ImportResult) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		importCustomDataFile(store, workspace, filepath.Join(dir, f.Name()), result)
	}
}

func importCustomDataFile(store *db.Store, workspace, path string, result *ImportResult) {
	nodes, ok := loadNodes(path, result)
	if !ok {
		return
	}

	category := ""
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if n.kind == nodeHeading && n.level == 1 {
			category = n.text
			continue
		}
		if n.kind != nodeHeading || n.level != 2 {
			continue
		}
		if category == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: entry %q before any category heading", filepath.Base(path), n.text))
			result.Skipped++
			continue
		}

		entry := knowledge.CustomEntry{Category: category, Key: n.text}
		for j := i + 1; j < len(nodes) && nodes[j].kind == nodeParagraph; j++ {
			if nodes[j].text == "Cache: pinned" {
				entry.CacheHint = true
			}
		}
		value, found := nextCode(nodes, i+1)
		if !found {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: key %q has no value block", filepath.Base(path), entry.Key))
			result.Skipped++
			continue
		}
		parsed, err := content.FromJSON([]byte(value))
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: key %q: %v", filepath.Base(path), entry.Key, err))
			result.Skipped++
			continue
		}
		entry.Value = parsed
		entry.CacheScore = cache.Score(parsed, entry.Category, entry.Key)

		if _, err := store.LogCustomData(workspace, entry); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: key %q: %v", filepath.Base(path), entry.Key, err))
			result.Skipped++
			continue
		}
		result.Imported++
	}
}

// nextCode finds the next code block before the following heading.
func nextCode(nodes []mdNode, from int) (string, bool) {
	for i := from; i < len(nodes); i++ {
		switch nodes[i].kind {
		case nodeCode:
			return nodes[i].text, true
		case nodeHeading:
			return "", false
		}
	}
	return "", false
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
