package markdown

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/knowledge"
)

func testStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedWorkspace(t *testing.T, store *db.Store, ws string) {
	t.Helper()

	product := content.NewMap().
		Set("name", content.String("Plinth")).
		Set("goals", content.List(content.String("context reuse"), content.String("cache hits"))).
		Value()
	if err := store.UpdateProjectContext(ws, db.ContextUpdate{Content: &product}); err != nil {
		t.Fatalf("seed product context: %v", err)
	}

	if _, err := store.LogDecision(ws, knowledge.Decision{
		Summary:   "Adopt sqlite",
		Rationale: "zero ops, single file",
		Tags:      []string{"storage", "infra"},
	}); err != nil {
		t.Fatalf("seed decision: %v", err)
	}
	if _, err := store.LogDecision(ws, knowledge.Decision{
		Summary:               "Single binary deploys",
		ImplementationDetails: "static build, no cgo",
	}); err != nil {
		t.Fatalf("seed decision: %v", err)
	}

	if _, err := store.LogPattern(ws, knowledge.Pattern{
		Name:        "Repository",
		Description: "data access behind an interface",
		Tags:        []string{"architecture"},
	}); err != nil {
		t.Fatalf("seed pattern: %v", err)
	}

	if _, err := store.LogProgress(ws, knowledge.ProgressEntry{
		Status:      knowledge.StatusInProgress,
		Description: "wiring the importer",
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	if _, err := store.LogCustomData(ws, knowledge.CustomEntry{
		Category:  "Specifications",
		Key:       "wire_format",
		Value:     content.MustFromJSON(`{"framing":"length-prefixed","version":2}`),
		CacheHint: true,
	}); err != nil {
		t.Fatalf("seed custom data: %v", err)
	}
	if _, err := store.LogCustomData(ws, knowledge.CustomEntry{
		Category: "notes",
		Key:      "scratch",
		Value:    content.String("plain text note"),
	}); err != nil {
		t.Fatalf("seed custom data: %v", err)
	}
}

func TestExportWritesLayout(t *testing.T) {
	store := testStore(t)
	seedWorkspace(t, store, "ws")

	dir := filepath.Join(t.TempDir(), "export")
	result, err := Export(store, "ws", dir)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if result.Path != dir {
		t.Fatalf("export path = %q, want %q", result.Path, dir)
	}

	for _, name := range []string{
		"product_context.md", "decisions.md", "system_patterns.md", "progress.md",
		filepath.Join("custom_data", "Specifications.md"),
		filepath.Join("custom_data", "notes.md"),
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected export file %s: %v", name, err)
		}
	}

	// active context was never set, so its file must be absent
	if _, err := os.Stat(filepath.Join(dir, "active_context.md")); !os.IsNotExist(err) {
		t.Error("active_context.md should not exist for an empty active context")
	}

	if result.Entries == 0 || result.Files == 0 {
		t.Fatalf("empty result counts: %+v", result)
	}
}

func TestRoundTrip(t *testing.T) {
	source := testStore(t)
	seedWorkspace(t, source, "ws")

	dir := filepath.Join(t.TempDir(), "export")
	if _, err := Export(source, "ws", dir); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := testStore(t)
	result, err := Import(target, "ws", dir)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Skipped != 0 {
		t.Fatalf("unexpected skips: %+v", result)
	}

	wantProduct, _ := source.ProjectContext("ws")
	gotProduct, err := target.ProjectContext("ws")
	if err != nil {
		t.Fatalf("read imported product context: %v", err)
	}
	if gotProduct.JSON() != wantProduct.JSON() {
		t.Fatalf("product context round trip mismatch:\n%s\n%s", gotProduct.JSON(), wantProduct.JSON())
	}

	decisions, err := target.Decisions("ws", 0)
	if err != nil {
		t.Fatalf("read imported decisions: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	byLine := make(map[string]knowledge.Decision)
	for _, d := range decisions {
		byLine[d.Summary] = d
	}
	sqlite, ok := byLine["Adopt sqlite"]
	if !ok || sqlite.Rationale != "zero ops, single file" || len(sqlite.Tags) != 2 {
		t.Fatalf("decision fields lost in round trip: %+v", sqlite)
	}
	binary, ok := byLine["Single binary deploys"]
	if !ok || binary.ImplementationDetails != "static build, no cgo" {
		t.Fatalf("decision fields lost in round trip: %+v", binary)
	}

	patterns, err := target.SystemPatterns("ws", 0)
	if err != nil {
		t.Fatalf("read imported patterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0].Name != "Repository" ||
		patterns[0].Description != "data access behind an interface" {
		t.Fatalf("pattern round trip mismatch: %+v", patterns)
	}

	progress, err := target.Progress("ws", "", 0)
	if err != nil {
		t.Fatalf("read imported progress: %v", err)
	}
	if len(progress) != 1 || progress[0].Status != knowledge.StatusInProgress ||
		progress[0].Description != "wiring the importer" {
		t.Fatalf("progress round trip mismatch: %+v", progress)
	}

	custom, err := target.CustomData("ws", "Specifications")
	if err != nil {
		t.Fatalf("read imported custom data: %v", err)
	}
	if len(custom) != 1 {
		t.Fatalf("expected 1 Specifications entry, got %d", len(custom))
	}
	wire := custom[0]
	if wire.Value.JSON() != `{"framing":"length-prefixed","version":2}` {
		t.Fatalf("custom value lost fidelity: %s", wire.Value.JSON())
	}
	if !wire.CacheHint {
		t.Fatal("cache hint lost in round trip")
	}

	notes, err := target.CustomData("ws", "notes")
	if err != nil {
		t.Fatalf("read imported notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Value.Str() != "plain text note" {
		t.Fatalf("string value round trip mismatch: %+v", notes)
	}
	if notes[0].CacheHint {
		t.Fatal("unpinned entry came back pinned")
	}
}

func TestImportSkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "custom_data")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatal(err)
	}

	body := "# Specs\n\n## broken\n\n```json\n{not json\n```\n\n## good\n\n```json\n\"fine\"\n```\n"
	if err := os.WriteFile(filepath.Join(sub, "Specs.md"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	store := testStore(t)
	result, err := Import(store, "ws", dir)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("imported=%d skipped=%d, want 1/1", result.Imported, result.Skipped)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for the malformed entry")
	}

	entries, err := store.CustomData("ws", "Specs")
	if err != nil {
		t.Fatalf("read imported entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "good" {
		t.Fatalf("expected only the good entry, got %+v", entries)
	}
}

func TestImportMissingDirectory(t *testing.T) {
	store := testStore(t)
	if _, err := Import(store, "ws", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestImportRequiresPath(t *testing.T) {
	store := testStore(t)
	if _, err := Import(store, "ws", ""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}
