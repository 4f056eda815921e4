package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultDynamicBudget != 2000 {
		t.Errorf("DefaultDynamicBudget = %d, want 2000", cfg.DefaultDynamicBudget)
	}
	if cfg.DBMaxOpenConns != 0 {
		t.Errorf("DBMaxOpenConns = %d, want 0", cfg.DBMaxOpenConns)
	}
}

func TestLoad_OverlayWinsForScalars(t *testing.T) {
	dir := t.TempDir()
	data := `{"default_dynamic_budget": 500, "disabled_tools": ["kb_import"]}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultDynamicBudget != 500 {
		t.Errorf("DefaultDynamicBudget = %d, want 500", cfg.DefaultDynamicBudget)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "kb_import" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestMerge_DeduplicatesTools(t *testing.T) {
	base := &Config{DisabledTools: []string{"a", "b"}}
	overlay := &Config{DisabledTools: []string{" b ", "c"}}
	merged := Merge(base, overlay)

	want := []string{"a", "b", "c"}
	if len(merged.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", merged.DisabledTools, want)
	}
	for i := range want {
		if merged.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, merged.DisabledTools[i], want[i])
		}
	}
}
