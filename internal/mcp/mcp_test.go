package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmarchant/plinth/internal/config"
	"github.com/rmarchant/plinth/internal/db"
)

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (*db.Store, *config.Config) {
	t.Helper()

	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, config.DefaultConfig()
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON unmarshals a tool result's text payload.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal result payload: %v", err)
	}
	return payload
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	payload := resultJSON(t, result)
	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("error code = %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}

// TestHandleContextUpdateAndGet tests context round trips through the handlers.
func TestHandleContextUpdateAndGet(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	updateResult, err := h.HandleContextUpdate(ctx, makeRequest(map[string]any{
		"workspace":    "test",
		"context_type": "product",
		"content":      map[string]any{"name": "Plinth", "goals": []any{"reuse"}},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if updateResult.IsError {
		t.Fatalf("update failed: %v", extractErrorMessage(updateResult))
	}

	patchResult, _ := h.HandleContextUpdate(ctx, makeRequest(map[string]any{
		"workspace":     "test",
		"context_type":  "product",
		"patch_content": map[string]any{"phase": "beta"},
	}))
	if patchResult.IsError {
		t.Fatalf("patch failed: %v", extractErrorMessage(patchResult))
	}

	getResult, _ := h.HandleContextGet(ctx, makeRequest(map[string]any{
		"workspace":    "test",
		"context_type": "product",
	}))
	if getResult.IsError {
		t.Fatalf("get failed: %v", extractErrorMessage(getResult))
	}
	payload := resultJSON(t, getResult)
	contentObj, ok := payload["content"].(map[string]any)
	if !ok {
		t.Fatalf("no content object in payload: %v", payload)
	}
	if contentObj["name"] != "Plinth" || contentObj["phase"] != "beta" {
		t.Fatalf("context content = %v", contentObj)
	}

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{
			name: "unknown context type",
			args: map[string]any{
				"context_type": "global",
			},
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "both content and patch",
			args: map[string]any{
				"context_type":  "product",
				"content":       map[string]any{"a": 1},
				"patch_content": map[string]any{"b": 2},
			},
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "neither content nor patch",
			args: map[string]any{
				"context_type": "active",
			},
			errorCode: "INVALID_REQUEST",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleContextUpdate(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result, got success")
			}
			assertErrorCode(t, result, tt.errorCode)
		})
	}
}

// TestHandleDecisionLifecycle tests decision log/list/delete.
func TestHandleDecisionLifecycle(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	logResult, _ := h.HandleDecisionLog(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"summary":   "Adopt sqlite",
		"rationale": "zero ops",
		"tags":      []any{"storage"},
	}))
	if logResult.IsError {
		t.Fatalf("log failed: %v", extractErrorMessage(logResult))
	}
	id := resultJSON(t, logResult)["id"].(float64)

	emptyResult, _ := h.HandleDecisionLog(ctx, makeRequest(map[string]any{
		"workspace": "test",
	}))
	assertErrorCode(t, emptyResult, "INVALID_REQUEST")

	listResult, _ := h.HandleDecisionList(ctx, makeRequest(map[string]any{
		"workspace": "test",
	}))
	if got := resultJSON(t, listResult)["count"].(float64); got != 1 {
		t.Fatalf("decision count = %v, want 1", got)
	}

	deleteResult, _ := h.HandleDecisionDelete(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"id":        id,
	}))
	if deleteResult.IsError {
		t.Fatalf("delete failed: %v", extractErrorMessage(deleteResult))
	}

	missingResult, _ := h.HandleDecisionDelete(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"id":        id,
	}))
	assertErrorCode(t, missingResult, "NOT_FOUND")
}

// TestHandlePattern tests pattern log/list and the uniqueness constraint.
func TestHandlePattern(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	logResult, _ := h.HandlePatternLog(ctx, makeRequest(map[string]any{
		"workspace":   "test",
		"name":        "Repository",
		"description": "data access behind an interface",
	}))
	if logResult.IsError {
		t.Fatalf("log failed: %v", extractErrorMessage(logResult))
	}

	dupResult, _ := h.HandlePatternLog(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"name":      "Repository",
	}))
	assertErrorCode(t, dupResult, "ALREADY_EXISTS")

	listResult, _ := h.HandlePatternList(ctx, makeRequest(map[string]any{
		"workspace": "test",
	}))
	if got := resultJSON(t, listResult)["count"].(float64); got != 1 {
		t.Fatalf("pattern count = %v, want 1", got)
	}
}

// TestHandleProgress tests progress log/list with status filtering.
func TestHandleProgress(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	for _, args := range []map[string]any{
		{"workspace": "test", "status": "IN_PROGRESS", "description": "wiring importer"},
		{"workspace": "test", "status": "DONE", "description": "schema migration"},
	} {
		result, _ := h.HandleProgressLog(ctx, makeRequest(args))
		if result.IsError {
			t.Fatalf("log failed: %v", extractErrorMessage(result))
		}
	}

	listResult, _ := h.HandleProgressList(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"status":    "IN_PROGRESS",
	}))
	payload := resultJSON(t, listResult)
	if got := payload["count"].(float64); got != 1 {
		t.Fatalf("filtered count = %v, want 1", got)
	}
}

// TestHandleCustomLog tests custom data logging with cache scoring.
func TestHandleCustomLog(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	result, _ := h.HandleCustomLog(ctx, makeRequest(map[string]any{
		"workspace":  "test",
		"category":   "Architecture",
		"key":        "api_schema",
		"value":      map[string]any{"version": 2},
		"cache_hint": true,
	}))
	if result.IsError {
		t.Fatalf("log failed: %v", extractErrorMessage(result))
	}
	payload := resultJSON(t, result)

	// category bonus 25 + key bonus 15
	if got := payload["cache_score"].(float64); got != 40 {
		t.Fatalf("cache_score = %v, want 40", got)
	}
	if payload["cache_hint"] != true {
		t.Fatal("cache_hint not persisted")
	}
	if payload["suggested_to_cache"] != false {
		t.Fatal("score 40 should not suggest caching")
	}

	listResult, _ := h.HandleCustomList(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"category":  "Architecture",
	}))
	if got := resultJSON(t, listResult)["count"].(float64); got != 1 {
		t.Fatalf("custom count = %v, want 1", got)
	}
}

func TestHandleCustomLogStringValue(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)

	result, _ := h.HandleCustomLog(context.Background(), makeRequest(map[string]any{
		"workspace": "test",
		"category":  "notes",
		"key":       "reminder",
		"value":     "rotate the API token before friday",
	}))
	if result.IsError {
		t.Fatalf("log failed: %v", extractErrorMessage(result))
	}
	if id := resultJSON(t, result)["id"].(float64); id == 0 {
		t.Fatal("expected non-zero entry id")
	}
}

func TestCustomLogToolDefAcceptsAnyValue(t *testing.T) {
	props := customLogToolDef.InputSchema.Properties
	value, ok := props["value"].(map[string]any)
	if !ok {
		t.Fatal("missing 'value' parameter")
	}
	if typ, constrained := value["type"]; constrained {
		t.Errorf("'value' constrained to type %v, want any JSON type", typ)
	}

	found := false
	for _, r := range customLogToolDef.InputSchema.Required {
		if r == "value" {
			found = true
		}
	}
	if !found {
		t.Error("'value' should be required")
	}
}

// TestHandlePrefixWorkflow tests build and check against each other.
func TestHandlePrefixWorkflow(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	updateResult, _ := h.HandleContextUpdate(ctx, makeRequest(map[string]any{
		"workspace":    "test",
		"context_type": "product",
		"content":      map[string]any{"name": "X"},
	}))
	if updateResult.IsError {
		t.Fatalf("setup failed: %v", extractErrorMessage(updateResult))
	}

	buildResult, _ := h.HandlePrefixBuild(ctx, makeRequest(map[string]any{
		"workspace": "test",
	}))
	if buildResult.IsError {
		t.Fatalf("build failed: %v", extractErrorMessage(buildResult))
	}
	buildPayload := resultJSON(t, buildResult)
	fingerprint, _ := buildPayload["fingerprint"].(string)
	if len(fingerprint) != 32 {
		t.Fatalf("fingerprint %q is not 32 hex chars", fingerprint)
	}
	if buildPayload["total_tokens"].(float64) <= 0 {
		t.Fatal("expected positive total_tokens")
	}

	checkResult, _ := h.HandlePrefixCheck(ctx, makeRequest(map[string]any{
		"workspace":   "test",
		"fingerprint": fingerprint,
	}))
	checkPayload := resultJSON(t, checkResult)
	if checkPayload["cache_valid"] != true {
		t.Fatalf("fresh fingerprint reported invalid: %v", checkPayload)
	}
	if checkPayload["recommendation"] != "reuse" {
		t.Fatalf("recommendation = %v, want reuse", checkPayload["recommendation"])
	}

	staleResult, _ := h.HandlePrefixCheck(ctx, makeRequest(map[string]any{
		"workspace":   "test",
		"fingerprint": "not-a-real-fingerprint",
	}))
	stalePayload := resultJSON(t, staleResult)
	if stalePayload["cache_valid"] != false {
		t.Fatal("bogus fingerprint reported valid")
	}
	if stalePayload["recommendation"] != "refresh" {
		t.Fatalf("recommendation = %v, want refresh", stalePayload["recommendation"])
	}
}

// TestHandleDynamic tests budget validation and config defaulting.
func TestHandleDynamic(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	badResult, _ := h.HandleDynamic(ctx, makeRequest(map[string]any{
		"workspace":    "test",
		"query_intent": "anything",
		"token_budget": -1,
	}))
	assertErrorCode(t, badResult, "INVALID_REQUEST")

	// budget 0 falls back to the config default
	okResult, _ := h.HandleDynamic(ctx, makeRequest(map[string]any{
		"workspace":    "test",
		"query_intent": "anything",
	}))
	if okResult.IsError {
		t.Fatalf("dynamic failed: %v", extractErrorMessage(okResult))
	}
	payload := resultJSON(t, okResult)
	used := payload["budget_used"].(float64)
	remaining := payload["budget_remaining"].(float64)
	if int(used+remaining) != cfg.DefaultDynamicBudget {
		t.Fatalf("used %v + remaining %v != default budget %d", used, remaining, cfg.DefaultDynamicBudget)
	}
}

// TestHandleSessionInit tests the session bootstrap payload.
func TestHandleSessionInit(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	result, _ := h.HandleSessionInit(ctx, makeRequest(map[string]any{
		"workspace": "test",
	}))
	if result.IsError {
		t.Fatalf("session init failed: %v", extractErrorMessage(result))
	}
	payload := resultJSON(t, result)
	sessionID, _ := payload["session_id"].(string)
	if len(sessionID) != 26 {
		t.Fatalf("session_id %q is not a ULID", sessionID)
	}
	if _, ok := payload["stable_context"].(map[string]any); !ok {
		t.Fatalf("missing stable_context in payload: %v", payload)
	}
}

// TestHandleExportImport tests markdown portability through the handlers.
func TestHandleExportImport(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	seed, _ := h.HandleDecisionLog(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"summary":   "Adopt sqlite",
	}))
	if seed.IsError {
		t.Fatalf("seed failed: %v", extractErrorMessage(seed))
	}

	dir := filepath.Join(t.TempDir(), "export")
	exportResult, _ := h.HandleExport(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"path":      dir,
	}))
	if exportResult.IsError {
		t.Fatalf("export failed: %v", extractErrorMessage(exportResult))
	}
	if got := resultJSON(t, exportResult)["entries"].(float64); got != 1 {
		t.Fatalf("exported entries = %v, want 1", got)
	}

	target, targetCfg := testSetup(t)
	th := NewHandlers(target, targetCfg)
	importResult, _ := th.HandleImport(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"path":      dir,
	}))
	if importResult.IsError {
		t.Fatalf("import failed: %v", extractErrorMessage(importResult))
	}
	if got := resultJSON(t, importResult)["imported"].(float64); got != 1 {
		t.Fatalf("imported entries = %v, want 1", got)
	}

	missingResult, _ := th.HandleImport(ctx, makeRequest(map[string]any{
		"workspace": "test",
		"path":      filepath.Join(dir, "nope"),
	}))
	assertErrorCode(t, missingResult, "NOT_FOUND")
}

// TestValidateDisabledTools tests unknown-name detection.
func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"prefix_build", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Fatalf("unknown = %v, want [bogus_tool]", unknown)
	}
}

// TestNewServerRegistersTools smoke-tests server construction with a
// disabled tool.
func TestNewServerRegistersTools(t *testing.T) {
	store, cfg := testSetup(t)
	cfg.DisabledTools = []string{"kb_import"}

	s := NewServer(store, cfg, "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

// TestAllToolNames checks the registry exposes the full tool surface.
func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	want := map[string]bool{
		"context_get": true, "context_update": true,
		"decision_log": true, "decision_list": true, "decision_delete": true,
		"progress_log": true, "progress_list": true,
		"pattern_log": true, "pattern_list": true,
		"custom_log": true, "custom_list": true,
		"activity_recent": true, "context_classify": true,
		"prefix_build": true, "prefix_check": true,
		"context_dynamic": true, "session_init": true,
		"kb_export": true, "kb_import": true,
	}
	if len(names) != len(want) {
		t.Fatalf("tool count = %d, want %d", len(names), len(want))
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected tool %q", name)
		}
	}
}
