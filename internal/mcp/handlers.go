package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmarchant/plinth/internal/cache"
	"github.com/rmarchant/plinth/internal/config"
	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
	"github.com/rmarchant/plinth/internal/markdown"
)

// suggestCacheThreshold is the score at or above which custom_log suggests
// flagging the entry for the stable prefix.
const suggestCacheThreshold = 50

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store *db.Store
	cfg   *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *db.Store, cfg *config.Config) *Handlers {
	return &Handlers{store: store, cfg: cfg}
}

// decode round-trips the raw tool arguments through JSON into a typed
// request struct, so field names and types follow the wire schema.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}

// Request types for each tool

// ContextGetRequest represents the arguments for context_get.
type ContextGetRequest struct {
	Workspace   string `json:"workspace,omitempty"`
	ContextType string `json:"context_type"`
}

// ContextUpdateRequest represents the arguments for context_update.
type ContextUpdateRequest struct {
	Workspace    string         `json:"workspace,omitempty"`
	ContextType  string         `json:"context_type"`
	Content      *content.Value `json:"content,omitempty"`
	PatchContent *content.Value `json:"patch_content,omitempty"`
	ChangeSource string         `json:"change_source,omitempty"`
}

// DecisionLogRequest represents the arguments for decision_log.
type DecisionLogRequest struct {
	Workspace             string   `json:"workspace,omitempty"`
	Summary               string   `json:"summary"`
	Rationale             string   `json:"rationale,omitempty"`
	ImplementationDetails string   `json:"implementation_details,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
}

// DecisionListRequest represents the arguments for decision_list.
type DecisionListRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// DecisionDeleteRequest represents the arguments for decision_delete.
type DecisionDeleteRequest struct {
	Workspace string `json:"workspace,omitempty"`
	ID        int64  `json:"id"`
}

// ProgressLogRequest represents the arguments for progress_log.
type ProgressLogRequest struct {
	Workspace   string `json:"workspace,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

// ProgressListRequest represents the arguments for progress_list.
type ProgressListRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// PatternLogRequest represents the arguments for pattern_log.
type PatternLogRequest struct {
	Workspace   string   `json:"workspace,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PatternListRequest represents the arguments for pattern_list.
type PatternListRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// CustomLogRequest represents the arguments for custom_log.
type CustomLogRequest struct {
	Workspace string        `json:"workspace,omitempty"`
	Category  string        `json:"category"`
	Key       string        `json:"key"`
	Value     content.Value `json:"value"`
	CacheHint *bool         `json:"cache_hint,omitempty"`
}

// CustomListRequest represents the arguments for custom_list.
type CustomListRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Category  string `json:"category,omitempty"`
}

// ActivityRecentRequest represents the arguments for activity_recent.
type ActivityRecentRequest struct {
	Workspace    string `json:"workspace,omitempty"`
	Hours        int    `json:"hours,omitempty"`
	LimitPerType int    `json:"limit_per_type,omitempty"`
}

// ClassifyRequest represents the arguments for context_classify.
type ClassifyRequest struct {
	Workspace string `json:"workspace,omitempty"`
}

// PrefixBuildRequest represents the arguments for prefix_build.
type PrefixBuildRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Format    string `json:"format,omitempty"`
}

// PrefixCheckRequest represents the arguments for prefix_check.
type PrefixCheckRequest struct {
	Workspace   string `json:"workspace,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// DynamicRequest represents the arguments for context_dynamic.
type DynamicRequest struct {
	Workspace   string `json:"workspace,omitempty"`
	QueryIntent string `json:"query_intent"`
	TokenBudget int    `json:"token_budget,omitempty"`
}

// SessionInitRequest represents the arguments for session_init.
type SessionInitRequest struct {
	Workspace string `json:"workspace,omitempty"`
}

// ExportRequest represents the arguments for kb_export.
type ExportRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Path      string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for kb_import.
type ImportRequest struct {
	Workspace string `json:"workspace,omitempty"`
	Path      string `json:"path"`
}

// Handler implementations

// HandleContextGet handles the context_get tool call.
func (h *Handlers) HandleContextGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContextGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var value content.Value
	switch input.ContextType {
	case "product":
		value, err = h.store.ProjectContext(input.Workspace)
	case "active":
		value, err = h.store.ActiveContext(input.Workspace)
	default:
		return errorResult(errors.NewInvalidRequest("context_type must be \"product\" or \"active\"")), nil
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"context_type": input.ContextType,
		"content":      value,
	})
}

// HandleContextUpdate handles the context_update tool call.
func (h *Handlers) HandleContextUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContextUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	update := db.ContextUpdate{
		Content:      input.Content,
		Patch:        input.PatchContent,
		ChangeSource: input.ChangeSource,
	}
	switch input.ContextType {
	case "product":
		err = h.store.UpdateProjectContext(input.Workspace, update)
	case "active":
		err = h.store.UpdateActiveContext(input.Workspace, update)
	default:
		return errorResult(errors.NewInvalidRequest("context_type must be \"product\" or \"active\"")), nil
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"updated": true, "context_type": input.ContextType})
}

// HandleDecisionLog handles the decision_log tool call.
func (h *Handlers) HandleDecisionLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecisionLogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id, err := h.store.LogDecision(input.Workspace, knowledge.Decision{
		Summary:               input.Summary,
		Rationale:             input.Rationale,
		ImplementationDetails: input.ImplementationDetails,
		Tags:                  input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"id": id})
}

// HandleDecisionList handles the decision_list tool call.
func (h *Handlers) HandleDecisionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecisionListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	decisions, err := h.store.Decisions(input.Workspace, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"decisions": decisions, "count": len(decisions)})
}

// HandleDecisionDelete handles the decision_delete tool call.
func (h *Handlers) HandleDecisionDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecisionDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.store.DeleteDecision(input.Workspace, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"deleted": true, "id": input.ID})
}

// HandleProgressLog handles the progress_log tool call.
func (h *Handlers) HandleProgressLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgressLogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id, err := h.store.LogProgress(input.Workspace, knowledge.ProgressEntry{
		Status:      input.Status,
		Description: input.Description,
		ParentID:    input.ParentID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"id": id})
}

// HandleProgressList handles the progress_list tool call.
func (h *Handlers) HandleProgressList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgressListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	entries, err := h.store.Progress(input.Workspace, input.Status, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"entries": entries, "count": len(entries)})
}

// HandlePatternLog handles the pattern_log tool call.
func (h *Handlers) HandlePatternLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PatternLogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	id, err := h.store.LogPattern(input.Workspace, knowledge.Pattern{
		Name:        input.Name,
		Description: input.Description,
		Tags:        input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"id": id})
}

// HandlePatternList handles the pattern_list tool call.
func (h *Handlers) HandlePatternList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PatternListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	patterns, err := h.store.SystemPatterns(input.Workspace, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"patterns": patterns, "count": len(patterns)})
}

// HandleCustomLog handles the custom_log tool call. The cache score is
// always computed and stored; the caller may pin the hint explicitly,
// otherwise the entry is only suggested for caching, never auto-flagged.
func (h *Handlers) HandleCustomLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CustomLogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	score := cache.Score(input.Value, input.Category, input.Key)
	hint := false
	if input.CacheHint != nil {
		hint = *input.CacheHint
	}

	id, err := h.store.LogCustomData(input.Workspace, knowledge.CustomEntry{
		Category:   input.Category,
		Key:        input.Key,
		Value:      input.Value,
		CacheHint:  hint,
		CacheScore: score,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":                 id,
		"cache_score":        score,
		"cache_hint":         hint,
		"suggested_to_cache": score >= suggestCacheThreshold,
	})
}

// HandleCustomList handles the custom_list tool call.
func (h *Handlers) HandleCustomList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CustomListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	entries, err := h.store.CustomData(input.Workspace, input.Category)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"entries": entries, "count": len(entries)})
}

// HandleActivityRecent handles the activity_recent tool call.
func (h *Handlers) HandleActivityRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ActivityRecentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	hours := input.Hours
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()

	activity, err := h.store.RecentActivity(input.Workspace, since, input.LimitPerType)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(activity)
}

// HandleClassify handles the context_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClassifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	entries := cache.Classify(h.store, input.Workspace)
	return successResult(map[string]any{"entries": entries, "count": len(entries)})
}

// HandlePrefixBuild handles the prefix_build tool call.
func (h *Handlers) HandlePrefixBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PrefixBuildRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	format := input.Format
	if format == "" {
		format = cache.FormatOllamaOptimized
	}

	return successResult(cache.BuildStablePrefix(h.store, input.Workspace, format))
}

// HandlePrefixCheck handles the prefix_check tool call.
func (h *Handlers) HandlePrefixCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PrefixCheckRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(cache.CheckValidity(h.store, input.Workspace, input.Fingerprint))
}

// HandleDynamic handles the context_dynamic tool call.
func (h *Handlers) HandleDynamic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DynamicRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	budget := input.TokenBudget
	if budget == 0 {
		budget = h.cfg.DefaultDynamicBudget
	}

	bundle, err := cache.AssembleDynamic(h.store, input.Workspace, input.QueryIntent, budget)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(bundle)
}

// HandleSessionInit handles the session_init tool call.
func (h *Handlers) HandleSessionInit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionInitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(cache.InitializeSession(h.store, input.Workspace))
}

// HandleExport handles the kb_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := markdown.Export(h.store, input.Workspace, input.Path)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the kb_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := markdown.Import(h.store, input.Workspace, input.Path)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if perr, ok := err.(*errors.PlinthError); ok {
		errorObj := map[string]any{
			"code":    perr.Code,
			"message": perr.Message,
			"status":  perr.Status,
		}
		if perr.Code != errors.ErrInternal && perr.Details != nil {
			errorObj["details"] = perr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	body, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(body)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
