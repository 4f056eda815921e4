package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Descriptions are what MCP clients surface to the model,
// so they say when to reach for a tool, not just what it does.

var contextGetToolDef = mcp.NewTool("context_get",
	mcp.WithDescription(
		"Get the product or active context for a workspace. Product context holds "+
			"long-lived project facts (name, goals, architecture); active context holds "+
			"the current session focus.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("context_type",
		mcp.Required(),
		mcp.Description("Which context to read: \"product\" or \"active\""),
		mcp.Enum("product", "active"),
	),
)

var contextUpdateToolDef = mcp.NewTool("context_update",
	mcp.WithDescription(
		"Update the product or active context. Provide exactly one of content "+
			"(full overwrite) or patch_content (partial update; a null value removes "+
			"that key). Every update is versioned.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("context_type",
		mcp.Required(),
		mcp.Description("Which context to update: \"product\" or \"active\""),
		mcp.Enum("product", "active"),
	),
	mcp.WithObject("content",
		mcp.Description("Full replacement content"),
	),
	mcp.WithObject("patch_content",
		mcp.Description("Keys to add or update; a JSON null value removes the key"),
	),
	mcp.WithString("change_source",
		mcp.Description("Free-form note on what drove the change"),
	),
)

var decisionLogToolDef = mcp.NewTool("decision_log",
	mcp.WithDescription(
		"Log an architectural or implementation decision. Recent decisions feed "+
			"dynamic context assembly.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("summary",
		mcp.Required(),
		mcp.Description("One-line summary of the decision"),
	),
	mcp.WithString("rationale",
		mcp.Description("Why this decision was made"),
	),
	mcp.WithString("implementation_details",
		mcp.Description("How the decision is being implemented"),
	),
	mcp.WithArray("tags",
		mcp.Description("Free-form tags"),
	),
)

var decisionListToolDef = mcp.NewTool("decision_list",
	mcp.WithDescription("List logged decisions, most recent first."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (0 = all)"),
	),
)

var decisionDeleteToolDef = mcp.NewTool("decision_delete",
	mcp.WithDescription("Delete a logged decision by ID."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithNumber("id",
		mcp.Required(),
		mcp.Description("Decision ID to delete"),
	),
)

var progressLogToolDef = mcp.NewTool("progress_log",
	mcp.WithDescription("Log a task-progress entry (TODO, IN_PROGRESS, or DONE)."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("Task status"),
		mcp.Enum("TODO", "IN_PROGRESS", "DONE"),
	),
	mcp.WithString("description",
		mcp.Required(),
		mcp.Description("What the task is"),
	),
	mcp.WithNumber("parent_id",
		mcp.Description("Optional parent task ID for subtasks"),
	),
)

var progressListToolDef = mcp.NewTool("progress_list",
	mcp.WithDescription("List progress entries, most recent first, optionally filtered by status."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("status",
		mcp.Description("Filter by status (TODO, IN_PROGRESS, DONE)"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (0 = all)"),
	),
)

var patternLogToolDef = mcp.NewTool("pattern_log",
	mcp.WithDescription(
		"Log a named system or architecture pattern. The most recently modified "+
			"patterns enter the stable context prefix.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Pattern name, unique per workspace"),
	),
	mcp.WithString("description",
		mcp.Description("What the pattern is and where it applies"),
	),
	mcp.WithArray("tags",
		mcp.Description("Free-form tags"),
	),
)

var patternListToolDef = mcp.NewTool("pattern_list",
	mcp.WithDescription("List system patterns, most recently modified first."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of patterns to return (0 = all)"),
	),
)

var customLogToolDef = mcp.NewTool("custom_log",
	mcp.WithDescription(
		"Store a freeform knowledge entry under a category and key. A cache-worthiness "+
			"score is computed from size, category, and key; set cache_hint to pin the "+
			"entry into the stable context prefix.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("category",
		mcp.Required(),
		mcp.Description("Category to file the entry under (e.g. ProjectGlossary, Specifications)"),
	),
	mcp.WithString("key",
		mcp.Required(),
		mcp.Description("Entry key, unique within the category"),
	),
	mcp.WithBoolean("cache_hint",
		mcp.Description("Pin this entry into the stable context prefix"),
	),
	withAnyValue("value", "Entry value, any JSON type", true),
)

var customListToolDef = mcp.NewTool("custom_list",
	mcp.WithDescription("List custom knowledge entries, optionally filtered by category."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("category",
		mcp.Description("Category to filter by (empty = all)"),
	),
)

var activityRecentToolDef = mcp.NewTool("activity_recent",
	mcp.WithDescription("Summarize recent knowledge activity: new decisions, progress, and patterns."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithNumber("hours",
		mcp.Description("Look-back window in hours (default: 24)"),
	),
	mcp.WithNumber("limit_per_type",
		mcp.Description("Maximum items per type (default: 5)"),
	),
)

var classifyToolDef = mcp.NewTool("context_classify",
	mcp.WithDescription(
		"Classify workspace knowledge into cache-priority tiers (high, medium, low) "+
			"with per-entry token estimates. Use this to plan what belongs in a "+
			"reusable prompt prefix.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
)

var prefixBuildToolDef = mcp.NewTool("prefix_build",
	mcp.WithDescription(
		"Build the stable context prefix: a deterministic, fingerprinted rendering "+
			"of the workspace's most stable knowledge (project context, top patterns, "+
			"cache-flagged specs). Identical knowledge always yields identical bytes, "+
			"so an inference runtime can reuse its prompt cache.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("format",
		mcp.Description("Assembly format (default: \"ollama_optimized\")"),
	),
)

var prefixCheckToolDef = mcp.NewTool("prefix_check",
	mcp.WithDescription(
		"Check whether a previously built stable prefix is still valid. Returns the "+
			"current fingerprint, what changed if it is stale, and a reuse/refresh "+
			"recommendation.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("fingerprint",
		mcp.Description("Fingerprint from a previous prefix_build"),
	),
)

var dynamicToolDef = mcp.NewTool("context_dynamic",
	mcp.WithDescription(
		"Assemble volatile context for a query within a token budget. Sections are "+
			"chosen from the query intent (active context, recent decisions, current "+
			"progress, relevant technical decisions) and never exceed the budget.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("query_intent",
		mcp.Required(),
		mcp.Description("What the upcoming query is about"),
	),
	mcp.WithNumber("token_budget",
		mcp.Description("Maximum tokens for the assembled context (default from config)"),
	),
)

var sessionInitToolDef = mcp.NewTool("session_init",
	mcp.WithDescription(
		"Initialize an assistant session: builds the stable context prefix, snapshots "+
			"the last day of knowledge activity, and returns a session ID with usage "+
			"recommendations. Call once at session start.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
)

var exportToolDef = mcp.NewTool("kb_export",
	mcp.WithDescription("Export the workspace knowledge base as markdown files into a directory."),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("path",
		mcp.Description("Target directory (default: ~/.plinth/exports/<workspace>-<timestamp>)"),
	),
)

var importToolDef = mcp.NewTool("kb_import",
	mcp.WithDescription(
		"Import a markdown knowledge-base export back into a workspace. Malformed "+
			"files are skipped with warnings.",
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace name (default: \"default\")"),
	),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Directory containing a previous kb_export"),
	),
)

// withAnyValue declares a property with no type constraint, for arguments
// that accept any JSON value.
func withAnyValue(name, description string, required bool) mcp.ToolOption {
	return func(t *mcp.Tool) {
		t.InputSchema.Properties[name] = map[string]any{
			"description": description,
		}
		if required {
			t.InputSchema.Required = append(t.InputSchema.Required, name)
		}
	}
}
