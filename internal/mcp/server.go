package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmarchant/plinth/internal/config"
	"github.com/rmarchant/plinth/internal/db"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"context_get": {
		def:     contextGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextGet },
	},
	"context_update": {
		def:     contextUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextUpdate },
	},
	"decision_log": {
		def:     decisionLogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecisionLog },
	},
	"decision_list": {
		def:     decisionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecisionList },
	},
	"decision_delete": {
		def:     decisionDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecisionDelete },
	},
	"progress_log": {
		def:     progressLogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProgressLog },
	},
	"progress_list": {
		def:     progressListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProgressList },
	},
	"pattern_log": {
		def:     patternLogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePatternLog },
	},
	"pattern_list": {
		def:     patternListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePatternList },
	},
	"custom_log": {
		def:     customLogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCustomLog },
	},
	"custom_list": {
		def:     customListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCustomList },
	},
	"activity_recent": {
		def:     activityRecentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActivityRecent },
	},
	"context_classify": {
		def:     classifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClassify },
	},
	"prefix_build": {
		def:     prefixBuildToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrefixBuild },
	},
	"prefix_check": {
		def:     prefixCheckToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrefixCheck },
	},
	"context_dynamic": {
		def:     dynamicToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDynamic },
	},
	"session_init": {
		def:     sessionInitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionInit },
	},
	"kb_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"kb_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Plinth tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(store *db.Store, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"plinth",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(store, cfg)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(store *db.Store, cfg *config.Config, version string) error {
	s := NewServer(store, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
