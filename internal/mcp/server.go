package mcp

import (
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/steno/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"render", "tracks", "animation", "document"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"render_submit": {
		def:     renderSubmitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRenderSubmit },
	},
	"render_status": {
		def:     renderStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRenderStatus },
	},
	"render_cancel": {
		def:     renderCancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRenderCancel },
	},
	"render_list": {
		def:     renderListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRenderList },
	},
	"tracks_assign": {
		def:     tracksAssignToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTracksAssign },
	},
	"animation_state": {
		def:     animationStateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnimationState },
	},
	"document_put": {
		def:     documentPutToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentPut },
	},
	"document_get": {
		def:     documentGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentGet },
	},
	"document_list": {
		def:     documentListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentList },
	},
	"document_delete": {
		def:     documentDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentDelete },
	},
	"document_patch_caption": {
		def:     documentPatchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentPatch },
	},
	"document_stylize": {
		def:     documentStylizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentStylize },
	},
	"document_export": {
		def:     documentExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentExport },
	},
	"document_import": {
		def:     documentImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentImport },
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

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "render_submit" → "render").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with steno tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, renders Renderer, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"steno",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, renders, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
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
func Run(db *sql.DB, renders Renderer, cfg *config.Config, version string) error {
	s := NewServer(db, renders, cfg, version)
	return server.ServeStdio(s)
}
