// Package mcp serves the read-only save operations as MCP tools over stdio.
package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/logging"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"save_stats": {
		def:     statsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
	"save_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"save_revisions": {
		def:     revisionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRevisions },
	},
	"save_find": {
		def:     findToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFind },
	},
	"save_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"mps_read": {
		def:     readToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRead },
	},
	"schema_read": {
		def:     schemaToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSchema },
	},
	"owners_report": {
		def:     ownersToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOwners },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
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

// NewServer creates a new MCP server with the save tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(s *archive.Save, cfg *config.Config, version string) *server.MCPServer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	srv := server.NewMCPServer(
		"brsave",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(s, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	if unknown := ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger := logging.Component("mcp")
		logger.Warn().Strs("tools", unknown).Msg("unknown tools in disabled_tools")
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		srv.AddTool(entry.def, entry.handler(h))
	}

	return srv
}

// Run starts the MCP server using stdio transport.
func Run(s *archive.Save, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(s, cfg, version))
}
