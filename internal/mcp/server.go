// Package mcp exposes project resolution and context bundles as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
)

// Config wires the MCP server. UserID is the caller identity applied to
// every tool call; stdio clients carry no identity of their own.
type Config struct {
	Bundles *bundle.Assembler
	Engine  *resolve.Engine
	UserID  string
	Version string
}

// NewServer registers resolve_project and context_bundle.
func NewServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer(
		"memhub",
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	resolveTool := NewResolveTool(cfg.Engine, cfg.UserID)
	s.AddTool(resolveTool.Definition(), resolveTool.Handle)

	bundleTool := NewBundleTool(cfg.Bundles, cfg.UserID)
	s.AddTool(bundleTool.Definition(), bundleTool.Handle)

	return s
}

const instructions = `memhub serves project memory.
Call context_bundle at the start of a task with workspace_key, the repository's git remote and the user's question as q.
Use resolve_project when only the canonical project key is needed.`
