package mcp

import (
	"context"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// BundleTool handles the context_bundle tool.
type BundleTool struct {
	bundles *bundle.Assembler
	userID  string
}

func NewBundleTool(bundles *bundle.Assembler, userID string) *BundleTool {
	return &BundleTool{bundles: bundles, userID: userID}
}

// Definition returns the MCP tool definition for context_bundle.
func (t *BundleTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("context_bundle",
		mcpgo.WithDescription(
			"Assemble a budgeted context bundle for a project: global rules, project "+
				"snapshot and ranked memory items. Call at the start of a task with the "+
				"current question as q.",
		),
		mcpgo.WithString("workspace_key", mcpgo.Required(), mcpgo.Description("Workspace key")),
		mcpgo.WithString("project_key", mcpgo.Description("Canonical project key; omit to resolve from github_remote or repo_root_slug")),
		mcpgo.WithString("github_remote", mcpgo.Description("Git remote URL or owner/repo")),
		mcpgo.WithString("repo_root_slug", mcpgo.Description("Repository root folder name")),
		mcpgo.WithString("q", mcpgo.Description("Natural-language query")),
		mcpgo.WithString("current_subpath", mcpgo.Description("Path inside the repository the caller is working in")),
		mcpgo.WithNumber("budget", mcpgo.Description("Character budget, 300-8000 (default from settings)")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum retrieval items (1-50)")),
		mcpgo.WithString("mode", mcpgo.Enum("default", "debug"), mcpgo.Description("debug adds score and budget breakdowns")),
		mcpgo.WithString("search_mode", mcpgo.Enum("hybrid", "semantic", "keyword")),
		mcpgo.WithString("persona", mcpgo.Enum("neutral", "author", "reviewer", "architect"), mcpgo.Description("Override the recommended persona")),
		mcpgo.WithString("types", mcpgo.Description("Comma-separated memory types to include")),
	)
}

// Handle processes the context_bundle tool call.
func (t *BundleTool) Handle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	r := bundle.Request{
		WorkspaceKey:   req.GetString("workspace_key", ""),
		ProjectKey:     req.GetString("project_key", ""),
		RepoRootSlug:   req.GetString("repo_root_slug", ""),
		Query:          req.GetString("q", ""),
		CurrentSubpath: req.GetString("current_subpath", ""),
		Mode:           req.GetString("mode", ""),
		SearchMode:     req.GetString("search_mode", ""),
		Persona:        req.GetString("persona", ""),
		Budget:         optIntArg(req, "budget"),
		Limit:          intArg(req, "limit", 0),
		GithubRemote:   githubArg(req),
	}
	for _, name := range listArg(req, "types") {
		mt, ok := store.ParseMemoryType(strings.TrimSpace(name))
		if !ok {
			return errorResult("context_bundle", apperr.Invalid("types", "unknown memory type %q", name)), nil
		}
		r.Types = append(r.Types, mt)
	}
	resp, err := t.bundles.Assemble(withCaller(ctx, t.userID), r)
	if err != nil {
		return errorResult("context_bundle", err), nil
	}
	return jsonResult(resp)
}
