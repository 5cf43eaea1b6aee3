package mcp

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/memhub/internal/resolve"
)

// ResolveTool handles the resolve_project tool.
type ResolveTool struct {
	engine *resolve.Engine
	userID string
}

func NewResolveTool(engine *resolve.Engine, userID string) *ResolveTool {
	return &ResolveTool{engine: engine, userID: userID}
}

// Definition returns the MCP tool definition for resolve_project.
func (t *ResolveTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("resolve_project",
		mcpgo.WithDescription(
			"Resolve repository identifiers to a canonical project. Tries the GitHub remote, "+
				"then the repo root folder name, then an explicit project key. Unknown "+
				"remotes or folders create a project when auto-create is enabled.",
		),
		mcpgo.WithString("workspace_key",
			mcpgo.Required(),
			mcpgo.Description("Workspace key"),
		),
		mcpgo.WithString("github_remote",
			mcpgo.Description("Git remote URL or owner/repo (e.g. git@github.com:acme/api.git)"),
		),
		mcpgo.WithString("github_owner",
			mcpgo.Description("GitHub owner, used with github_repo instead of github_remote"),
		),
		mcpgo.WithString("github_repo",
			mcpgo.Description("GitHub repository name"),
		),
		mcpgo.WithString("github_host",
			mcpgo.Description("Git host for owner/repo selectors (default github.com)"),
		),
		mcpgo.WithString("repo_root_slug",
			mcpgo.Description("Repository root folder name"),
		),
		mcpgo.WithString("manual_project_key",
			mcpgo.Description("Explicit project key"),
		),
	)
}

// Handle processes the resolve_project tool call.
func (t *ResolveTool) Handle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	sel := resolve.Selectors{
		WorkspaceKey:     req.GetString("workspace_key", ""),
		GithubRemote:     githubArg(req),
		RepoRootSlug:     req.GetString("repo_root_slug", ""),
		ManualProjectKey: req.GetString("manual_project_key", ""),
	}
	res, err := t.engine.Resolve(withCaller(ctx, t.userID), sel)
	if err != nil {
		return errorResult("resolve_project", err), nil
	}
	return jsonResult(res)
}

func githubArg(req mcpgo.CallToolRequest) *resolve.GithubRemote {
	g := resolve.GithubRemote{
		Owner:      req.GetString("github_owner", ""),
		Repo:       req.GetString("github_repo", ""),
		Host:       req.GetString("github_host", ""),
		Normalized: req.GetString("github_remote", ""),
	}
	if g.Owner == "" && g.Repo == "" && g.Normalized == "" {
		return nil
	}
	return &g
}
