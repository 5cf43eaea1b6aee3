package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

func bundleCmd() *cobra.Command {
	var (
		req          bundle.Request
		github, host string
		types        []string
		user         string
		budget       int
	)
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Assemble a context bundle and print it as JSON",
		Example: `  memhub bundle --workspace acme --project github:acme/api --q "how do we talk to postgres"
  memhub bundle --workspace acme --github acme/web --subpath apps/admin --mode debug --budget 1200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			req.GithubRemote = githubSelector(github, host)
			if cmd.Flags().Changed("budget") {
				req.Budget = &budget
			}
			for _, name := range types {
				t, ok := store.ParseMemoryType(strings.TrimSpace(name))
				if !ok {
					return apperr.Invalid("types", "unknown memory type %q", name)
				}
				req.Types = append(req.Types, t)
			}

			ctx := callerContext(cmd.Context(), user, cfg)
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.bundles.Assemble(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.WorkspaceKey, "workspace", "", "workspace key")
	f.StringVar(&req.ProjectKey, "project", "", "canonical project key")
	f.StringVar(&github, "github", "", "git remote URL or owner/repo (when --project is omitted)")
	f.StringVar(&host, "host", "", "git host when --github is owner/repo")
	f.StringVar(&req.RepoRootSlug, "slug", "", "repository root folder name (when --project is omitted)")
	f.StringVar(&req.Query, "q", "", "query text")
	f.IntVar(&budget, "budget", 0, "character budget (300-8000, default from settings)")
	f.StringVar(&req.Mode, "mode", "", "default or debug")
	f.StringVar(&req.CurrentSubpath, "subpath", "", "current path inside the repository")
	f.StringVar(&req.Persona, "persona", "", "persona override: neutral, author, reviewer, architect")
	f.StringVar(&req.SearchMode, "search-mode", "", "hybrid, semantic or keyword")
	f.IntVar(&req.Limit, "limit", 0, "maximum retrieval items")
	f.StringSliceVar(&types, "types", nil, "memory types to include")
	f.StringVar(&user, "user", "", "caller identity (defaults to mcp.user_id)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}
