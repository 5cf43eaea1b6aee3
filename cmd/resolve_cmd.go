package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/config"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

func resolveCmd() *cobra.Command {
	var (
		workspace, github, host, slug, manual, user string
		priority                                    int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve repository identifiers to a canonical project",
		Example: `  memhub resolve --workspace acme --github acme/api
  memhub resolve --workspace acme --github git@gitlab.example.com:team/svc.git
  memhub resolve --workspace acme --slug api --manual legacy-api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := callerContext(cmd.Context(), user, cfg)
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sel := resolve.Selectors{
				WorkspaceKey:     workspace,
				GithubRemote:     githubSelector(github, host),
				RepoRootSlug:     slug,
				ManualProjectKey: manual,
			}
			if cmd.Flags().Changed("priority") {
				sel.Priority = &priority
			}
			res, err := a.engine.Resolve(ctx, sel)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace key")
	cmd.Flags().StringVar(&github, "github", "", "git remote URL or owner/repo")
	cmd.Flags().StringVar(&host, "host", "", "git host when --github is owner/repo")
	cmd.Flags().StringVar(&slug, "slug", "", "repository root folder name")
	cmd.Flags().StringVar(&manual, "manual", "", "explicit project key")
	cmd.Flags().StringVar(&user, "user", "", "caller identity (defaults to mcp.user_id)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority for mappings created by this call")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

// githubSelector accepts a full remote URL or owner/repo.
func githubSelector(remote, host string) *resolve.GithubRemote {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return nil
	}
	if !strings.Contains(remote, "://") && !strings.Contains(remote, "@") {
		if owner, repo, ok := strings.Cut(remote, "/"); ok && !strings.Contains(repo, "/") {
			return &resolve.GithubRemote{Owner: owner, Repo: repo, Host: host}
		}
	}
	return &resolve.GithubRemote{Normalized: remote, Host: host}
}

// callerContext attaches the CLI caller identity; an empty flag falls back to
// the configured MCP identity.
func callerContext(ctx context.Context, user string, cfg *config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if user == "" {
		user = cfg.MCP.UserID
	}
	if user == "" {
		return ctx
	}
	return store.WithUserID(ctx, user)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
