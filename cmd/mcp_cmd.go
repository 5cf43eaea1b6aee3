package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve resolve_project and context_bundle as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if userID != "" {
				cfg.MCP.UserID = userID
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcp.NewServer(mcp.Config{
				Bundles: a.bundles,
				Engine:  a.engine,
				UserID:  cfg.MCP.UserID,
				Version: Version,
			})
			stdio := server.NewStdioServer(s)
			return stdio.Listen(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "caller identity for tool calls (overrides mcp.user_id)")
	return cmd
}
