package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/memhub/cmd.Version=X.Y.Z".
var Version = "0.0.0-dev"

var (
	cfgFile string
	verbose bool
	// logLevel is shared with the config watcher so reloads can change it.
	logLevel = new(slog.LevelVar)
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memhub",
		Short: "memhub - project resolution and context bundles for coding agents",
		Long: `memhub resolves repositories to canonical projects and assembles
budgeted context bundles (global rules, project snapshot and ranked
memories) for coding agents over HTTP and MCP.

Config: ~/.memhub/config.yaml (override with --config or MEMHUB_CONFIG)`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or json5)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(bundleCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	return config.ResolvePath(cfgFile)
}

// loadConfig loads and validates the config, then installs the logger.
// Logs go to stderr so stdout stays clean for command output and MCP stdio.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	setupLogging(os.Stderr, cfg.Log)
	return cfg, nil
}

func setupLogging(w io.Writer, lc config.LogConfig) {
	applyLogLevel(lc.Level)
	slog.SetDefault(slog.New(newLogHandler(w, lc.Format)))
}

func applyLogLevel(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	logLevel.Set(lvl)
}

func newLogHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the memhub version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memhub %s\n", Version)
		},
	}
}
