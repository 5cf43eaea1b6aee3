package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/budget"
	"github.com/nextlevelbuilder/memhub/internal/cache"
	"github.com/nextlevelbuilder/memhub/internal/config"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and optional integrations",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runDoctor(ctx context.Context, out io.Writer) {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(out, "memhub doctor")
	fmt.Fprintf(out, "  Version:  %s (api %d)\n", Version, protocol.APIVersion)
	fmt.Fprintf(out, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
	fmt.Fprintln(out)

	cfgPath := resolveConfigPath()
	fmt.Fprintf(out, "  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(out, " (NOT FOUND, using defaults)")
	} else {
		fmt.Fprintln(out, " (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(out, "  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  Config invalid: %s\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Storage:")
	checkDatabase(out, cfg)
	checkRedis(ctx, out, cfg)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Integrations:")
	switch cfg.Embedding.Provider {
	case "openai":
		model := cfg.Embedding.Model
		if model == "" {
			model = "(default)"
		}
		fmt.Fprintf(out, "    %-12s openai %s, key %s\n", "Embeddings:", model, maskSecret(cfg.Embedding.APIKey))
	default:
		fmt.Fprintf(out, "    %-12s disabled (keyword-only retrieval)\n", "Embeddings:")
	}
	if cfg.Telemetry.Enabled {
		fmt.Fprintf(out, "    %-12s %s via %s\n", "Tracing:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Fprintf(out, "    %-12s disabled\n", "Tracing:")
	}
	tc := budget.NewTokenCounter("")
	if tc.Exact() {
		fmt.Fprintf(out, "    %-12s cl100k_base\n", "Tokenizer:")
	} else {
		fmt.Fprintf(out, "    %-12s unavailable, estimating chars/4\n", "Tokenizer:")
	}
	if cfg.Server.Token == "" {
		fmt.Fprintf(out, "    %-12s NONE (HTTP API is unauthenticated)\n", "API token:")
	} else {
		fmt.Fprintf(out, "    %-12s %s\n", "API token:", maskSecret(cfg.Server.Token))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Doctor check complete.")
}

func checkDatabase(out io.Writer, cfg *config.Config) {
	db, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(out, "    %-12s %s: %s\n", "Database:", cfg.Database.Driver, err)
		return
	}
	defer db.Close()
	v, dirty, err := sqlstore.MigrationVersion(db)
	switch {
	case err != nil:
		fmt.Fprintf(out, "    %-12s %s (OK), schema unknown: %s\n", "Database:", db.Dialect(), err)
	case v == 0:
		fmt.Fprintf(out, "    %-12s %s (OK), no migrations applied; run `memhub migrate up`\n", "Database:", db.Dialect())
	case dirty:
		fmt.Fprintf(out, "    %-12s %s (OK), schema %d DIRTY\n", "Database:", db.Dialect(), v)
	default:
		fmt.Fprintf(out, "    %-12s %s (OK), schema %d\n", "Database:", db.Dialect(), v)
	}
}

func checkRedis(ctx context.Context, out io.Writer, cfg *config.Config) {
	if cfg.Cache.RedisURL == "" {
		fmt.Fprintf(out, "    %-12s in-process LRU (%d entries)\n", "Cache:", cfg.Cache.LRUSize)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "memhub:", cfg.SettingsTTL())
	if err != nil {
		fmt.Fprintf(out, "    %-12s redis UNREACHABLE: %s\n", "Cache:", err)
		return
	}
	rc.Close()
	fmt.Fprintf(out, "    %-12s redis (OK)\n", "Cache:")
}

// maskSecret keeps the first and last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
