package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/config"
	memhttp "github.com/nextlevelbuilder/memhub/internal/http"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (context bundles, resolution, health, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := config.NewWatcher(resolveConfigPath())
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
	} else {
		watcher.OnChange(a.reload)
		if err := watcher.Start(); err != nil {
			slog.Warn("config hot reload unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	limiter := memhttp.NewRateLimiter(cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst)
	defer limiter.Close()

	api := memhttp.NewServer(memhttp.Config{
		Bundles:        a.bundles,
		Engine:         a.engine,
		Metrics:        a.metrics,
		DB:             a.db,
		Token:          cfg.Server.Token,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout(),
		Version:        Version,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.Token == "" {
		slog.Warn("server.token is empty; API is unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("memhub listening", "addr", cfg.Server.Listen, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
