package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/memhub/internal/access"
	"github.com/nextlevelbuilder/memhub/internal/audit"
	"github.com/nextlevelbuilder/memhub/internal/budget"
	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/cache"
	"github.com/nextlevelbuilder/memhub/internal/config"
	"github.com/nextlevelbuilder/memhub/internal/embedding"
	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/monorepo"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/rules"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// app holds the wired engine shared by serve, mcp, resolve and bundle.
type app struct {
	cfg      *config.Config
	db       *sqlstore.DB
	stores   *store.Stores
	settings *settings.Provider
	engine   *resolve.Engine
	bundles  *bundle.Assembler
	metrics  *metrics.Metrics
	audit    *audit.Collector
	redis    *cache.Redis
	tracer   *tracing.Provider
}

// buildApp opens storage and wires every component from cfg. Close releases
// everything buildApp started.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	stores, db, err := sqlstore.NewStores(store.StoreConfig{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		AutoMigrate: cfg.Database.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.Driver == sqlstore.DialectPostgres && cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	a := &app{cfg: cfg, db: db, stores: stores}

	if cfg.Telemetry.Enabled {
		tp, err := tracing.Setup(ctx, tracing.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			Headers:     cfg.Telemetry.Headers,
		})
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			a.tracer = tp
			slog.Info("OpenTelemetry OTLP export enabled", "endpoint", cfg.Telemetry.Endpoint, "protocol", cfg.Telemetry.Protocol)
		}
	}

	var settingsCache cache.Cache
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "memhub:", cfg.SettingsTTL())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rc
		settingsCache = rc
	} else {
		settingsCache = cache.NewLRU(cfg.Cache.LRUSize, cfg.SettingsTTL())
	}
	a.settings = settings.NewProvider(stores.Settings, settingsCache)
	overlay, err := cfg.DefaultsOverlay()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.settings.SetOverlay(overlay)

	a.audit = audit.NewCollector(stores.Audit)
	a.audit.Start()
	a.metrics = metrics.New(a.audit.Dropped)

	guard := access.NewGuard(stores.Access, cfg.Server.AllowAnonymous)
	a.engine = resolve.NewEngine(resolve.Config{
		Projects: stores.Projects,
		Guard:    guard,
		Settings: a.settings,
		Audit:    a.audit,
		Metrics:  a.metrics,
	})

	conditions, err := rules.NewConditionEvaluator(0)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("rule conditions: %w", err)
	}

	var (
		queryEmbedder bundle.QueryEmbedder
		ruleEmbedder  rules.Embedder
	)
	if cfg.Embedding.Provider == "openai" {
		client := embedding.NewOpenAIClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.EmbeddingTimeout())
		cached, err := embedding.NewCached(client, cfg.Embedding.CacheSize)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		queryEmbedder, ruleEmbedder = cached, cached
		slog.Info("query embeddings enabled", "model", client.Model())
	}

	var root fs.FS
	if cfg.Monorepo.LocalRoot != "" {
		root = os.DirFS(cfg.Monorepo.LocalRoot)
	}

	a.bundles = bundle.New(bundle.Config{
		Engine:     a.engine,
		Guard:      guard,
		Settings:   a.settings,
		Classifier: monorepo.NewClassifier(stores.Projects, root),
		Retriever:  retrieval.NewRetriever(stores.Memory),
		Router: rules.NewRouter(rules.RouterConfig{
			Rules:      stores.Rules,
			Conditions: conditions,
			Embedder:   ruleEmbedder,
			Metrics:    a.metrics,
		}),
		Advisor:    persona.NewAdvisor(stores.Memory),
		Memory:     stores.Memory,
		ActiveWork: stores.ActiveWork,
		Embedder:   queryEmbedder,
		Tokens:     budget.NewTokenCounter(""),
		Metrics:    a.metrics,
	})
	return a, nil
}

// reload applies the parts of a new config that can change without restart:
// the defaults overlay and the log level.
func (a *app) reload(cfg *config.Config) {
	overlay, err := cfg.DefaultsOverlay()
	if err != nil {
		slog.Error("config reload: defaults overlay", "error", err)
		return
	}
	a.settings.SetOverlay(overlay)
	applyLogLevel(cfg.Log.Level)
	slog.Info("config reload applied", "log_level", cfg.Log.Level, "defaults_keys", len(cfg.Defaults))
}

func (a *app) Close() {
	if a.audit != nil {
		a.audit.Stop()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			slog.Warn("tracer shutdown", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
