package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8787" || cfg.Database.Driver != "sqlite" {
		t.Errorf("defaults not applied: %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "memhub.yaml", `
server:
  listen: ":9000"
  rate_limit_rpm: 30
database:
  driver: postgres
  dsn: postgres://u:p@db/memhub
defaults:
  search_hybrid_alpha: 0.7
  bundle_token_budget_total: 2000
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":9000" || cfg.Server.RateLimitRPM != 30 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RateLimitBurst != 20 {
		t.Errorf("unset field lost its default: burst = %d", cfg.Server.RateLimitBurst)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	overlay, err := cfg.DefaultsOverlay()
	if err != nil {
		t.Fatalf("DefaultsOverlay: %v", err)
	}
	var m map[string]float64
	if err := json.Unmarshal(overlay, &m); err != nil {
		t.Fatalf("overlay not JSON: %v", err)
	}
	if m["search_hybrid_alpha"] != 0.7 || m["bundle_token_budget_total"] != 2000 {
		t.Errorf("overlay = %v", m)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_JSON5(t *testing.T) {
	p := writeFile(t, "memhub.json5", `{
  // comments and trailing commas are fine
  server: {listen: ":7000", request_timeout_ms: 2500,},
  log: {level: "debug", format: "json"},
}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":7000" || cfg.RequestTimeout() != 2500*time.Millisecond {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_ParseError(t *testing.T) {
	p := writeFile(t, "bad.yaml", "server: [unclosed")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMHUB_DATABASE_DSN", "/tmp/x.db")
	t.Setenv("MEMHUB_TOKEN", "tok")
	t.Setenv("MEMHUB_LOG_LEVEL", "warn")
	p := writeFile(t, "c.yaml", "server:\n  token: from-file\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "/tmp/x.db" || cfg.Server.Token != "tok" || cfg.Log.Level != "warn" {
		t.Errorf("env not applied: dsn=%q token=%q level=%q", cfg.Database.DSN, cfg.Server.Token, cfg.Log.Level)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"dsn", func(c *Config) { c.Database.DSN = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Enabled = true }},
		{"defaults overlay", func(c *Config) { c.Defaults = map[string]any{"search_default_mode": "fuzzy"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperr.IsValidation(err) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/etc/memhub.yaml"); got != "/etc/memhub.yaml" {
		t.Errorf("flag path = %q", got)
	}
	t.Setenv(EnvConfigPath, "/opt/memhub.json5")
	if got := ResolvePath(""); got != "/opt/memhub.json5" {
		t.Errorf("env path = %q", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Server.Token = "secret"
	cfg.Embedding.APIKey = "sk-live"
	cfg.Cache.RedisURL = "redis://user:pw@cache:6379/0"
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://u:pw@db:5432/memhub"

	r := cfg.Redacted()
	if r.Server.Token != "***" || r.Embedding.APIKey != "***" {
		t.Errorf("secrets not masked: %+v %+v", r.Server, r.Embedding)
	}
	if r.Cache.RedisURL != "redis://***@cache:6379/0" {
		t.Errorf("redis url = %q", r.Cache.RedisURL)
	}
	if r.Database.DSN != "postgres://***@db:5432/memhub" {
		t.Errorf("dsn = %q", r.Database.DSN)
	}
	if cfg.Server.Token != "secret" {
		t.Error("Redacted mutated the original")
	}
}
