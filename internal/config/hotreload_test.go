package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "memhub.yaml")
	if err := os.WriteFile(p, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(p)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Log.Level != "debug" {
			t.Errorf("level = %q, want debug", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatcher_IgnoresSiblingsAndInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "memhub.yaml")
	if err := os.WriteFile(p, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(p)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("log:\n  level: shouting\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		t.Errorf("unexpected reload: %+v", cfg.Log)
	case <-time.After(time.Second):
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "memhub.yaml"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}
