package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Watcher.MaxDepth != 4 {
		t.Errorf("Watcher.MaxDepth = %d, want 4", cfg.Watcher.MaxDepth)
	}
	if cfg.Staleness.TickInterval != 15*time.Second {
		t.Errorf("Staleness.TickInterval = %s, want 15s", cfg.Staleness.TickInterval)
	}
	if cfg.Staleness.SessionExpiryThreshold != time.Hour {
		t.Errorf("Staleness.SessionExpiryThreshold = %s, want 1h", cfg.Staleness.SessionExpiryThreshold)
	}
}

func TestLoadOrDefaultMissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  port: 9000\n  auth_token: secret\nstaleness:\n  idle_threshold: 30s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("Server.AuthToken = %q, want secret", cfg.Server.AuthToken)
	}
	if cfg.Staleness.IdleThreshold != 30*time.Second {
		t.Errorf("Staleness.IdleThreshold = %s, want 30s", cfg.Staleness.IdleThreshold)
	}
	// Fields left unset in the YAML keep their defaults.
	if cfg.Watcher.MaxDepth != 4 {
		t.Errorf("Watcher.MaxDepth = %d, want unchanged default 4", cfg.Watcher.MaxDepth)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "env-token")
	t.Setenv("PORT", "4242")

	cfg := defaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Server.AuthToken != "env-token" {
		t.Errorf("Server.AuthToken = %q, want env-token", cfg.Server.AuthToken)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("Server.Port = %d, want 4242", cfg.Server.Port)
	}
}

func TestApplyEnvOverridesIgnoresInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg := defaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want unchanged default 3001", cfg.Server.Port)
	}
}

func TestDiffReportsChangedFields(t *testing.T) {
	old := defaultConfig()
	newCfg := defaultConfig()
	newCfg.Server.AuthToken = "rotated"
	newCfg.Staleness.IdleThreshold = 90 * time.Second
	newCfg.Watcher.Roots = append(newCfg.Watcher.Roots, "/extra/root")

	changes := Diff(old, newCfg)
	if len(changes) != 3 {
		t.Fatalf("Diff returned %d changes, want 3: %v", len(changes), changes)
	}
}

func TestDiffNoChanges(t *testing.T) {
	old := defaultConfig()
	newCfg := defaultConfig()

	if changes := Diff(old, newCfg); len(changes) != 0 {
		t.Errorf("Diff = %v, want no changes", changes)
	}
}
