// Package config loads the observer's YAML configuration, with the
// teacher's own Load/LoadOrDefault/Diff shape: an XDG default path, a
// typed struct per concern, and a Diff helper the SIGHUP reload path uses
// to log what actually changed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the observer's full runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Staleness StalenessConfig `yaml:"staleness"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
}

// ServerConfig configures the hook-ingestion and WebSocket listener (spec
// §6). All three take effect only at startup: a SIGHUP reload reports an
// AuthToken change but the running listeners keep the token they started
// with.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// WatcherConfig configures the Transcript Watcher's root directories (spec
// §2, §4.5). MaxDepth is loaded and diffed but not passed to the watcher,
// which always recurses to a fixed depth of 4.
type WatcherConfig struct {
	Roots    []string `yaml:"roots"`
	MaxDepth int      `yaml:"max_depth"`
}

// StalenessConfig mirrors sweeper.Thresholds in YAML-friendly form, with
// spec.md §4.6's literal constants as defaults. All fields are safe to
// reload live.
type StalenessConfig struct {
	TickInterval             time.Duration `yaml:"tick_interval"`
	IdleThreshold            time.Duration `yaml:"idle_threshold"`
	SubagentRemovalThreshold time.Duration `yaml:"subagent_removal_threshold"`
	SessionExpiryThreshold   time.Duration `yaml:"session_expiry_threshold"`
	CatchAllStaleThreshold   time.Duration `yaml:"catch_all_stale_threshold"`
}

// PrivacyConfig configures the optional broadcast-time scrubber
// (internal/privacy) applied before data reaches a WebSocket client.
// Disabled (all false/empty) by default.
type PrivacyConfig struct {
	MaskProjectNames  bool     `yaml:"mask_project_names"`
	MaskWorktreePaths bool     `yaml:"mask_worktree_paths"`
	AllowedSlugs      []string `yaml:"allowed_slugs"`
	BlockedSlugs      []string `yaml:"blocked_slugs"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3001,
		},
		Watcher: WatcherConfig{
			Roots:    []string{defaultProjectsRoot()},
			MaxDepth: 4,
		},
		Staleness: StalenessConfig{
			TickInterval:             15 * time.Second,
			IdleThreshold:            60 * time.Second,
			SubagentRemovalThreshold: 300 * time.Second,
			SessionExpiryThreshold:   3600 * time.Second,
			CatchAllStaleThreshold:   5 * time.Minute,
		},
	}
}

// Load reads and parses the YAML file at path, starting from defaultConfig
// so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from the given path, or returns the default
// config if path doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

// ApplyEnvOverrides applies the process-wide PORT/AUTH_TOKEN environment
// overrides spec.md §6 describes ("a single server process; PORT env
// (default 3001); AUTH_TOKEN env optional"). Call after Load so env always
// wins over the YAML file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "agentwatch-observer", "config.yaml")
}

// defaultProjectsRoot returns the well-known directory the host writes
// transcripts under (spec.md §6's filesystem tree).
func defaultProjectsRoot() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".claude", "projects")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed, restricted to the fields that are safe to apply without a
// restart (auth token, watcher roots/depth, staleness timings). Server
// host/port are deliberately excluded — the listen address can't change
// live.
func Diff(old, new *Config) []string {
	var changes []string

	if old.Server.AuthToken != new.Server.AuthToken {
		changes = append(changes, "server.auth_token: changed")
	}

	if !slices.Equal(old.Watcher.Roots, new.Watcher.Roots) {
		changes = append(changes, fmt.Sprintf("watcher.roots: %v → %v", old.Watcher.Roots, new.Watcher.Roots))
	}
	if old.Watcher.MaxDepth != new.Watcher.MaxDepth {
		changes = append(changes, fmt.Sprintf("watcher.max_depth: %d → %d", old.Watcher.MaxDepth, new.Watcher.MaxDepth))
	}

	if old.Staleness.TickInterval != new.Staleness.TickInterval {
		changes = append(changes, fmt.Sprintf("staleness.tick_interval: %s → %s", old.Staleness.TickInterval, new.Staleness.TickInterval))
	}
	if old.Staleness.IdleThreshold != new.Staleness.IdleThreshold {
		changes = append(changes, fmt.Sprintf("staleness.idle_threshold: %s → %s", old.Staleness.IdleThreshold, new.Staleness.IdleThreshold))
	}
	if old.Staleness.SubagentRemovalThreshold != new.Staleness.SubagentRemovalThreshold {
		changes = append(changes, fmt.Sprintf("staleness.subagent_removal_threshold: %s → %s", old.Staleness.SubagentRemovalThreshold, new.Staleness.SubagentRemovalThreshold))
	}
	if old.Staleness.SessionExpiryThreshold != new.Staleness.SessionExpiryThreshold {
		changes = append(changes, fmt.Sprintf("staleness.session_expiry_threshold: %s → %s", old.Staleness.SessionExpiryThreshold, new.Staleness.SessionExpiryThreshold))
	}
	if old.Staleness.CatchAllStaleThreshold != new.Staleness.CatchAllStaleThreshold {
		changes = append(changes, fmt.Sprintf("staleness.catch_all_stale_threshold: %s → %s", old.Staleness.CatchAllStaleThreshold, new.Staleness.CatchAllStaleThreshold))
	}

	return changes
}
