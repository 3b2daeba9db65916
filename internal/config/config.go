// Package config loads the orchestrator's YAML configuration: a root
// Config struct loaded from $STRAND_HOME/config.yaml, layered with
// environment overrides and filled-in defaults. No LLM-provider
// selection lives here, since the core never calls an LLM directly.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TelegramConfig configures the optional push-only notification channel.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	ChatID     int64   `yaml:"chat_id"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
	Enabled    bool    `yaml:"enabled"`
}

// OtelConfig configures tracing/metrics export.
type OtelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsAddr    string `yaml:"metrics_addr"` // Prometheus scrape listener, e.g. "127.0.0.1:9464"
}

// CronConfig controls the periodic re-kickoff and stale-session sweep.
type CronConfig struct {
	KickoffSweepCron string `yaml:"kickoff_sweep_cron"` // default "*/5 * * * *"
	StaleSweepCron   string `yaml:"stale_sweep_cron"`   // default "*/15 * * * *"
	StaleAfterMs     int64  `yaml:"stale_after_ms"`     // default 30 minutes
}

// SandboxConfig controls optional Docker-based post-merge verification.
type SandboxConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Image      string `yaml:"image"`
	Command    string `yaml:"command"`
	MemoryMB   int64  `yaml:"memory_mb"`
	NetworkOff bool   `yaml:"network_off"`
}

// Config is the orchestrator's full runtime configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	// DataDir is where the Store persists its JSON document.
	DataDir string `yaml:"data_dir"`

	// WorkspacesDir is where per-strand git workspaces live. Empty
	// disables git features (worktrees, push, merge, branch status).
	WorkspacesDir string `yaml:"workspaces_dir"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// GatewayURL is the JSON-RPC endpoint of the external LLM gateway:
	// chat.send/chat.history/chat.abort/sessions.delete are posted here.
	// Empty disables the gateway client — kickoffs and
	// lifecycle teardown still update the Store but every network call
	// fails fast and is tolerated by the caller.
	GatewayURL string `yaml:"gateway_url"`

	// AuthToken gates the websocket transport; empty allows unauthenticated
	// local connections.
	AuthToken    string   `yaml:"auth_token"`
	AllowOrigins []string `yaml:"allow_origins"`

	// PMSession is the default PM session key used when a strand or goal
	// has no PM session of its own yet.
	PMSession string `yaml:"pm_session"`

	// AgentRoles maps an abstract role ("pm", "backend", …) to a concrete
	// agent id, overriding agentrole.Resolver's env-var defaults.
	AgentRoles map[string]string `yaml:"agent_roles"`

	DefaultModel    string `yaml:"default_model"`
	DefaultAutonomy string `yaml:"default_autonomy"`

	// MaxHistory bounds PM chat history length (entities.TrimHistory).
	MaxHistory int `yaml:"max_history"`

	Telegram TelegramConfig `yaml:"telegram"`
	Otel     OtelConfig     `yaml:"otel"`
	Cron     CronConfig     `yaml:"cron"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`

	NeedsGenesis bool `yaml:"-"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Fingerprint returns a stable hash of the active config, useful for
// detecting whether a hot-reload actually changed anything load-bearing.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "data=%s|ws=%s|bind=%s|log=%s|model=%s|autonomy=%s|maxHistory=%d|origins=%v",
		c.DataDir, c.WorkspacesDir, c.BindAddr, c.LogLevel, c.DefaultModel, c.DefaultAutonomy, c.MaxHistory, c.AllowOrigins)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		BindAddr:        "127.0.0.1:18790",
		LogLevel:        "info",
		DefaultModel:    "default",
		DefaultAutonomy: "supervised",
		MaxHistory:      50,
		Cron: CronConfig{
			KickoffSweepCron: "*/5 * * * *",
			StaleSweepCron:   "*/15 * * * *",
			StaleAfterMs:     int64(30 * time.Minute / time.Millisecond),
		},
	}
}

// HomeDir returns the orchestrator's home directory, honoring
// $STRAND_HOME and falling back to ~/.strand.
func HomeDir() string {
	if override := os.Getenv("STRAND_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".strand")
}

// Load reads config.yaml from HomeDir, applies environment overrides,
// and fills in defaults. A missing config.yaml is not an error — it
// sets NeedsGenesis so the caller can write a starter file.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create strand home: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, "data")
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil && len(data) > 0:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	case os.IsNotExist(err):
		cfg.NeedsGenesis = true
	case err != nil:
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, "data")
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18790"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "default"
	}
	if cfg.DefaultAutonomy == "" {
		cfg.DefaultAutonomy = "supervised"
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 50
	}
	if cfg.Cron.KickoffSweepCron == "" {
		cfg.Cron.KickoffSweepCron = "*/5 * * * *"
	}
	if cfg.Cron.StaleSweepCron == "" {
		cfg.Cron.StaleSweepCron = "*/15 * * * *"
	}
	if cfg.Cron.StaleAfterMs <= 0 {
		cfg.Cron.StaleAfterMs = int64(30 * time.Minute / time.Millisecond)
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("STRAND_DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	if raw := os.Getenv("STRAND_WORKSPACES_DIR"); raw != "" {
		cfg.WorkspacesDir = raw
	}
	if raw := os.Getenv("STRAND_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("STRAND_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("STRAND_AUTH_TOKEN"); raw != "" {
		cfg.AuthToken = raw
	}
	if raw := os.Getenv("STRAND_GATEWAY_URL"); raw != "" {
		cfg.GatewayURL = raw
	}
	if raw := os.Getenv("STRAND_PM_SESSION"); raw != "" {
		cfg.PMSession = raw
	}
	if raw := os.Getenv("STRAND_DEFAULT_MODEL"); raw != "" {
		cfg.DefaultModel = raw
	}
	if raw := os.Getenv("STRAND_DEFAULT_AUTONOMY"); raw != "" {
		cfg.DefaultAutonomy = raw
	}
	if raw := os.Getenv("STRAND_MAX_HISTORY"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxHistory = v
		}
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("STRAND_OTEL_ENDPOINT"); raw != "" {
		cfg.Otel.OTLPEndpoint = raw
		cfg.Otel.Enabled = true
	}
}

// SetAgentRole persists a role → agentId override, preserving other settings.
func SetAgentRole(homeDir, role, agentID string) error {
	configPath := ConfigPath(homeDir)
	cfg := Config{}
	data, err := os.ReadFile(configPath)
	if err == nil && len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.AgentRoles == nil {
		cfg.AgentRoles = make(map[string]string)
	}
	cfg.AgentRoles[role] = agentID
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(configPath, out, 0o644)
}
