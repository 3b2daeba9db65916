package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/go-strand/internal/config"
)

func TestLoadAppliesDefaultsWhenConfigMissing(t *testing.T) {
	t.Setenv("STRAND_HOME", t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.NeedsGenesis {
		t.Fatalf("expected NeedsGenesis on a fresh home dir")
	}
	if cfg.BindAddr != "127.0.0.1:18790" {
		t.Fatalf("unexpected default bind addr: %s", cfg.BindAddr)
	}
	if cfg.DataDir != filepath.Join(cfg.HomeDir, "data") {
		t.Fatalf("unexpected default data dir: %s", cfg.DataDir)
	}
	if cfg.MaxHistory != 50 {
		t.Fatalf("unexpected default max history: %d", cfg.MaxHistory)
	}
	if cfg.Cron.KickoffSweepCron == "" || cfg.Cron.StaleSweepCron == "" {
		t.Fatalf("expected default cron schedules, got %+v", cfg.Cron)
	}
}

func TestLoadParsesConfigYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("STRAND_HOME", home)

	yaml := `
data_dir: /tmp/strand-data
workspaces_dir: /tmp/strand-ws
bind_addr: 0.0.0.0:9000
pm_session: agent:main:webchat:pm-default
agent_roles:
  backend: agent-backend
  frontend: agent-frontend
default_model: gpt-5
max_history: 20
`
	if err := os.WriteFile(config.ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NeedsGenesis {
		t.Fatalf("did not expect NeedsGenesis when config.yaml exists")
	}
	if cfg.DataDir != "/tmp/strand-data" || cfg.WorkspacesDir != "/tmp/strand-ws" {
		t.Fatalf("unexpected dirs: %+v", cfg)
	}
	if cfg.BindAddr != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind addr: %s", cfg.BindAddr)
	}
	if cfg.AgentRoles["backend"] != "agent-backend" {
		t.Fatalf("unexpected agent roles: %+v", cfg.AgentRoles)
	}
	if cfg.MaxHistory != 20 {
		t.Fatalf("unexpected max history: %d", cfg.MaxHistory)
	}
}

func TestEnvOverridesWinOverConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("STRAND_HOME", home)
	t.Setenv("STRAND_BIND_ADDR", "127.0.0.1:7777")
	t.Setenv("STRAND_MAX_HISTORY", "5")

	if err := os.WriteFile(config.ConfigPath(home), []byte("bind_addr: 0.0.0.0:1\nmax_history: 99\n"), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:7777" {
		t.Fatalf("expected env override to win, got %s", cfg.BindAddr)
	}
	if cfg.MaxHistory != 5 {
		t.Fatalf("expected env override to win, got %d", cfg.MaxHistory)
	}
}

func TestSetAgentRolePersistsOverride(t *testing.T) {
	home := t.TempDir()
	if err := config.SetAgentRole(home, "backend", "agent-backend-v2"); err != nil {
		t.Fatalf("SetAgentRole: %v", err)
	}
	t.Setenv("STRAND_HOME", home)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentRoles["backend"] != "agent-backend-v2" {
		t.Fatalf("expected persisted role override, got %+v", cfg.AgentRoles)
	}
}

func TestFingerprintStableForIdenticalConfig(t *testing.T) {
	a := config.Config{DataDir: "d", WorkspacesDir: "w", BindAddr: "b", LogLevel: "info"}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected identical fingerprints for identical config")
	}
	b.BindAddr = "other"
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("expected fingerprint to change when config changes")
	}
}
