package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/go-strand/internal/config"
	"gopkg.in/yaml.v3"
)

// runImportCommand folds a legacy .env file's STRAND_* variables into
// config.yaml, adapted from cmd/goclaw/import.go's same-shaped
// setIfEmpty/force merge, retargeted at this core's own env surface
// (STRAND_GATEWAY_URL, STRAND_AUTH_TOKEN, TELEGRAM_TOKEN, and
// STRAND_AGENT_<ROLE> overrides) instead of LLM provider API keys.
func runImportCommand(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("strandctl import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envPath := fs.String("path", ".env", "path to legacy .env file")
	force := fs.Bool("force", false, "overwrite existing config.yaml values")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: strandctl import [--path .env] [--force]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	kv, err := parseDotEnvFile(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read env: %v\n", err)
		return 1
	}
	if len(kv) == 0 {
		fmt.Fprintln(os.Stdout, "no keys imported (empty env file)")
		return 0
	}

	cfgPath := config.ConfigPath(cfg.HomeDir)
	raw := make(map[string]any)
	if b, err := os.ReadFile(cfgPath); err == nil && len(b) > 0 {
		if err := yaml.Unmarshal(b, &raw); err != nil {
			fmt.Fprintf(os.Stderr, "parse config.yaml: %v\n", err)
			return 1
		}
	}

	setIfEmpty := func(key string, val any) (changed bool) {
		existing, ok := raw[key]
		if ok && !*force {
			if s, ok := existing.(string); ok && strings.TrimSpace(s) != "" {
				return false
			}
		}
		raw[key] = val
		return true
	}

	changedAny := false
	var imported, skipped []string

	simple := []struct{ envKey, cfgKey string }{
		{"STRAND_GATEWAY_URL", "gateway_url"},
		{"STRAND_AUTH_TOKEN", "auth_token"},
		{"STRAND_BIND_ADDR", "bind_addr"},
		{"STRAND_PM_SESSION", "pm_session"},
	}
	for _, s := range simple {
		v := strings.TrimSpace(kv[s.envKey])
		if v == "" {
			continue
		}
		if setIfEmpty(s.cfgKey, v) {
			imported = append(imported, s.envKey)
			changedAny = true
		} else {
			skipped = append(skipped, s.envKey)
		}
	}

	if v := strings.TrimSpace(kv["TELEGRAM_TOKEN"]); v != "" {
		telegram, _ := raw["telegram"].(map[string]any)
		if telegram == nil {
			telegram = make(map[string]any)
		}
		if existing, ok := telegram["token"].(string); !ok || strings.TrimSpace(existing) == "" || *force {
			telegram["token"] = v
			telegram["enabled"] = true
			raw["telegram"] = telegram
			imported = append(imported, "TELEGRAM_TOKEN")
			changedAny = true
		} else {
			skipped = append(skipped, "TELEGRAM_TOKEN")
		}
	}

	agentRoles, _ := raw["agent_roles"].(map[string]any)
	if agentRoles == nil {
		agentRoles = make(map[string]any)
	}
	const rolePrefix = "STRAND_AGENT_"
	for envKey, v := range kv {
		if !strings.HasPrefix(envKey, rolePrefix) {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		role := strings.ToLower(strings.TrimPrefix(envKey, rolePrefix))
		if existing, ok := agentRoles[role].(string); ok && strings.TrimSpace(existing) != "" && !*force {
			skipped = append(skipped, envKey)
			continue
		}
		agentRoles[role] = v
		imported = append(imported, envKey)
		changedAny = true
	}
	if len(agentRoles) > 0 {
		raw["agent_roles"] = agentRoles
	}

	if !changedAny {
		fmt.Fprintln(os.Stdout, "no keys imported (already set)")
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir config dir: %v\n", err)
		return 1
	}
	out, err := yaml.Marshal(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal config.yaml: %v\n", err)
		return 1
	}
	if err := os.WriteFile(cfgPath, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write config.yaml: %v\n", err)
		return 1
	}

	if len(imported) > 0 {
		fmt.Fprintf(os.Stdout, "imported: %s\n", strings.Join(imported, ", "))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(os.Stdout, "skipped: %s\n", strings.Join(skipped, ", "))
	}
	return 0
}

func parseDotEnvFile(path string) (map[string]string, error) {
	out := make(map[string]string)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:eq])
		v := strings.TrimSpace(line[eq+1:])
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}
