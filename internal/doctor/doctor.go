// Package doctor runs one-shot diagnostic checks against a strandd
// installation: config validity, Store openability, workspace tooling,
// and gateway reachability. One func per concern, aggregated into a
// Diagnosis, checking this core's own externally-facing dependencies:
// the git/docker workspace toolchain and the configured gateway
// endpoint.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/go-strand/internal/config"
	"github.com/basket/go-strand/internal/store"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkStore,
		checkPermissions,
		checkGitTooling,
		checkGateway,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if cfg.NeedsGenesis {
		return CheckResult{Name: "Config", Status: "WARN", Message: "config.yaml missing; defaults written on next run"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkStore(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Store", Status: "SKIP", Message: "Config missing"}
	}
	st, err := store.Open(cfg.DataDir, nil)
	if err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer st.Close()

	strands, err := st.ListStrands()
	if err != nil {
		return CheckResult{Name: "Store", Status: "FAIL", Message: fmt.Sprintf("List failed: %v", err)}
	}
	return CheckResult{Name: "Store", Status: "PASS", Message: fmt.Sprintf("Document loaded, %d strand(s)", len(strands))}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}
	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkGitTooling(ctx context.Context, cfg *config.Config) CheckResult {
	if _, err := exec.LookPath("git"); err != nil {
		return CheckResult{Name: "Git Tooling", Status: "FAIL", Message: "git: missing (required for workspace worktrees/push/merge)"}
	}
	if cfg == nil || !cfg.Sandbox.Enabled {
		return CheckResult{Name: "Git Tooling", Status: "PASS", Message: "git: ok (sandbox disabled, docker not checked)"}
	}
	if _, err := exec.LookPath("docker"); err != nil {
		return CheckResult{Name: "Git Tooling", Status: "WARN", Message: "git: ok, docker: missing (required for post-merge sandbox verification)"}
	}
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		return CheckResult{Name: "Git Tooling", Status: "WARN", Message: fmt.Sprintf("git: ok, docker daemon unreachable: %v", err)}
	}
	return CheckResult{Name: "Git Tooling", Status: "PASS", Message: "git: ok, docker: ok"}
}

func checkGateway(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.GatewayURL == "" {
		return CheckResult{Name: "Gateway", Status: "WARN", Message: "gateway_url not configured; chat.send/history/abort will fail fast"}
	}
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil || u.Host == "" {
		return CheckResult{Name: "Gateway", Status: "FAIL", Message: fmt.Sprintf("gateway_url %q is not a valid URL", cfg.GatewayURL)}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	host := u.Hostname()
	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, host)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name:    "Gateway",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", host, err),
			Detail:  fmt.Sprintf("latency=%dms", latency.Milliseconds()),
		}
	}
	return CheckResult{
		Name:    "Gateway",
		Status:  "PASS",
		Message: fmt.Sprintf("DNS resolved %s (%d address(es), %dms)", host, len(addrs), latency.Milliseconds()),
	}
}
