package doctor

import (
	"context"
	"testing"
	"time"

	"github.com/basket/go-strand/internal/config"
)

func TestCheckConfigNilConfig(t *testing.T) {
	result := checkConfig(context.Background(), nil)
	if result.Status != "FAIL" {
		t.Fatalf("expected FAIL for nil config, got %s", result.Status)
	}
}

func TestCheckConfigNeedsGenesis(t *testing.T) {
	cfg := &config.Config{NeedsGenesis: true}
	result := checkConfig(context.Background(), cfg)
	if result.Status != "WARN" {
		t.Fatalf("expected WARN when NeedsGenesis, got %s", result.Status)
	}
}

func TestCheckConfigLoaded(t *testing.T) {
	cfg := &config.Config{HomeDir: t.TempDir()}
	result := checkConfig(context.Background(), cfg)
	if result.Status != "PASS" {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckStoreNilConfig(t *testing.T) {
	result := checkStore(context.Background(), nil)
	if result.Status != "SKIP" {
		t.Fatalf("expected SKIP for nil config, got %s", result.Status)
	}
}

func TestCheckStoreOpensDocument(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}
	result := checkStore(context.Background(), cfg)
	if result.Status != "PASS" {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckPermissionsWritableHomeDir(t *testing.T) {
	cfg := &config.Config{HomeDir: t.TempDir()}
	result := checkPermissions(context.Background(), cfg)
	if result.Status != "PASS" {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckGatewayNotConfigured(t *testing.T) {
	cfg := &config.Config{}
	result := checkGateway(context.Background(), cfg)
	if result.Status != "WARN" {
		t.Fatalf("expected WARN when gateway_url unset, got %s", result.Status)
	}
}

func TestCheckGatewayInvalidURL(t *testing.T) {
	cfg := &config.Config{GatewayURL: "://not-a-url"}
	result := checkGateway(context.Background(), cfg)
	if result.Status != "FAIL" {
		t.Fatalf("expected FAIL for invalid URL, got %s", result.Status)
	}
}

func TestCheckGatewayResolvesHost(t *testing.T) {
	cfg := &config.Config{GatewayURL: "http://localhost:18790/rpc"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result := checkGateway(ctx, cfg)
	if result.Name != "Gateway" {
		t.Fatalf("expected name Gateway, got %s", result.Name)
	}
	// localhost always resolves regardless of network availability.
	if result.Status != "PASS" {
		t.Fatalf("expected PASS for localhost, got %s: %s", result.Status, result.Message)
	}
}

func TestRunAggregatesAllChecks(t *testing.T) {
	cfg := &config.Config{HomeDir: t.TempDir(), DataDir: t.TempDir()}
	d := Run(context.Background(), cfg, "test-version")
	if d.System.Version != "test-version" {
		t.Fatalf("expected version to be recorded")
	}
	if len(d.Results) != 5 {
		t.Fatalf("expected 5 checks, got %d", len(d.Results))
	}
}
