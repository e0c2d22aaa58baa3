package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.Remote.BaseURL != "https://books.example.com/api" {
		t.Fatalf("unexpected remote base url: %q", cfg.Remote.BaseURL)
	}
	if got := cfg.Cart.QuantityDebounce; got != 400*time.Millisecond {
		t.Fatalf("expected quantity debounce 400ms, got %v", got)
	}
	if got := cfg.Cart.SelectionDebounce; got != 300*time.Millisecond {
		t.Fatalf("expected selection debounce 300ms, got %v", got)
	}
	if !cfg.Cart.DiscardStale {
		t.Fatalf("expected stale responses to be discarded by default")
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without url or address")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartQuantityDebounce, "250ms")
	t.Setenv(EnvCartDiscardStale, "false")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Cart.QuantityDebounce != 250*time.Millisecond {
		t.Fatalf("expected override to apply, got %v", cfg.Cart.QuantityDebounce)
	}
	if cfg.Cart.DiscardStale {
		t.Fatalf("expected discard stale override to apply")
	}
	if !cfg.Redis.Enabled() {
		t.Fatalf("redis should be enabled when url is set")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RejectsBadRemoteURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvRemoteBaseURL, "ftp://books.example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected non-http remote url to be rejected")
	}
}

func TestLoad_RejectsZeroDebounce(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCartQuantityDebounce, "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero debounce to be rejected")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvJWTIssuer, "wisdom-books")
	t.Setenv(EnvRemoteBaseURL, "https://books.example.com/api")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() || prodConfig.IsDev() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
}
