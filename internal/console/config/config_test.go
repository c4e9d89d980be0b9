package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"CONSOLE_API_BASE_URL": "https://crm.example.com",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/" {
		t.Errorf("expected base path /, got %s", cfg.Server.BasePath)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Session.CookieName != defaultCookieName {
		t.Errorf("unexpected cookie name: %s", cfg.Session.CookieName)
	}
	if !cfg.Session.GeneratedKey || len(cfg.Session.HashKey) != 32 {
		t.Errorf("expected generated 32-byte hash key, got %d bytes (generated=%v)", len(cfg.Session.HashKey), cfg.Session.GeneratedKey)
	}
	if cfg.Session.IdleTimeout != defaultSessionIdle || cfg.Session.Lifetime != defaultSessionLife {
		t.Errorf("unexpected session timeouts: %s / %s", cfg.Session.IdleTimeout, cfg.Session.Lifetime)
	}
	if cfg.CSRF.HeaderName != "X-CSRF-Token" {
		t.Errorf("unexpected csrf header: %s", cfg.CSRF.HeaderName)
	}
	if cfg.Locale != "pt" {
		t.Errorf("expected pt locale, got %s", cfg.Locale)
	}
	if cfg.Environment != "Development" {
		t.Errorf("expected Development, got %s", cfg.Environment)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"CONSOLE_HTTP_ADDR":             ":9090",
		"CONSOLE_BASE_PATH":             "/crm",
		"CONSOLE_LOGIN_PATH":            "/crm/entrar",
		"CONSOLE_API_BASE_URL":          "http://localhost:3001",
		"CONSOLE_SESSION_HASH_KEY":      "hash-key-0123456789",
		"CONSOLE_SESSION_BLOCK_KEY":     "base64:YWJjZGVmZ2hpamtsbW5vcA==",
		"CONSOLE_SESSION_COOKIE_SECURE": "yes",
		"CONSOLE_SESSION_IDLE_TIMEOUT":  "5m",
		"CONSOLE_SESSION_LIFETIME":      "1h",
		"CONSOLE_DEFAULT_LOCALE":        "EN",
		"CONSOLE_ENVIRONMENT":           "Staging",
		"CONSOLE_WRITE_TIMEOUT":         "not-a-duration",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.BasePath != "/crm" || cfg.Server.LoginPath != "/crm/entrar" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if string(cfg.Session.HashKey) != "hash-key-0123456789" || cfg.Session.GeneratedKey {
		t.Errorf("expected configured hash key, got %q", cfg.Session.HashKey)
	}
	if string(cfg.Session.BlockKey) != "abcdefghijklmnop" {
		t.Errorf("expected decoded block key, got %q", cfg.Session.BlockKey)
	}
	if !cfg.Session.CookieSecure {
		t.Errorf("expected secure cookie")
	}
	if cfg.Session.IdleTimeout != 5*time.Minute || cfg.Session.Lifetime != time.Hour {
		t.Errorf("unexpected session timeouts: %+v", cfg.Session)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("invalid duration should fall back, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Locale != "en" || cfg.Environment != "Staging" {
		t.Errorf("unexpected locale/env: %s/%s", cfg.Locale, cfg.Environment)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"CONSOLE_API_BASE_URL":      "not a url",
		"CONSOLE_SESSION_BLOCK_KEY": "short",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := vErr.Fields()
	if len(fields) != 2 || fields[0] != "API.BaseURL" || fields[1] != "Session.BlockKey" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoadRequiresAPIBaseURL(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadReadsDotEnvBelowExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport CONSOLE_API_BASE_URL=\"http://dotenv:3001\"\nCONSOLE_HTTP_ADDR=':7070'\nmalformed line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"CONSOLE_HTTP_ADDR": ":6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://dotenv:3001" {
		t.Errorf("expected base url from .env, got %s", cfg.API.BaseURL)
	}
	if cfg.Server.Addr != ":6060" {
		t.Errorf("explicit map should win over .env, got %s", cfg.Server.Addr)
	}
}
