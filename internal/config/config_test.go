package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"CARBON_API_URL",
	"CARBON_HTTP_TIMEOUT_SEC",
	"SESSION_STORE",
	"SESSION_FILE",
	"SESSION_SQLITE_FILE",
	"SESSION_NAMESPACE",
	"DATABASE_URL",
	"AUDIT_LOG_FILE",
	"LOG_LEVEL",
	"DEV_BACKEND_ADDR",
	"DEV_BACKEND_JWT_SECRET",
	"DEV_BACKEND_TOKEN_TTL_MIN",
	"DEV_BACKEND_ESTIMATE_EXPR",
	"DEV_BACKEND_REQUIRE_TOKEN",
	"HTTP_READ_TIMEOUT_SEC",
	"HTTP_WRITE_TIMEOUT_SEC",
	"HTTP_SHUTDOWN_TIMEOUT_SEC",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Fatalf("expected default api url, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 0 {
		t.Fatalf("expected no default timeout, got %v", cfg.API.Timeout)
	}
	if cfg.Session.Store != StoreFile {
		t.Fatalf("expected default session store file, got %q", cfg.Session.Store)
	}
	if cfg.Session.File != "./data/session.json" {
		t.Fatalf("expected default session file ./data/session.json, got %q", cfg.Session.File)
	}
	if cfg.Session.SQLiteFile != "./data/session.db" {
		t.Fatalf("expected default sqlite file ./data/session.db, got %q", cfg.Session.SQLiteFile)
	}
	if cfg.Session.Namespace != "default" {
		t.Fatalf("expected default namespace, got %q", cfg.Session.Namespace)
	}
	if cfg.AuditLogFile != "./data/audit.log" {
		t.Fatalf("expected default audit log file ./data/audit.log, got %q", cfg.AuditLogFile)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.DevBackend.Addr != ":8000" {
		t.Fatalf("expected default dev backend addr :8000, got %q", cfg.DevBackend.Addr)
	}
	if cfg.DevBackend.TokenTTL != 30*time.Minute {
		t.Fatalf("expected default token ttl 30m, got %v", cfg.DevBackend.TokenTTL)
	}
	if !cfg.DevBackend.RequireToken {
		t.Fatalf("expected dev backend to require tokens by default")
	}
	if cfg.DevBackend.ShutdownTimeout != 20*time.Second {
		t.Fatalf("expected default shutdown timeout 20s, got %v", cfg.DevBackend.ShutdownTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CARBON_API_URL", "https://carbon.example.com/api")
	t.Setenv("CARBON_HTTP_TIMEOUT_SEC", "5")
	t.Setenv("SESSION_STORE", "SQLite")
	t.Setenv("SESSION_SQLITE_FILE", "/tmp/s.db")
	t.Setenv("SESSION_NAMESPACE", "work")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DEV_BACKEND_REQUIRE_TOKEN", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %v", cfg.API.Timeout)
	}
	if cfg.Session.Store != StoreSQLite || cfg.Session.SQLiteFile != "/tmp/s.db" || cfg.Session.Namespace != "work" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.DevBackend.RequireToken {
		t.Fatalf("expected require token to be disabled")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"relative api url", map[string]string{"CARBON_API_URL": "localhost"}, "CARBON_API_URL"},
		{"negative timeout", map[string]string{"CARBON_HTTP_TIMEOUT_SEC": "-1"}, "CARBON_HTTP_TIMEOUT_SEC"},
		{"unknown store", map[string]string{"SESSION_STORE": "redis"}, "SESSION_STORE"},
		{"postgres without dsn", map[string]string{"SESSION_STORE": "postgres"}, "DATABASE_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"zero ttl", map[string]string{"DEV_BACKEND_TOKEN_TTL_MIN": "0"}, "DEV_BACKEND_TOKEN_TTL_MIN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("SESSION_NAMESPACE")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSION_NAMESPACE=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		os.Unsetenv("SESSION_NAMESPACE")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Session.Namespace != "from-dotenv" {
		t.Fatalf("expected namespace from .env, got %q", cfg.Session.Namespace)
	}
}
