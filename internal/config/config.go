package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	API          APIConfig
	Session      SessionConfig
	DatabaseURL  string
	AuditLogFile string
	LogLevel     string
	DevBackend   DevBackendConfig
}

type APIConfig struct {
	BaseURL string
	// Timeout of zero means requests wait for the backend indefinitely.
	Timeout time.Duration
}

type SessionConfig struct {
	Store      string
	File       string
	SQLiteFile string
	Namespace  string
}

type DevBackendConfig struct {
	Addr            string
	JWTSecret       string
	TokenTTL        time.Duration
	EstimateExpr    string
	RequireToken    bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		API: APIConfig{
			BaseURL: getEnv("CARBON_API_URL", "http://localhost:8000"),
			Timeout: time.Duration(getEnvInt("CARBON_HTTP_TIMEOUT_SEC", 0)) * time.Second,
		},
		Session: SessionConfig{
			Store:      strings.ToLower(getEnv("SESSION_STORE", StoreFile)),
			File:       getEnv("SESSION_FILE", "./data/session.json"),
			SQLiteFile: getEnv("SESSION_SQLITE_FILE", "./data/session.db"),
			Namespace:  getEnv("SESSION_NAMESPACE", "default"),
		},
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DevBackend: DevBackendConfig{
			Addr:            getEnv("DEV_BACKEND_ADDR", ":8000"),
			JWTSecret:       getEnv("DEV_BACKEND_JWT_SECRET", "dev-backend-secret"),
			TokenTTL:        time.Duration(getEnvInt("DEV_BACKEND_TOKEN_TTL_MIN", 30)) * time.Minute,
			EstimateExpr:    getEnv("DEV_BACKEND_ESTIMATE_EXPR", ""),
			RequireToken:    getEnvBool("DEV_BACKEND_REQUIRE_TOKEN", true),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
	}

	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("CARBON_API_URL must be an absolute URL, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout < 0 {
		return Config{}, fmt.Errorf("CARBON_HTTP_TIMEOUT_SEC must be >= 0")
	}

	switch cfg.Session.Store {
	case StoreFile:
		if cfg.Session.File == "" {
			return Config{}, fmt.Errorf("SESSION_FILE must not be empty")
		}
	case StoreSQLite:
		if cfg.Session.SQLiteFile == "" {
			return Config{}, fmt.Errorf("SESSION_SQLITE_FILE must not be empty")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must not be empty when SESSION_STORE=postgres")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be one of file, sqlite, postgres, memory; got %q", cfg.Session.Store)
	}
	if cfg.Session.Namespace == "" {
		return Config{}, fmt.Errorf("SESSION_NAMESPACE must not be empty")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}

	if cfg.DevBackend.Addr == "" {
		return Config{}, fmt.Errorf("DEV_BACKEND_ADDR must not be empty")
	}
	if cfg.DevBackend.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("DEV_BACKEND_TOKEN_TTL_MIN must be > 0")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
