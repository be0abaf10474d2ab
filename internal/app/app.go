package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"sustainamind/carbontrack/internal/audit"
	"sustainamind/carbontrack/internal/auth"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/config"
	"sustainamind/carbontrack/internal/guard"
	"sustainamind/carbontrack/internal/history"
	"sustainamind/carbontrack/internal/observability"
	"sustainamind/carbontrack/internal/session"
	"sustainamind/carbontrack/internal/track"
)

// App is the client side: one session store shared by every flow.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	closers []func() error

	Sessions *session.Store
	Client   *backend.Client
	Auth     *auth.Flow
	Guard    *guard.Guard
	History  *history.Panel
	Tracker  *track.Tracker
	Audit    *audit.Logger
}

func New(cfg config.Config) (*App, error) {
	return NewWithLogger(cfg, observability.NewLogger(cfg.LogLevel))
}

func NewWithLogger(cfg config.Config, logger *slog.Logger) (*App, error) {
	kv, closeKV, err := OpenSessionKV(cfg.Session, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: logger}
	if closeKV != nil {
		a.closers = append(a.closers, closeKV)
	}

	a.Sessions, err = session.NewStore(kv)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create session store: %w", err)
	}

	a.Client, err = backend.New(backend.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Token:   a.Sessions.Token,
		Logger:  logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	a.Audit = audit.NewLogger(cfg.AuditLogFile)

	a.Auth, err = auth.NewFlow(a.Client, a.Sessions, auth.Options{Audit: a.Audit, Logger: logger})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create auth flow: %w", err)
	}
	a.Guard = guard.New(a.Sessions)
	a.History, err = history.NewPanel(a.Client, history.Options{Audit: a.Audit, Logger: logger})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create history panel: %w", err)
	}
	a.Tracker, err = track.NewTracker(a.Client, a.Sessions, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create tracker: %w", err)
	}

	logger.Debug("client ready", "api", cfg.API.BaseURL, "session_store", cfg.Session.Store)
	return a, nil
}

func (a *App) Logger() *slog.Logger { return a.log }

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenSessionKV opens the configured session backend. The returned close func
// is nil for backends that hold nothing open.
func OpenSessionKV(cfg config.SessionConfig, databaseURL string) (session.KV, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return session.NewMemoryKV(), nil, nil
	case config.StoreFile, "":
		path, err := session.NamespaceFile(cfg.File, cfg.Namespace)
		if err != nil {
			return nil, nil, err
		}
		kv, err := session.NewFileKV(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open session file: %w", err)
		}
		return kv, nil, nil
	case config.StoreSQLite:
		kv, err := session.OpenSQLiteKV(cfg.SQLiteFile, cfg.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite session store: %w", err)
		}
		return kv, kv.Close, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		kv, err := session.NewPostgresKV(db, cfg.Namespace)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres session store: %w", err)
		}
		return kv, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
