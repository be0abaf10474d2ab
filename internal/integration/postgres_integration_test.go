package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"sustainamind/carbontrack/internal/app"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/config"
	"sustainamind/carbontrack/internal/devserver"
	"sustainamind/carbontrack/internal/session"
)

func openTestPostgres(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}
	return db, dsn
}

func TestPostgresSessionRoundTrip(t *testing.T) {
	db, _ := openTestPostgres(t)
	namespace := fmt.Sprintf("itest_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM client_session_kv WHERE namespace = $1", namespace)
	})

	kv, err := session.NewPostgresKV(db, namespace)
	if err != nil {
		t.Fatalf("NewPostgresKV() error: %v", err)
	}
	store, err := session.NewStore(kv)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	want := session.Session{Token: "tok", Username: "itest", DisplayName: "Integration", Email: "it@example.com"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	kv2, err := session.NewPostgresKV(db, namespace)
	if err != nil {
		t.Fatalf("NewPostgresKV() second instance error: %v", err)
	}
	store2, err := session.NewStore(kv2)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	got, err := store2.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}

	other, err := session.NewPostgresKV(db, namespace+"_other")
	if err != nil {
		t.Fatalf("NewPostgresKV() other namespace error: %v", err)
	}
	otherStore, _ := session.NewStore(other)
	if otherStore.IsAuthenticated() {
		t.Fatalf("namespaces must not share sessions")
	}

	if err := store2.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestClientOnPostgresSessionStore(t *testing.T) {
	db, dsn := openTestPostgres(t)
	namespace := fmt.Sprintf("itest_app_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM client_session_kv WHERE namespace = $1", namespace)
	})

	handler, err := devserver.NewHandler(devserver.Config{
		JWTSecret:    "itest",
		TokenTTL:     time.Minute,
		RequireToken: true,
	}, devserver.NewStore(), nil)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		API:          config.APIConfig{BaseURL: srv.URL},
		Session:      config.SessionConfig{Store: config.StorePostgres, Namespace: namespace},
		DatabaseURL:  dsn,
		AuditLogFile: filepath.Join(t.TempDir(), "audit.log"),
		LogLevel:     "info",
	}
	a, err := app.NewWithLogger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewWithLogger() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if _, err := a.Auth.SignUp(context.Background(), backend.SignUpRequest{
		Name: "Integration", Username: "itest", Email: "itest@example.com", Password: "pw",
	}); err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	entries, err := a.History.Fetch(context.Background(), "itest")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}
}
