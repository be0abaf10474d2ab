package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sustainamind/carbontrack/internal/app"
	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/config"
	"sustainamind/carbontrack/internal/devserver"
	"sustainamind/carbontrack/internal/history"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	handler, err := devserver.NewHandler(devserver.Config{
		JWTSecret:    "cli-secret",
		TokenTTL:     time.Hour,
		RequireToken: true,
	}, devserver.NewStore(), nil)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	a, err := app.NewWithLogger(config.Config{
		API:          config.APIConfig{BaseURL: srv.URL},
		Session:      config.SessionConfig{Store: config.StoreFile, File: filepath.Join(dir, "session.json"), Namespace: "default"},
		AuditLogFile: filepath.Join(dir, "audit.log"),
		LogLevel:     "info",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewWithLogger() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func runCLI(t *testing.T, a *app.App, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), a, args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

var trackArgs = []string{
	"track",
	"--set", "Body_Type=normal", "--set", "Sex=female", "--set", "Diet=pescatarian",
	"--set", "How_Often_Shower=daily", "--set", "Heating_Energy_Source=natural gas",
	"--set", "Transport=public", "--set", "Social_Activity=often",
	"--set", "Monthly_Grocery_Bill=180", "--set", "Frequency_of_Traveling_by_Air=rarely",
	"--set", "Waste_Bag_Size=small", "--set", "Waste_Bag_Weekly_Count=2",
	"--set", "Energy_efficiency=Yes", "--set", "Recycle_Paper=yes",
}

func TestCLIFlow(t *testing.T) {
	a := newTestApp(t)

	code, _, errOut := runCLI(t, a, "", "history")
	if code != 1 || !strings.Contains(errOut, apperr.NotLoggedInMessage) {
		t.Fatalf("history before login: code=%d err=%q", code, errOut)
	}

	code, out, errOut := runCLI(t, a, "s3cret\n", "signup", "--name", "Linus", "--username", "linus", "--email", "linus@example.com")
	if code != 0 {
		t.Fatalf("signup: code=%d err=%q", code, errOut)
	}
	if !strings.Contains(out, "linus") {
		t.Fatalf("signup output = %q", out)
	}

	code, out, _ = runCLI(t, a, "", "whoami")
	if code != 0 || !strings.Contains(out, "Linus (linus) <linus@example.com>") {
		t.Fatalf("whoami: code=%d out=%q", code, out)
	}

	code, out, _ = runCLI(t, a, "", "history")
	if code != 0 || !strings.Contains(out, history.EmptyMessage) {
		t.Fatalf("empty history: code=%d out=%q", code, out)
	}

	code, out, errOut = runCLI(t, a, "", trackArgs...)
	if code != 0 || !strings.Contains(out, "Estimated footprint") {
		t.Fatalf("track: code=%d out=%q err=%q", code, out, errOut)
	}

	code, out, _ = runCLI(t, a, "", "history")
	if code != 0 || !strings.Contains(out, "(details)") {
		t.Fatalf("history: code=%d out=%q", code, out)
	}
	id := strings.Fields(out)[0]

	code, out, errOut = runCLI(t, a, "", "details", id)
	if code != 0 || !strings.Contains(out, "Vehicle Type") || !strings.Contains(out, "N/A") {
		t.Fatalf("details: code=%d out=%q err=%q", code, out, errOut)
	}

	code, out, _ = runCLI(t, a, "n\n", "clear-history")
	if code != 0 || !strings.Contains(out, "Nothing deleted.") {
		t.Fatalf("declined clear: code=%d out=%q", code, out)
	}
	code, out, _ = runCLI(t, a, "", "clear-history", "--yes")
	if code != 0 || !strings.Contains(out, history.ClearedMessage) {
		t.Fatalf("clear: code=%d out=%q", code, out)
	}

	code, _, errOut = runCLI(t, a, "", "change-password", "--current", "wrong", "--new", "x")
	if code != 1 || !strings.Contains(errOut, "Incorrect current password") {
		t.Fatalf("change-password wrong: code=%d err=%q", code, errOut)
	}

	code, out, _ = runCLI(t, a, "", "logout")
	if code != 0 || !strings.Contains(out, "Logged out.") {
		t.Fatalf("logout: code=%d out=%q", code, out)
	}
	code, out, _ = runCLI(t, a, "", "whoami")
	if code != 0 || !strings.Contains(out, "Not logged in.") {
		t.Fatalf("whoami after logout: code=%d out=%q", code, out)
	}

	code, _, errOut = runCLI(t, a, "", "login", "--email", "linus@example.com", "--password", "nope")
	if code != 1 || !strings.Contains(errOut, "Incorrect email or password") {
		t.Fatalf("bad login: code=%d err=%q", code, errOut)
	}

	code, out, _ = runCLI(t, a, "", "activity", "-n", "2")
	if code != 0 || len(strings.Split(strings.TrimSpace(out), "\n")) != 2 {
		t.Fatalf("activity: code=%d out=%q", code, out)
	}
	if !strings.Contains(out, "auth.login") || !strings.Contains(out, "failure") {
		t.Fatalf("expected the failed login last, got %q", out)
	}
}

func TestCLIUsage(t *testing.T) {
	a := newTestApp(t)
	if code, _, _ := runCLI(t, a, ""); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	if code, _, errOut := runCLI(t, a, "", "frobnicate"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("unknown command: code=%d err=%q", code, errOut)
	}
	if code, _, errOut := runCLI(t, a, "", "tui", "--view", "/admin"); code != 1 || !strings.Contains(errOut, "unknown view") {
		t.Fatalf("tui with unknown view: code=%d err=%q", code, errOut)
	}
	if code, out, _ := runCLI(t, a, "", "activity"); code != 0 || !strings.Contains(out, "No activity recorded.") {
		t.Fatalf("empty activity: code=%d out=%q", code, out)
	}
	code, out, _ := runCLI(t, a, "", "track", "--fields")
	if code != 0 || !strings.HasPrefix(out, "Body_Type\n") {
		t.Fatalf("track --fields: code=%d out=%q", code, out)
	}
}

func TestSetFlags(t *testing.T) {
	s := setFlags{}
	if err := s.Set("Diet=vegan"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set("novalue"); err == nil {
		t.Fatalf("expected error without '='")
	}
	if s["Diet"] != "vegan" {
		t.Fatalf("unexpected values: %v", s)
	}
}
