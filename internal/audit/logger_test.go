package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)
	if err := l.Record(Event{Actor: "alice", Action: "history.clear", Outcome: Success}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	line := strings.TrimSpace(string(b))
	if line == "" {
		t.Fatalf("expected non-empty audit line")
	}
	var e Event
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if e.Actor != "alice" || e.Action != "history.clear" || e.Outcome != Success {
		t.Fatalf("unexpected audit event content: %+v", e)
	}
	if e.At.IsZero() {
		t.Fatalf("expected timestamp to be filled in")
	}
}

func TestLoggerTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)
	for _, action := range []string{"auth.login", "history.fetch", "history.clear", "auth.logout"} {
		if err := l.Record(Event{Actor: "alice", Action: action, Outcome: Success}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	events, err := l.Tail(2)
	if err != nil {
		t.Fatalf("Tail() error: %v", err)
	}
	if len(events) != 2 || events[0].Action != "history.clear" || events[1].Action != "auth.logout" {
		t.Fatalf("unexpected tail: %+v", events)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	if err := l.Record(Event{Action: "auth.login"}); err != nil {
		t.Fatalf("Record() on nil logger error: %v", err)
	}
	events, err := NewLogger(filepath.Join(t.TempDir(), "missing.log")).Tail(5)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events for missing file, got %v, %v", events, err)
	}
}
