package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/audit"
	"sustainamind/carbontrack/internal/backend"
)

type fakeAPI struct {
	fetchFunc func(ctx context.Context, username string) ([]backend.HistoryEntry, error)
	clearFunc func(ctx context.Context, username string) (backend.Ack, error)
}

func (f fakeAPI) FetchHistory(ctx context.Context, username string) ([]backend.HistoryEntry, error) {
	if f.fetchFunc == nil {
		return nil, errors.New("not implemented")
	}
	return f.fetchFunc(ctx, username)
}

func (f fakeAPI) ClearHistory(ctx context.Context, username string) (backend.Ack, error) {
	if f.clearFunc == nil {
		return backend.Ack{}, errors.New("not implemented")
	}
	return f.clearFunc(ctx, username)
}

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Record(e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func strPtr(s string) *string { return &s }

func sampleEntries() []backend.HistoryEntry {
	ts := backend.Timestamp{Time: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	return []backend.HistoryEntry{
		{ID: "2", CarbonValue: 2100.25, Timestamp: ts, Details: strPtr(`{"distance_km": 12.5, "mode": null}`)},
		{ID: "1", CarbonValue: 1800, Timestamp: ts},
		{ID: "3", CarbonValue: 900, Timestamp: ts, Details: strPtr(`{"broken": `)},
	}
}

func newPanel(t *testing.T, api API) (*Panel, *recordingAudit) {
	t.Helper()
	rec := &recordingAudit{}
	p, err := NewPanel(api, Options{Audit: rec})
	if err != nil {
		t.Fatalf("NewPanel() error: %v", err)
	}
	return p, rec
}

func loadedPanel(t *testing.T, api fakeAPI) (*Panel, *recordingAudit) {
	t.Helper()
	api.fetchFunc = func(context.Context, string) ([]backend.HistoryEntry, error) {
		return sampleEntries(), nil
	}
	p, rec := newPanel(t, api)
	if _, err := p.Fetch(context.Background(), "alice"); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	return p, rec
}

func TestFetchKeepsBackendOrder(t *testing.T) {
	p, _ := loadedPanel(t, fakeAPI{})
	got := p.Entries()
	if len(got) != 3 || got[0].ID != "2" || got[1].ID != "1" || got[2].ID != "3" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].FormatValue() != "2100.2 kg" && got[0].FormatValue() != "2100.3 kg" {
		t.Fatalf("FormatValue() = %q", got[0].FormatValue())
	}
	if got[1].HasDetails() {
		t.Fatalf("entry without details reports details")
	}
}

func TestFetchEmpty(t *testing.T) {
	p, _ := newPanel(t, fakeAPI{
		fetchFunc: func(context.Context, string) ([]backend.HistoryEntry, error) {
			return []backend.HistoryEntry{}, nil
		},
	})
	got, err := p.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 0 || !p.Empty() {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

func TestFetchFailureKeepsCache(t *testing.T) {
	p, _ := loadedPanel(t, fakeAPI{})
	p.api = fakeAPI{
		fetchFunc: func(context.Context, string) ([]backend.HistoryEntry, error) {
			return nil, &backend.StatusError{Op: "history", Status: 500, Detail: "boom"}
		},
	}
	_, err := p.Fetch(context.Background(), "alice")
	if got := apperr.Message(err); got != FetchFailedMessage {
		t.Fatalf("message = %q", got)
	}
	if len(p.Entries()) != 3 {
		t.Fatalf("expected cache to survive a failed fetch")
	}
}

func TestClearDeclinedSendsNothing(t *testing.T) {
	called := false
	p, rec := loadedPanel(t, fakeAPI{
		clearFunc: func(context.Context, string) (backend.Ack, error) {
			called = true
			return backend.Ack{}, nil
		},
	})

	var prompt string
	err := p.Clear(context.Background(), "alice", ConfirmFunc(func(s string) bool {
		prompt = s
		return false
	}))
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if prompt != ConfirmClearPrompt {
		t.Fatalf("prompt = %q", prompt)
	}
	if called {
		t.Fatalf("declined clear must not reach the backend")
	}
	if len(p.Entries()) != 3 || len(rec.events) != 0 {
		t.Fatalf("declined clear changed state")
	}
}

func TestClearSuccessEmptiesCache(t *testing.T) {
	var gotUser string
	p, rec := loadedPanel(t, fakeAPI{
		clearFunc: func(_ context.Context, username string) (backend.Ack, error) {
			gotUser = username
			return backend.Ack{Message: "History cleared successfully"}, nil
		},
	})
	if _, err := p.OpenDetails("2"); err != nil {
		t.Fatalf("OpenDetails() error: %v", err)
	}

	yes := ConfirmFunc(func(string) bool { return true })
	if err := p.Clear(context.Background(), "alice", yes); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if gotUser != "alice" {
		t.Fatalf("cleared user = %q", gotUser)
	}
	if !p.Empty() {
		t.Fatalf("expected empty cache after clear")
	}
	if _, open := p.OpenView(); open {
		t.Fatalf("expected details view closed after clear")
	}
	if len(rec.events) != 1 || rec.events[0].Outcome != audit.Success {
		t.Fatalf("unexpected audit events: %+v", rec.events)
	}
}

func TestFetchStartedBeforeClearIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p, _ := newPanel(t, fakeAPI{
		fetchFunc: func(context.Context, string) ([]backend.HistoryEntry, error) {
			close(started)
			<-release
			return sampleEntries(), nil
		},
		clearFunc: func(context.Context, string) (backend.Ack, error) {
			return backend.Ack{}, nil
		},
	})

	type result struct {
		entries []Entry
		err     error
	}
	fetched := make(chan result, 1)
	go func() {
		entries, err := p.Fetch(context.Background(), "alice")
		fetched <- result{entries, err}
	}()

	<-started
	if err := p.Clear(context.Background(), "alice", ConfirmFunc(func(string) bool { return true })); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	close(release)

	res := <-fetched
	if res.err != nil {
		t.Fatalf("Fetch() error: %v", res.err)
	}
	if len(res.entries) != 0 || !p.Empty() {
		t.Fatalf("stale fetch repopulated the cache: %+v", p.Entries())
	}

	p.api = fakeAPI{
		fetchFunc: func(context.Context, string) ([]backend.HistoryEntry, error) {
			return sampleEntries()[:1], nil
		},
	}
	if _, err := p.Fetch(context.Background(), "alice"); err != nil {
		t.Fatalf("Fetch() after clear error: %v", err)
	}
	if len(p.Entries()) != 1 {
		t.Fatalf("expected fresh fetch to fill the cache, got %+v", p.Entries())
	}
}

func TestClearFailureKeepsCache(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"rejected", &backend.StatusError{Op: "clear", Status: 404, Detail: "User not found"}, ClearFailedMessage},
		{"unreachable", fmt.Errorf("clear: %w: refused", backend.ErrTransport), apperr.ServerErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, rec := loadedPanel(t, fakeAPI{
				clearFunc: func(context.Context, string) (backend.Ack, error) {
					return backend.Ack{}, tc.err
				},
			})
			err := p.Clear(context.Background(), "alice", ConfirmFunc(func(string) bool { return true }))
			if got := apperr.Message(err); got != tc.want {
				t.Fatalf("message = %q, want %q", got, tc.want)
			}
			if len(p.Entries()) != 3 {
				t.Fatalf("expected cache kept after failed clear")
			}
			if len(rec.events) != 1 || rec.events[0].Outcome != audit.Failure {
				t.Fatalf("unexpected audit events: %+v", rec.events)
			}
		})
	}
}

func TestClearNilConfirmerIsDecline(t *testing.T) {
	p, _ := loadedPanel(t, fakeAPI{})
	if err := p.Clear(context.Background(), "alice", nil); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}

func TestViewDetailsRendersFields(t *testing.T) {
	d, err := ViewDetails(Entry{ID: "7", Details: strPtr(`{"distance_km": 12.5, "mode": null}`)})
	if err != nil {
		t.Fatalf("ViewDetails() error: %v", err)
	}
	want := []Field{{Label: "distance km", Value: "12.5"}, {Label: "mode", Value: "N/A"}}
	if len(d.Fields) != len(want) {
		t.Fatalf("fields = %+v", d.Fields)
	}
	for i := range want {
		if d.Fields[i] != want[i] {
			t.Fatalf("field %d = %+v, want %+v", i, d.Fields[i], want[i])
		}
	}
}

func TestViewDetailsKeepsOrderAndTypes(t *testing.T) {
	raw := `{"Vehicle_Type": null, "Sex": "female", "Recycle_Paper": 1, "flag": true, "list": [1, 2], "Monthly_Grocery_Bill": 230.0}`
	d, err := ViewDetails(Entry{ID: "1", Details: &raw})
	if err != nil {
		t.Fatalf("ViewDetails() error: %v", err)
	}
	wantLabels := []string{"Vehicle Type", "Sex", "Recycle Paper", "flag", "list", "Monthly Grocery Bill"}
	wantValues := []string{"N/A", "female", "1", "true", "[1,2]", "230"}
	if len(d.Fields) != len(wantLabels) {
		t.Fatalf("fields = %+v", d.Fields)
	}
	for i, f := range d.Fields {
		if f.Label != wantLabels[i] || f.Value != wantValues[i] {
			t.Fatalf("field %d = %+v, want %s=%s", i, f, wantLabels[i], wantValues[i])
		}
	}
	if v, ok := d.Get("Sex"); !ok || v != "female" {
		t.Fatalf("Get(Sex) = %q, %v", v, ok)
	}
}

func TestViewDetailsNumberForms(t *testing.T) {
	raw := `{"big": 1e21, "small": 1e-7, "tiny": 1.5e-7, "plain": 0.000001, "neg": -2.50, "zero": -0, "large": 123456789012345680000}`
	d, err := ViewDetails(Entry{ID: "1", Details: &raw})
	if err != nil {
		t.Fatalf("ViewDetails() error: %v", err)
	}
	want := map[string]string{
		"big":   "1e+21",
		"small": "1e-7",
		"tiny":  "1.5e-7",
		"plain": "0.000001",
		"neg":   "-2.5",
		"zero":  "0",
		"large": "123456789012345680000",
	}
	for label, v := range want {
		if got, ok := d.Get(label); !ok || got != v {
			t.Fatalf("Get(%s) = %q, %v; want %q", label, got, ok, v)
		}
	}
}

func TestViewDetailsErrors(t *testing.T) {
	if _, err := ViewDetails(Entry{ID: "1"}); !errors.Is(err, ErrNoDetails) {
		t.Fatalf("expected ErrNoDetails, got %v", err)
	}
	if _, err := ViewDetails(Entry{ID: "1", Details: strPtr("")}); !errors.Is(err, ErrNoDetails) {
		t.Fatalf("expected ErrNoDetails for empty string, got %v", err)
	}
	for _, raw := range []string{`{"a": `, `[1,2]`, `"text"`, `{"a":1} trailing`} {
		if _, err := ViewDetails(Entry{ID: "1", Details: strPtr(raw)}); !errors.Is(err, ErrMalformedDetails) {
			t.Fatalf("ViewDetails(%q): expected ErrMalformedDetails, got %v", raw, err)
		}
	}
}

func TestDetailsModalIsExclusive(t *testing.T) {
	p, _ := loadedPanel(t, fakeAPI{})

	if _, open := p.OpenView(); open {
		t.Fatalf("expected no open view initially")
	}
	v, err := p.OpenDetails("2")
	if err != nil || v.Err != nil || v.Details.EntryID != "2" {
		t.Fatalf("OpenDetails(2) = %+v, %v", v, err)
	}

	v, err = p.OpenDetails("3")
	if err != nil {
		t.Fatalf("OpenDetails(3) error: %v", err)
	}
	if !errors.Is(v.Err, ErrMalformedDetails) || len(v.Details.Fields) != 0 {
		t.Fatalf("expected inert view for malformed details, got %+v", v)
	}
	open, ok := p.OpenView()
	if !ok || open.Details.EntryID != "3" {
		t.Fatalf("OpenView() = %+v, %v; want entry 3", open, ok)
	}

	if _, err := p.OpenDetails("1"); !errors.Is(err, ErrNoDetails) {
		t.Fatalf("expected ErrNoDetails, got %v", err)
	}
	if _, err := p.OpenDetails("missing"); !errors.Is(err, ErrUnknownEntry) {
		t.Fatalf("expected ErrUnknownEntry, got %v", err)
	}

	p.CloseDetails()
	if _, ok := p.OpenView(); ok {
		t.Fatalf("expected view closed")
	}
}
