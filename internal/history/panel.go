// Package history holds the profile view's calculation history: the cached
// list, the confirmed clear, and the details modal.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/audit"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/pending"
)

const (
	OpFetch = "history.fetch"
	OpClear = "history.clear"
)

const (
	EmptyMessage       = "No calculations found."
	ConfirmClearPrompt = "Are you sure you want to delete all history? This cannot be undone."
	ClearedMessage     = "History cleared successfully."
	FetchFailedMessage = "Failed to fetch history"
	ClearFailedMessage = "Failed to clear history."
)

var (
	ErrNotConfirmed = errors.New("clear history not confirmed")
	ErrUnknownEntry = errors.New("no such history entry")
)

type Entry struct {
	ID          string
	CarbonValue float64
	Timestamp   time.Time
	Details     *string
}

func (e Entry) HasDetails() bool {
	return e.Details != nil && *e.Details != ""
}

// FormatValue renders the value the way the history list shows it.
func (e Entry) FormatValue() string {
	return fmt.Sprintf("%.1f kg", e.CarbonValue)
}

type API interface {
	FetchHistory(ctx context.Context, username string) ([]backend.HistoryEntry, error)
	ClearHistory(ctx context.Context, username string) (backend.Ack, error)
}

type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

type AuditLogger interface {
	Record(e audit.Event) error
}

type Options struct {
	Audit  AuditLogger
	Logger *slog.Logger
}

// View is the open details modal. A view whose details failed to parse is
// inert: Err is set and Details is empty.
type View struct {
	Details Details
	Err     error
}

type Panel struct {
	api     API
	audit   AuditLogger
	log     *slog.Logger
	pending *pending.Set

	mu      sync.Mutex
	entries []Entry
	open    *View
	// gen counts successful clears; a fetch started before one is stale.
	gen uint64
}

func NewPanel(api API, opts Options) (*Panel, error) {
	if api == nil {
		return nil, fmt.Errorf("backend api is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Panel{
		api:     api,
		audit:   opts.Audit,
		log:     logger,
		pending: pending.NewSet(),
		entries: []Entry{},
	}, nil
}

// Fetch replaces the cache with the backend's list, in the backend's order.
// On failure the cache is left as it was.
func (p *Panel) Fetch(ctx context.Context, username string) ([]Entry, error) {
	done, ok := p.pending.Begin(OpFetch)
	if !ok {
		return nil, apperr.BusyError(OpFetch)
	}
	defer done()

	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	items, err := p.api.FetchHistory(ctx, username)
	if err != nil {
		e := apperr.FromBackend(OpFetch, FetchFailedMessage, err)
		if e.Kind == apperr.Rejected {
			e.Message = FetchFailedMessage
		}
		p.log.Warn("fetch history failed", "username", username, "err", err)
		return nil, e
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, Entry{
			ID:          string(it.ID),
			CarbonValue: it.CarbonValue,
			Timestamp:   it.Timestamp.Time,
			Details:     it.Details,
		})
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.log.Debug("dropping history fetched before a clear", "username", username)
		return p.Entries(), nil
	}
	p.entries = entries
	p.mu.Unlock()
	return p.Entries(), nil
}

// Clear asks c before deleting anything. A declined prompt sends no request.
// The cache is emptied only after the backend confirms.
func (p *Panel) Clear(ctx context.Context, username string, c Confirmer) error {
	if c == nil || !c.Confirm(ConfirmClearPrompt) {
		return ErrNotConfirmed
	}
	done, ok := p.pending.Begin(OpClear)
	if !ok {
		return apperr.BusyError(OpClear)
	}
	defer done()

	if _, err := p.api.ClearHistory(ctx, username); err != nil {
		e := apperr.FromBackend(OpClear, ClearFailedMessage, err)
		if e.Kind == apperr.Rejected {
			e.Message = ClearFailedMessage
		}
		p.record(username, audit.Failure, e.Message)
		return e
	}

	p.mu.Lock()
	p.entries = []Entry{}
	p.open = nil
	p.gen++
	p.mu.Unlock()
	p.record(username, audit.Success, "")
	return nil
}

func (p *Panel) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Panel) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) == 0
}

func (p *Panel) Pending(op string) bool {
	return p.pending.Busy(op)
}

// OpenDetails shows the details of a cached entry, replacing any open view.
// Entries without details cannot be opened.
func (p *Panel) OpenDetails(id string) (View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var entry *Entry
	for i := range p.entries {
		if p.entries[i].ID == id {
			entry = &p.entries[i]
			break
		}
	}
	if entry == nil {
		return View{}, ErrUnknownEntry
	}

	d, err := ViewDetails(*entry)
	if errors.Is(err, ErrNoDetails) {
		return View{}, err
	}
	v := View{Details: d, Err: err}
	if err != nil {
		v.Details = Details{EntryID: entry.ID}
		p.log.Warn("details unreadable", "entry", entry.ID, "err", err)
	}
	p.open = &v
	return v, nil
}

func (p *Panel) CloseDetails() {
	p.mu.Lock()
	p.open = nil
	p.mu.Unlock()
}

func (p *Panel) OpenView() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open == nil {
		return View{}, false
	}
	return *p.open, true
}

func (p *Panel) record(actor string, outcome audit.Outcome, detail string) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Record(audit.Event{Actor: actor, Action: OpClear, Outcome: outcome, Detail: detail}); err != nil {
		p.log.Warn("audit record failed", "action", OpClear, "err", err)
	}
}
