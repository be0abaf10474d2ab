// Package tui is the interactive terminal client. Each screen stands for one
// view of the web client, and every navigation goes through the route guard.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/auth"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/guard"
	"sustainamind/carbontrack/internal/history"
	"sustainamind/carbontrack/internal/session"
	"sustainamind/carbontrack/internal/track"
)

type AuthFlow interface {
	SignUp(ctx context.Context, req backend.SignUpRequest) (session.Session, error)
	Login(ctx context.Context, req backend.LoginRequest) (session.Session, error)
	RequestPasswordReset(ctx context.Context, req backend.ForgotPasswordRequest) error
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	Logout() error
	Pending(op string) bool
}

type Sessions interface {
	Load() (session.Session, error)
	Subscribe(fn func(session.Change)) func()
}

type Navigator interface {
	Navigate(v guard.View) guard.Decision
	Links() []guard.Link
}

type HistoryPanel interface {
	Fetch(ctx context.Context, username string) ([]history.Entry, error)
	Clear(ctx context.Context, username string, c history.Confirmer) error
	OpenDetails(id string) (history.View, error)
	CloseDetails()
	Pending(op string) bool
}

type Tracker interface {
	Submit(ctx context.Context, in backend.CarbonInput) (track.Result, error)
	Pending() bool
}

type Deps struct {
	Auth     AuthFlow
	Sessions Sessions
	Guard    Navigator
	History  HistoryPanel
	Tracker  Tracker

	// Start is the first view requested; empty means home.
	Start guard.View
}

type mode int

const (
	modeBrowse mode = iota
	modeForm
	modeConfirmClear
	modeDetails
)

type sessionChangedMsg session.Change

type authResultMsg struct {
	kind formKind
	sess session.Session
	err  error
}

type historyLoadedMsg struct {
	gen     int
	entries []history.Entry
	err     error
}

type historyClearedMsg struct {
	err error
}

type trackedMsg struct {
	res track.Result
	err error
}

type Model struct {
	deps        Deps
	ctx         context.Context
	changes     chan session.Change
	unsubscribe func()
	startCmd    tea.Cmd

	view    guard.View
	mode    mode
	form    *form
	entries []history.Entry
	// historyGen invalidates history loads issued before a clear or logout.
	historyGen int
	cursor     int
	details    history.View
	status     string
	isError    bool

	width    int
	height   int
	quitting bool
}

func NewModel(ctx context.Context, deps Deps) Model {
	changes := make(chan session.Change, 8)
	unsubscribe := deps.Sessions.Subscribe(func(c session.Change) {
		select {
		case changes <- c:
		default:
		}
	})

	m := Model{
		deps:        deps,
		ctx:         ctx,
		changes:     changes,
		unsubscribe: unsubscribe,
		width:       100,
		height:      30,
	}
	start := deps.Start
	if start == "" {
		start = guard.Home
	}
	next, cmd := m.navigate(start)
	next.startCmd = cmd
	return next
}

// Close drops the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	if m.startCmd == nil {
		return waitForChange(m.changes)
	}
	return tea.Batch(waitForChange(m.changes), m.startCmd)
}

func waitForChange(ch <-chan session.Change) tea.Cmd {
	return func() tea.Msg {
		return sessionChangedMsg(<-ch)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionChangedMsg:
		// A logout elsewhere must take protected screens down with it.
		if msg.Kind == session.Cleared {
			m.dropHistory()
			if m.view.Protected() {
				m, _ = m.navigate(m.view)
			}
		}
		return m, waitForChange(m.changes)

	case authResultMsg:
		return m.onAuthResult(msg)

	case historyLoadedMsg:
		if msg.gen != m.historyGen || isBusy(msg.err) {
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = max(0, len(m.entries)-1)
		}
		return m, nil

	case historyClearedMsg:
		m.mode = modeBrowse
		if isBusy(msg.err) {
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.dropHistory()
		m.setStatus(history.ClearedMessage)
		return m, nil

	case trackedMsg:
		if isBusy(msg.err) {
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Estimated footprint: %.1f kg CO2e", msg.res.Value))
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.mode {
		case modeForm:
			return m.updateForm(msg)
		case modeConfirmClear:
			return m.updateConfirm(msg)
		case modeDetails:
			return m.updateDetails(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

// navigate asks the guard which screen to show and sets it up.
func (m Model) navigate(v guard.View) (Model, tea.Cmd) {
	d := m.deps.Guard.Navigate(v)
	m.view = d.View
	m.mode = modeBrowse
	m.form = nil
	m.details = history.View{}
	if d.Outcome == guard.Redirected {
		m.setErrorText(apperr.NotLoggedInMessage)
	}

	switch m.view {
	case guard.Login:
		m.form = loginForm()
		m.mode = modeForm
	case guard.SignUp:
		m.form = signUpForm()
		m.mode = modeForm
	case guard.ForgotPassword:
		m.form = forgotPasswordForm()
		m.mode = modeForm
	case guard.TrackCarbon:
		m.form = trackForm()
		m.mode = modeForm
	case guard.Profile:
		m.dropHistory()
		return m.fetchHistory()
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" {
		m.quitting = true
		return m, tea.Quit
	}

	links := m.deps.Guard.Links()
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		i := int(key[0] - '1')
		if i < len(links) {
			m.clearStatus()
			if links[i].Logout {
				return m.logout()
			}
			return m.navigate(links[i].View)
		}
		return m, nil
	}

	switch m.view {
	case guard.Login:
		switch key {
		case "s":
			return m.navigate(guard.SignUp)
		case "f":
			return m.navigate(guard.ForgotPassword)
		}
	case guard.SignUp, guard.ForgotPassword:
		if key == "l" {
			return m.navigate(guard.Login)
		}
	case guard.Profile:
		return m.updateProfile(key)
	}

	if (key == "enter" || key == "i") && m.form != nil {
		m.mode = modeForm
		m.form.focusCurrent()
	}
	return m, nil
}

func (m Model) updateProfile(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		if !m.selectedHasDetails() {
			return m, nil
		}
		v, err := m.deps.History.OpenDetails(m.entries[m.cursor].ID)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.details = v
		m.mode = modeDetails
	case "c":
		if m.deps.History.Pending(history.OpClear) {
			return m, nil
		}
		m.mode = modeConfirmClear
	case "p":
		m.form = changePasswordForm()
		m.mode = modeForm
	case "r":
		return m.fetchHistory()
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.form.blurAll()
		if m.form.kind == formChangePassword {
			m.form = nil
		}
		m.mode = modeBrowse
		return m, nil
	case "tab", "down":
		m.form.next()
		return m, nil
	case "shift+tab", "up":
		m.form.prev()
		return m, nil
	case "enter":
		if m.formPending() {
			return m, nil
		}
		return m.submit()
	}
	return m, m.form.update(msg)
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		sess, err := m.deps.Sessions.Load()
		if err != nil {
			return m.navigate(guard.Profile)
		}
		confirmed := history.ConfirmFunc(func(string) bool { return true })
		ctx, panel := m.ctx, m.deps.History
		return m, func() tea.Msg {
			return historyClearedMsg{err: panel.Clear(ctx, sess.Username, confirmed)}
		}
	case "n", "N", "esc":
		m.mode = modeBrowse
	}
	return m, nil
}

func (m Model) updateDetails(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "q":
		m.deps.History.CloseDetails()
		m.details = history.View{}
		m.mode = modeBrowse
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	f := m.form
	ctx, flow := m.ctx, m.deps.Auth
	m.clearStatus()

	switch f.kind {
	case formLogin:
		req := backend.LoginRequest{Email: f.value("email"), Password: f.value("password")}
		return m, func() tea.Msg {
			sess, err := flow.Login(ctx, req)
			return authResultMsg{kind: formLogin, sess: sess, err: err}
		}
	case formSignUp:
		req := backend.SignUpRequest{
			Name:     f.value("name"),
			Username: f.value("username"),
			Email:    f.value("email"),
			Password: f.value("password"),
		}
		return m, func() tea.Msg {
			sess, err := flow.SignUp(ctx, req)
			return authResultMsg{kind: formSignUp, sess: sess, err: err}
		}
	case formForgotPassword:
		req := backend.ForgotPasswordRequest{
			Email:       f.value("email"),
			Username:    f.value("username"),
			NewPassword: f.value("new_password"),
		}
		return m, func() tea.Msg {
			return authResultMsg{kind: formForgotPassword, err: flow.RequestPasswordReset(ctx, req)}
		}
	case formChangePassword:
		current, next := f.value("current_password"), f.value("new_password")
		return m, func() tea.Msg {
			return authResultMsg{kind: formChangePassword, err: flow.ChangePassword(ctx, current, next)}
		}
	case formTrack:
		in, err := track.ParseFields(f.values())
		if err != nil {
			m.setErrorText(err.Error())
			return m, nil
		}
		tracker := m.deps.Tracker
		return m, func() tea.Msg {
			res, err := tracker.Submit(ctx, in)
			return trackedMsg{res: res, err: err}
		}
	}
	return m, nil
}

func (m Model) onAuthResult(msg authResultMsg) (tea.Model, tea.Cmd) {
	if isBusy(msg.err) {
		return m, nil
	}
	if msg.err != nil {
		m.setError(msg.err)
		return m, nil
	}

	switch msg.kind {
	case formLogin, formSignUp:
		next, cmd := m.navigate(guard.TrackCarbon)
		next.setStatus("Welcome, " + displayName(msg.sess))
		return next, cmd
	case formForgotPassword:
		next, cmd := m.navigate(guard.Login)
		next.setStatus("Password updated successfully! Please log in.")
		return next, cmd
	case formChangePassword:
		m.form = nil
		m.mode = modeBrowse
		m.setStatus("Password changed successfully!")
	}
	return m, nil
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	if err := m.deps.Auth.Logout(); err != nil {
		m.setError(err)
		return m, nil
	}
	m.dropHistory()
	return m.navigate(guard.Login)
}

func (m Model) fetchHistory() (Model, tea.Cmd) {
	sess, err := m.deps.Sessions.Load()
	if err != nil {
		m.setErrorText(apperr.NotLoggedInMessage)
		return m, nil
	}
	m.historyGen++
	gen, ctx, panel := m.historyGen, m.ctx, m.deps.History
	return m, func() tea.Msg {
		entries, err := panel.Fetch(ctx, sess.Username)
		return historyLoadedMsg{gen: gen, entries: entries, err: err}
	}
}

// dropHistory forgets the listed entries and any load still in flight.
func (m *Model) dropHistory() {
	m.entries = nil
	m.cursor = 0
	m.historyGen++
}

func (m Model) selectedHasDetails() bool {
	return m.cursor < len(m.entries) && m.entries[m.cursor].HasDetails()
}

// formPending reports whether the current form's request is still in flight.
func (m Model) formPending() bool {
	switch m.form.kind {
	case formLogin:
		return m.deps.Auth.Pending(auth.OpLogin)
	case formSignUp:
		return m.deps.Auth.Pending(auth.OpSignUp)
	case formForgotPassword:
		return m.deps.Auth.Pending(auth.OpResetPassword)
	case formChangePassword:
		return m.deps.Auth.Pending(auth.OpChangePassword)
	case formTrack:
		return m.deps.Tracker.Pending()
	}
	return false
}

// working reports whether any backend request is in flight.
func (m Model) working() bool {
	for _, op := range []string{auth.OpSignUp, auth.OpLogin, auth.OpResetPassword, auth.OpChangePassword} {
		if m.deps.Auth.Pending(op) {
			return true
		}
	}
	return m.deps.History.Pending(history.OpFetch) ||
		m.deps.History.Pending(history.OpClear) ||
		m.deps.Tracker.Pending()
}

// isBusy marks the result of a duplicate submit; the first request's result
// is the one shown.
func isBusy(err error) bool {
	return apperr.KindOf(err) == apperr.Busy
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.isError = false
}

func (m *Model) setErrorText(s string) {
	m.status = s
	m.isError = true
}

func (m *Model) setError(err error) {
	switch {
	case errors.Is(err, history.ErrNoDetails):
		m.setErrorText("No inputs were recorded for this calculation")
	case errors.Is(err, history.ErrUnknownEntry):
		m.setErrorText("That calculation is no longer listed")
	default:
		m.setErrorText(apperr.Message(err))
	}
}

func (m *Model) clearStatus() {
	m.status = ""
	m.isError = false
}

func (m Model) CurrentView() guard.View { return m.view }

func (m Model) Status() (string, bool) { return m.status, m.isError }

func displayName(s session.Session) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}
