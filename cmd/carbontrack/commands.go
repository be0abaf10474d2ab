package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"sustainamind/carbontrack/internal/app"
	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/guard"
	"sustainamind/carbontrack/internal/history"
	"sustainamind/carbontrack/internal/session"
	"sustainamind/carbontrack/internal/track"
	"sustainamind/carbontrack/internal/tui"
)

const usage = `usage: carbontrack <command> [flags]

commands:
  signup            create an account and log in
  login             log in
  logout            forget the stored session
  whoami            show the logged-in user
  forgot-password   set a new password by email and username
  change-password   change the password of the logged-in user
  history           list past calculations
  details <id>      show the inputs of one calculation
  clear-history     delete all calculations (asks first unless --yes)
  track             submit a calculation (--set Field=value, repeatable)
  activity          show recent account activity on this machine (-n N)
  tui               interactive client (--view /path opens that screen)
`

type cli struct {
	ctx    context.Context
	app    *app.App
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, a *app.App, args []string, in io.Reader, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(errOut, usage)
		return 2
	}
	c := &cli{ctx: ctx, app: a, in: bufio.NewReader(in), out: out, errOut: errOut}

	var err error
	switch args[0] {
	case "signup":
		err = c.signUp(args[1:])
	case "login":
		err = c.login(args[1:])
	case "logout":
		err = c.logout()
	case "whoami":
		err = c.whoami()
	case "forgot-password":
		err = c.forgotPassword(args[1:])
	case "change-password":
		err = c.changePassword(args[1:])
	case "history":
		err = c.history()
	case "details":
		err = c.details(args[1:])
	case "clear-history":
		err = c.clearHistory(args[1:])
	case "track":
		err = c.track(args[1:])
	case "activity":
		err = c.activity(args[1:])
	case "tui":
		err = c.tui(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(errOut, "Error:", userMessage(err))
		return 1
	}
	return 0
}

func userMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// prompt returns value, or asks for it on stdin when it is empty.
func (c *cli) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(c.out, "%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// requireView runs the route guard for a command that stands for a protected
// view and returns the session it will act for.
func (c *cli) requireView(v guard.View) (session.Session, error) {
	if d := c.app.Guard.Navigate(v); d.Outcome != guard.Allowed {
		return session.Session{}, apperr.New(string(v), apperr.Unauthenticated, apperr.NotLoggedInMessage, nil)
	}
	return c.app.Sessions.Load()
}

func (c *cli) signUp(args []string) error {
	fs := c.flags("signup")
	name := fs.String("name", "", "full name")
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := c.prompt("Password", *password)
	if err != nil {
		return err
	}
	sess, err := c.app.Auth.SignUp(c.ctx, backend.SignUpRequest{
		Name: *name, Username: *username, Email: *email, Password: pw,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Welcome, %s. You are logged in as %s.\n", sess.DisplayName, sess.Username)
	return nil
}

func (c *cli) login(args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := c.prompt("Password", *password)
	if err != nil {
		return err
	}
	sess, err := c.app.Auth.Login(c.ctx, backend.LoginRequest{Email: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Welcome back, %s.\n", sess.DisplayName)
	return nil
}

func (c *cli) logout() error {
	if err := c.app.Auth.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out.")
	return nil
}

func (c *cli) whoami() error {
	sess, err := c.app.Sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		fmt.Fprintln(c.out, "Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s) <%s>\n", sess.DisplayName, sess.Username, sess.Email)
	return nil
}

func (c *cli) forgotPassword(args []string) error {
	fs := c.flags("forgot-password")
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "username")
	newPassword := fs.String("new-password", "", "new password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := c.prompt("New password", *newPassword)
	if err != nil {
		return err
	}
	if err := c.app.Auth.RequestPasswordReset(c.ctx, backend.ForgotPasswordRequest{
		Email: *email, Username: *username, NewPassword: pw,
	}); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Password updated successfully! Log in with the new password.")
	return nil
}

func (c *cli) changePassword(args []string) error {
	fs := c.flags("change-password")
	current := fs.String("current", "", "current password (prompted when omitted)")
	next := fs.String("new", "", "new password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.requireView(guard.Profile); err != nil {
		return err
	}
	cur, err := c.prompt("Current password", *current)
	if err != nil {
		return err
	}
	nw, err := c.prompt("New password", *next)
	if err != nil {
		return err
	}
	if err := c.app.Auth.ChangePassword(c.ctx, cur, nw); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Password changed successfully!")
	return nil
}

func (c *cli) history() error {
	sess, err := c.requireView(guard.Profile)
	if err != nil {
		return err
	}
	entries, err := c.app.History.Fetch(c.ctx, sess.Username)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, history.EmptyMessage)
		return nil
	}
	for _, e := range entries {
		marker := ""
		if e.HasDetails() {
			marker = "  (details)"
		}
		fmt.Fprintf(c.out, "%-6s %-12s %s%s\n", e.ID, e.FormatValue(), e.Timestamp.Local().Format("2006-01-02 15:04"), marker)
	}
	return nil
}

func (c *cli) details(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: carbontrack details <id>")
	}
	sess, err := c.requireView(guard.Profile)
	if err != nil {
		return err
	}
	if _, err := c.app.History.Fetch(c.ctx, sess.Username); err != nil {
		return err
	}
	v, err := c.app.History.OpenDetails(args[0])
	switch {
	case errors.Is(err, history.ErrUnknownEntry):
		return fmt.Errorf("no calculation with id %s", args[0])
	case errors.Is(err, history.ErrNoDetails):
		return fmt.Errorf("calculation %s has no recorded inputs", args[0])
	case err != nil:
		return err
	}
	defer c.app.History.CloseDetails()
	if v.Err != nil {
		return fmt.Errorf("the inputs of calculation %s could not be read", args[0])
	}
	for _, f := range v.Details.Fields {
		fmt.Fprintf(c.out, "%-32s %s\n", f.Label, f.Value)
	}
	return nil
}

func (c *cli) clearHistory(args []string) error {
	fs := c.flags("clear-history")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := c.requireView(guard.Profile)
	if err != nil {
		return err
	}

	confirm := history.ConfirmFunc(func(prompt string) bool {
		if *yes {
			return true
		}
		answer, err := c.prompt(prompt+" [y/N]", "")
		if err != nil {
			return false
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes"
	})
	err = c.app.History.Clear(c.ctx, sess.Username, confirm)
	if errors.Is(err, history.ErrNotConfirmed) {
		fmt.Fprintln(c.out, "Nothing deleted.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, history.ClearedMessage)
	return nil
}

type setFlags map[string]string

func (s setFlags) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k+"="+s[k])
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (s setFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("want Field=value, got %q", v)
	}
	s[strings.TrimSpace(k)] = val
	return nil
}

func (c *cli) track(args []string) error {
	fs := c.flags("track")
	values := setFlags{}
	fs.Var(values, "set", "input as Field=value, repeatable")
	list := fs.Bool("fields", false, "list the input fields and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list {
		for _, f := range track.Fields() {
			fmt.Fprintln(c.out, f.Name)
		}
		return nil
	}
	if _, err := c.requireView(guard.TrackCarbon); err != nil {
		return err
	}
	in, err := track.ParseFields(values)
	if err != nil {
		return err
	}
	res, err := c.app.Tracker.Submit(c.ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Estimated footprint: %.1f kg CO2e\n", res.Value)
	return nil
}

func (c *cli) activity(args []string) error {
	fs := c.flags("activity")
	n := fs.Int("n", 20, "number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	events, err := c.app.Audit.Tail(*n)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(c.out, "No activity recorded.")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-22s %-8s %s", e.At.Local().Format("2006-01-02 15:04:05"), e.Action, e.Outcome, e.Actor)
		if e.Detail != "" {
			line += "  (" + e.Detail + ")"
		}
		fmt.Fprintln(c.out, line)
	}
	return nil
}

func (c *cli) tui(args []string) error {
	fs := c.flags("tui")
	view := fs.String("view", string(guard.Home), "screen to open first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := guard.Parse(*view)
	if err != nil {
		return err
	}

	m := tui.NewModel(c.ctx, tui.Deps{
		Auth:     c.app.Auth,
		Sessions: c.app.Sessions,
		Guard:    c.app.Guard,
		History:  c.app.History,
		Tracker:  c.app.Tracker,
		Start:    start,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(c.ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
