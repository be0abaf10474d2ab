package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/audit"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/pending"
	"sustainamind/carbontrack/internal/session"
	"sustainamind/carbontrack/internal/validate"
)

const (
	OpSignUp         = "auth.signup"
	OpLogin          = "auth.login"
	OpResetPassword  = "auth.reset_password"
	OpChangePassword = "auth.change_password"
	OpLogout         = "auth.logout"
)

const (
	SignUpFailedMessage         = "Signup failed"
	LoginFailedMessage          = "Login failed"
	ResetPasswordFailedMessage  = "Failed to reset password"
	ChangePasswordFailedMessage = "Failed to change password"
)

type API interface {
	SignUp(ctx context.Context, req backend.SignUpRequest) (backend.TokenResponse, error)
	Login(ctx context.Context, req backend.LoginRequest) (backend.TokenResponse, error)
	ForgotPassword(ctx context.Context, req backend.ForgotPasswordRequest) (backend.Ack, error)
	ChangePassword(ctx context.Context, req backend.ChangePasswordRequest) (backend.Ack, error)
}

type SessionStore interface {
	Save(s session.Session) error
	Load() (session.Session, error)
	Clear() error
}

type AuditLogger interface {
	Record(e audit.Event) error
}

type Options struct {
	Audit  AuditLogger
	Logger *slog.Logger
}

// Flow performs the identity exchanges with the backend and is the only
// writer of the session store. Nothing is retried; on failure the session is
// left as it was.
type Flow struct {
	api      API
	sessions SessionStore
	audit    AuditLogger
	log      *slog.Logger
	validate *validate.Validator
	pending  *pending.Set
}

func NewFlow(api API, sessions SessionStore, opts Options) (*Flow, error) {
	if api == nil {
		return nil, fmt.Errorf("backend api is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Flow{
		api:      api,
		sessions: sessions,
		audit:    opts.Audit,
		log:      logger,
		validate: validate.New(),
		pending:  pending.NewSet(),
	}, nil
}

func (f *Flow) SignUp(ctx context.Context, req backend.SignUpRequest) (session.Session, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	done, err := f.begin(OpSignUp, req)
	if err != nil {
		return session.Session{}, err
	}
	defer done()

	resp, err := f.api.SignUp(ctx, req)
	if err != nil {
		return session.Session{}, f.fail(OpSignUp, req.Username, SignUpFailedMessage, err)
	}
	return f.establish(OpSignUp, resp)
}

func (f *Flow) Login(ctx context.Context, req backend.LoginRequest) (session.Session, error) {
	req.Email = strings.TrimSpace(req.Email)

	done, err := f.begin(OpLogin, req)
	if err != nil {
		return session.Session{}, err
	}
	defer done()

	resp, err := f.api.Login(ctx, req)
	if err != nil {
		return session.Session{}, f.fail(OpLogin, req.Email, LoginFailedMessage, err)
	}
	return f.establish(OpLogin, resp)
}

// RequestPasswordReset sets a new password for the account matching both the
// email and the username. The backend checks nothing else, so anyone knowing
// both can reset the password. No session is created; callers send the user
// to the login view afterwards.
func (f *Flow) RequestPasswordReset(ctx context.Context, req backend.ForgotPasswordRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	done, err := f.begin(OpResetPassword, req)
	if err != nil {
		return err
	}
	defer done()

	if _, err := f.api.ForgotPassword(ctx, req); err != nil {
		return f.fail(OpResetPassword, req.Username, ResetPasswordFailedMessage, err)
	}
	f.record(req.Username, OpResetPassword, audit.Success, "")
	return nil
}

// ChangePassword needs a session; the username comes from the store, never
// from the caller.
func (f *Flow) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	sess, err := f.sessions.Load()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return apperr.New(OpChangePassword, apperr.Unauthenticated, apperr.NotLoggedInMessage, err)
		}
		return apperr.New(OpChangePassword, apperr.Unreachable, apperr.ServerErrorMessage, err)
	}

	req := backend.ChangePasswordRequest{
		Username:        sess.Username,
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	}
	done, err := f.begin(OpChangePassword, req)
	if err != nil {
		return err
	}
	defer done()

	if _, err := f.api.ChangePassword(ctx, req); err != nil {
		return f.fail(OpChangePassword, sess.Username, ChangePasswordFailedMessage, err)
	}
	f.record(sess.Username, OpChangePassword, audit.Success, "")
	return nil
}

// Logout forgets the session locally. The backend keeps no session state for
// the client, so there is nothing to call.
func (f *Flow) Logout() error {
	actor := ""
	if sess, err := f.sessions.Load(); err == nil {
		actor = sess.Username
	}
	if err := f.sessions.Clear(); err != nil {
		f.record(actor, OpLogout, audit.Failure, err.Error())
		return apperr.New(OpLogout, apperr.Unreachable, "Logout failed", err)
	}
	f.record(actor, OpLogout, audit.Success, "")
	f.log.Info("session cleared", "username", actor)
	return nil
}

// Pending reports whether op has a request in flight.
func (f *Flow) Pending(op string) bool {
	return f.pending.Busy(op)
}

func (f *Flow) begin(op string, req any) (func(), error) {
	if err := f.validate.Struct(req); err != nil {
		return nil, apperr.New(op, apperr.Invalid, err.Error(), err)
	}
	done, ok := f.pending.Begin(op)
	if !ok {
		return nil, apperr.BusyError(op)
	}
	return done, nil
}

func (f *Flow) establish(op string, resp backend.TokenResponse) (session.Session, error) {
	if strings.TrimSpace(resp.AccessToken) == "" || strings.TrimSpace(resp.Username) == "" {
		err := fmt.Errorf("incomplete token response")
		f.record(resp.Username, op, audit.Failure, err.Error())
		return session.Session{}, apperr.New(op, apperr.Unreachable, apperr.ServerErrorMessage, err)
	}

	sess := session.Session{
		Token:       resp.AccessToken,
		Username:    resp.Username,
		DisplayName: resp.Name,
		Email:       resp.Email,
	}
	if err := f.sessions.Save(sess); err != nil {
		f.record(sess.Username, op, audit.Failure, err.Error())
		return session.Session{}, apperr.New(op, apperr.Unreachable, apperr.ServerErrorMessage, err)
	}
	f.record(sess.Username, op, audit.Success, "")
	f.log.Info("session established", "op", op, "username", sess.Username)
	return sess, nil
}

func (f *Flow) fail(op, actor, fallback string, err error) error {
	e := apperr.FromBackend(op, fallback, err)
	f.record(actor, op, audit.Failure, e.Message)
	f.log.Warn("auth exchange failed", "op", op, "kind", e.Kind.String(), "err", err)
	return e
}

func (f *Flow) record(actor, action string, outcome audit.Outcome, detail string) {
	if f.audit == nil {
		return
	}
	if err := f.audit.Record(audit.Event{Actor: actor, Action: action, Outcome: outcome, Detail: detail}); err != nil {
		f.log.Warn("audit record failed", "action", action, "err", err)
	}
}
