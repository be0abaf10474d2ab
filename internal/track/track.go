// Package track submits carbon calculations for the logged-in user.
package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"sustainamind/carbontrack/internal/apperr"
	"sustainamind/carbontrack/internal/backend"
	"sustainamind/carbontrack/internal/pending"
	"sustainamind/carbontrack/internal/session"
	"sustainamind/carbontrack/internal/validate"
)

const OpSubmit = "track.submit"

const PredictionFailedMessage = "Prediction failed"

type API interface {
	Predict(ctx context.Context, in backend.CarbonInput) (backend.Prediction, error)
}

type SessionSource interface {
	Load() (session.Session, error)
}

type Result struct {
	Username string
	// Value is the predicted footprint in kg CO2e.
	Value float64
}

type Tracker struct {
	api      API
	sessions SessionSource
	log      *slog.Logger
	validate *validate.Validator
	pending  *pending.Set
}

func NewTracker(api API, sessions SessionSource, logger *slog.Logger) (*Tracker, error) {
	if api == nil {
		return nil, fmt.Errorf("backend api is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		api:      api,
		sessions: sessions,
		log:      logger,
		validate: validate.New(),
		pending:  pending.NewSet(),
	}, nil
}

// Submit sends in for the current session's user; the backend records it in
// that user's history. Any user_id already set on in is replaced.
func (t *Tracker) Submit(ctx context.Context, in backend.CarbonInput) (Result, error) {
	sess, err := t.sessions.Load()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return Result{}, apperr.New(OpSubmit, apperr.Unauthenticated, apperr.NotLoggedInMessage, err)
		}
		return Result{}, apperr.New(OpSubmit, apperr.Unreachable, apperr.ServerErrorMessage, err)
	}
	in.UserID = sess.Username

	if err := t.validate.Struct(in); err != nil {
		return Result{}, apperr.New(OpSubmit, apperr.Invalid, err.Error(), err)
	}
	done, ok := t.pending.Begin(OpSubmit)
	if !ok {
		return Result{}, apperr.BusyError(OpSubmit)
	}
	defer done()

	pred, err := t.api.Predict(ctx, in)
	if err != nil {
		e := apperr.FromBackend(OpSubmit, PredictionFailedMessage, err)
		t.log.Warn("prediction failed", "username", sess.Username, "kind", e.Kind.String(), "err", err)
		return Result{}, e
	}
	t.log.Info("prediction recorded", "username", sess.Username, "value", pred.PredictedCarbonFootprint)
	return Result{Username: sess.Username, Value: pred.PredictedCarbonFootprint}, nil
}

func (t *Tracker) Pending() bool {
	return t.pending.Busy(OpSubmit)
}
