// Package apperr holds the user-facing failure taxonomy shared by the auth,
// history and tracking flows.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Rejected: the backend answered with a non-2xx status.
	Rejected Kind = iota + 1
	// Unreachable: transport failure or an unreadable response.
	Unreachable
	// Invalid: the request failed client-side validation and was not sent.
	Invalid
	// Busy: the same operation is already in flight.
	Busy
	// Unauthenticated: the operation needs a session and there is none.
	Unauthenticated
)

func (k Kind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	case Invalid:
		return "invalid"
	case Busy:
		return "busy"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

const (
	ServerErrorMessage = "Server error"
	BusyMessage        = "Request already in progress"
	NotLoggedInMessage = "Please log in first"
)

// Error is what the user sees. Message is always safe to display as-is.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

func BusyError(op string) *Error {
	return New(op, Busy, BusyMessage, nil)
}

// KindOf reports the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the text to show for err. Errors outside the taxonomy get
// the generic server error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return ServerErrorMessage
}
