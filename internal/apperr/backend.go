package apperr

import "sustainamind/carbontrack/internal/backend"

// FromBackend classifies an error returned by the backend client. A non-2xx
// answer becomes Rejected with the server's detail text, or fallback when the
// server gave none; anything else is Unreachable.
func FromBackend(op, fallback string, err error) *Error {
	if se, ok := backend.AsStatusError(err); ok {
		msg := se.Detail
		if msg == "" {
			msg = fallback
		}
		return New(op, Rejected, msg, err)
	}
	return New(op, Unreachable, ServerErrorMessage, err)
}
