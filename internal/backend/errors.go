package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTransport marks failures where no usable answer came back: the request
// could not be sent, or the response body could not be read or decoded.
var ErrTransport = errors.New("backend transport failure")

// StatusError is a non-2xx answer. Detail holds the body's "detail" field when
// it was a plain string.
type StatusError struct {
	Op     string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// parseDetail pulls a string "detail" out of an error body. Validation errors
// carry a list there; those and non-JSON bodies yield "".
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return detail
}
