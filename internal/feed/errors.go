package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TransportError is any failure talking to the feed API.
// Status is the HTTP status, or 0 when no response was received.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("feed %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("feed %s: %d - %s", e.Op, e.Status, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the platform rejected the credential.
func (e *TransportError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Transient reports whether retrying the same request may succeed.
func (e *TransportError) Transient() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a TransportError worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Transient()
}

// IsUnauthorized reports whether err is a TransportError caused by a rejected credential.
func IsUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Unauthorized()
}

func networkError(op string, err error) error {
	return &TransportError{Op: op, Message: err.Error(), Err: err}
}

// statusError builds the error for a non-2xx response.
// The message prefers the problem body's detail, then its title, then the status text.
func statusError(op string, status int, body []byte) error {
	msg := http.StatusText(status)
	var problem problemResponse
	if len(body) > 0 && json.Unmarshal(body, &problem) == nil {
		switch {
		case problem.Detail != "":
			msg = problem.Detail
		case problem.Title != "":
			msg = problem.Title
		}
	}
	if msg == "" {
		msg = "unexpected status"
	}
	return &TransportError{Op: op, Status: status, Message: msg}
}
