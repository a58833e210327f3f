package store

import (
	"fmt"
	"net/http"
)

// Kind classifies a storage failure the caller can act on.
type Kind uint8

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is a classified storage error. Engines return copies of the
// sentinels below with a specific message; errors.Is matches on Kind alone.
type Error struct {
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPCode maps the kind to a response status.
func (e *Error) HTTPCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithMessage returns a copy carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Message: msg, Err: e.Err}
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrAlreadyExists = &Error{Kind: KindConflict, Message: "resource already exists"}
	ErrInvalidInput  = &Error{Kind: KindInvalid, Message: "invalid input"}
)

// DuplicateCategory is the conflict both engines report when an owner
// already has a category called name.
func DuplicateCategory(name string) *Error {
	return ErrAlreadyExists.WithMessage(fmt.Sprintf("category %q already exists", name))
}
