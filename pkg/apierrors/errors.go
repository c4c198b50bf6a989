// Package apierrors defines the error kinds shared by every design
// component. Callers branch on the kind with errors.Is instead of on
// concrete error types.
package apierrors

import (
	"errors"
	"net/http"
	"strings"
)

// Error kinds.
var (
	ErrNotFound           = errors.New("not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrVersionConflict    = errors.New("version conflict")
	ErrCommandApplication = errors.New("command application failed")
	ErrStorage            = errors.New("storage failure")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
)

var kinds = []error{
	ErrNotFound,
	ErrAccessDenied,
	ErrVersionConflict,
	ErrCommandApplication,
	ErrStorage,
	ErrConflict,
	ErrInvalidInput,
}

// Error is an operation failure tagged with one of the error kinds.
type Error struct {
	// Op is the operation that failed, e.g. "AppendCommand".
	Op string

	// Kind is one of the package level sentinel errors.
	Kind error

	// Msg is optional human readable context.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// E builds an *Error.
func E(op string, kind error, msg string, err error) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: err}
}

// NotFound returns an ErrNotFound error for op.
func NotFound(op, msg string) *Error {
	return E(op, ErrNotFound, msg, nil)
}

// AccessDenied returns an ErrAccessDenied error for op.
func AccessDenied(op, msg string) *Error {
	return E(op, ErrAccessDenied, msg, nil)
}

// Storage wraps a persistence failure.
func Storage(op string, err error) *Error {
	return E(op, ErrStorage, "", err)
}

// KindOf returns the kind of err, or nil if err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps the kind of err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAccessDenied:
		return http.StatusForbidden
	case ErrVersionConflict, ErrConflict:
		return http.StatusConflict
	case ErrCommandApplication:
		return http.StatusUnprocessableEntity
	case ErrInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
