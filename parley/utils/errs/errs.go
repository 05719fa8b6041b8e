// Package errs holds the error taxonomy shared by the gateway and the client.
// Classify with errors.Is; never compare error strings.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("conversation not found")
	ErrForbidden  = errors.New("forbidden")
	ErrStore      = errors.New("store error")
	ErrAuth       = errors.New("auth error")
	ErrResponder  = errors.New("responder error")

	ErrEmptyInput       = errors.New("empty input")
	ErrNoConversation   = errors.New("no active conversation")
	ErrNotSignedIn      = errors.New("sign in to send messages")
	ErrBootstrapAborted = errors.New("bootstrap aborted")
)

// ValidationError names the first required field that was missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field == "":
		return e.Reason
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Field + " is required"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Required(field string) error {
	return &ValidationError{Field: field}
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Store wraps a persistence-layer failure.
func Store(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func Auth(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrAuth, err)
}

func Responder(err error) error {
	return fmt.Errorf("%w: %w", ErrResponder, err)
}

// Code is the stable machine-readable name used on the wire.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAuth):
		return "unauthorized"
	case errors.Is(err, ErrResponder):
		return "responder"
	default:
		return "store"
	}
}

// FromCode rebuilds a classified error from a wire code and message.
func FromCode(code, msg string) error {
	switch code {
	case "validation":
		return &ValidationError{Reason: msg}
	case "not_found":
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case "forbidden":
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case "unauthorized":
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	case "responder":
		return fmt.Errorf("%w: %s", ErrResponder, msg)
	default:
		return fmt.Errorf("%w: %s", ErrStore, msg)
	}
}
