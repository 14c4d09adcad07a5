package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("email already registered")
	ErrInvalidOTPKey = errors.New("invalid otp key")
	ErrOTPMismatch   = errors.New("invalid otp")
	ErrOTPExpired    = errors.New("otp has expired")
	ErrOTPUsed       = errors.New("otp has already been used")
	ErrUnauthorized  = errors.New("invalid credentials")
	ErrUnverified    = errors.New("email address not verified")
	ErrServer        = errors.New("internal server error")
)

// ValidationError reports malformed input. Fields maps a request field name
// to the rule it failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for f, reason := range e.Fields {
		parts = append(parts, f+": "+reason)
	}
	sort.Strings(parts)
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// serverError tags an unexpected failure as ErrServer while keeping the
// cause in the chain for logging.
type serverError struct {
	op  string
	err error
}

func (e *serverError) Error() string { return e.op + ": " + e.err.Error() }

func (e *serverError) Unwrap() []error { return []error{ErrServer, e.err} }

func internal(op string, err error) error {
	return &serverError{op: op, err: err}
}
