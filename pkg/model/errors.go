package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the core.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindTransient    Kind = "transient"
)

// Sentinel errors for each kind. Use errors.Is to test for a kind.
var (
	// ErrValidation indicates the input was rejected locally or by the provider.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates the credential is invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the zone or record no longer exists remotely.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the remote value diverged from a local edit, or
	// the provider rejected a duplicate.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates the provider kept rate limiting after the retry budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a network or server failure that may succeed later.
	ErrTransient = errors.New("transient failure")
)

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindRateLimited:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	}
	return nil
}

// Error wraps a failure with its kind, the operation and the affected resource.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Resource != "" {
		msg += ": " + e.Resource
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if s := sentinel(e.Kind); s != nil {
		msg += ": " + s.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) and friends match on kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == sentinel(e.Kind)
}

// NewError creates an Error. err may be nil.
func NewError(kind Kind, op, resource string, err error) *Error {
	return &Error{Kind: kind, Op: op, Resource: resource, Err: err}
}

// Validationf creates a validation error for resource.
func Validationf(resource, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: "validate", Resource: resource, Err: fmt.Errorf(format, args...)}
}

// ConflictError reports a three-way mismatch between a local edit and the
// remote value. Both sides are attached so the caller can choose.
type ConflictError struct {
	Key    string
	Local  Record
	Remote *Record // nil when the record was deleted remotely
}

func (e *ConflictError) Error() string {
	if e.Remote == nil {
		return fmt.Sprintf("conflict: %s: deleted remotely while edited locally", e.Local.String())
	}
	return fmt.Sprintf("conflict: %s: changed remotely (remote content %q, local content %q)",
		e.Local.String(), e.Remote.Content, e.Local.Content)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// KindOf returns the kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return KindConflict
	}
	for _, k := range []Kind{KindValidation, KindUnauthorized, KindNotFound, KindConflict, KindRateLimited, KindTransient} {
		if errors.Is(err, sentinel(k)) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return ""
}

// IsRetryable reports whether a failure of this kind may succeed when retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	}
	return false
}

// IsNotFound returns true if err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized returns true if err is an authentication failure.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict returns true if err is a conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
