// Package ferrors provides the error taxonomy shared by every pipeline in
// cargo-fetcher. It extends Go's standard error handling with a closed set
// of error kinds, retry classification, and wrapping helpers that preserve
// errors.Is/As compatibility.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the fixed categories the drivers
// reason about when deciding whether to retry, abort, or record a
// per-artifact failure.
type Kind string

const (
	// KindConfig indicates a bad URL, missing credentials, or an
	// unparseable lockfile. Fatal at startup.
	KindConfig Kind = "CONFIG"

	// KindTransport indicates a network failure, HTTP 5xx, or backend
	// auth rejection. Retried with backoff before being recorded.
	KindTransport Kind = "TRANSPORT"

	// KindIntegrity indicates a checksum mismatch. Fatal for the
	// affected artifact only.
	KindIntegrity Kind = "INTEGRITY"

	// KindNotFound indicates an absence of an object. Whether this is
	// fatal depends on the calling context (expected during mirror's
	// existence check, fatal during sync).
	KindNotFound Kind = "NOT_FOUND"

	// KindLocalIO indicates disk full, permissions, or a path conflict.
	// Fatal for the affected artifact.
	KindLocalIO Kind = "LOCAL_IO"
)

// Error wraps an underlying error with a Kind and a message, preserving
// errors.Is/As compatibility via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Err)
}

// Unwrap exposes the wrapped error so errors.Is/As continue to work.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether an error of this Kind should be retried
// with backoff by internal/retry. Only transport-class failures are
// retryable; everything else is either fatal or a normal signal.
func (e *Error) Retryable() bool { return e.Kind == KindTransport }

// New constructs a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error. Returns nil if
// err is nil, mirroring the teacher's WrapError convention.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error. Returns ok=false if no Kind could be determined.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err should be retried per Kind classification.
// Errors with no Kind attached are treated as non-retryable.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

// ErrAlreadyUpToDate signals a normal "nothing changed" outcome from a
// fetch/refresh operation; callers should not treat it as a failure.
var ErrAlreadyUpToDate = errors.New("already up to date")
