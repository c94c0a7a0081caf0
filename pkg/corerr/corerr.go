// Package corerr defines the error taxonomy the scheduler core recognises
// and the propagation/retry policy attached to each kind.
package corerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the core should react to it.
type Kind string

const (
	// KindNotFound: referenced session/agent/kernel/image/policy does not
	// exist. Never retried; surfaced to the caller.
	KindNotFound Kind = "not_found"
	// KindPermissionDenied: caller lacks rights. Never retried.
	KindPermissionDenied Kind = "permission_denied"
	// KindPreconditionFailed: a status guard failed (e.g. the session is
	// not in the expected status). The handler treats the session as a
	// no-op this round; the next round re-reads current state.
	KindPreconditionFailed Kind = "precondition_failed"
	// KindResourceExhausted: no agent has enough capacity. The scheduling
	// handler leaves the session PENDING with this reason.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindTransient: network/RPC/store hiccup. Retried with bounded
	// exponential backoff, then demoted to KindFailure.
	KindTransient Kind = "transient"
	// KindFailure: retries exhausted or an unrecoverable error. The
	// session moves to ERROR with the kind as reason.
	KindFailure Kind = "failure"
	// KindFatal: process-level error (misconfiguration, corrupt state).
	// Logged; the loop exits and the supervising process restarts.
	KindFatal Kind = "fatal"
)

// CoreError is the concrete error type carrying a Kind.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

func newf(kind Kind, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *CoreError { return newf(KindNotFound, format, args...) }

func PermissionDenied(format string, args ...any) *CoreError {
	return newf(KindPermissionDenied, format, args...)
}

func PreconditionFailed(format string, args ...any) *CoreError {
	return newf(KindPreconditionFailed, format, args...)
}

func ResourceExhausted(format string, args ...any) *CoreError {
	return newf(KindResourceExhausted, format, args...)
}

// Transient wraps cause as a retryable error.
func Transient(cause error, format string, args ...any) *CoreError {
	return &CoreError{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Failure wraps cause as a terminal, non-retryable error.
func Failure(cause error, format string, args ...any) *CoreError {
	return &CoreError{Kind: KindFailure, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Fatal wraps cause as a process-level error.
func Fatal(cause error, format string, args ...any) *CoreError {
	return &CoreError{Kind: KindFatal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *CoreError, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) a *CoreError of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
