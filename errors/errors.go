// Package errors provides the session's error type. It wraps the stdlib
// errors package so callers never need to import both, and adds a Code
// that callers can use to decide how to react to a failure (close the
// connection, drop the request silently, log and continue).
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code categorizes why an operation failed.
type Code uint32

const (
	// Unknown is the zero value and should not be constructed directly.
	Unknown Code = iota
	// Internal means the session's own bookkeeping is broken (a bug, not
	// a malformed request).
	Internal
	// Unavailable means the session (or its transport) is closed or
	// closing.
	Unavailable
	// ResourceExhausted means a configured limit was hit: max in-flight
	// requests, max request size, too many connections.
	ResourceExhausted
	// DeadlineExceeded means a context deadline elapsed while the
	// operation was pending.
	DeadlineExceeded
	// PermissionDenied means the peer's TLS identity failed verification.
	PermissionDenied
	// Unauthenticated means the peer presented no usable identity where
	// one was required.
	Unauthenticated
	// InvalidArgument means the client sent a malformed or unparsable
	// request.
	InvalidArgument
	// FailedPrecondition means the session could not be constructed in
	// its current state (e.g. a required collaborator was nil, or the
	// TLS handshake never got the chance to run).
	FailedPrecondition
)

func (c Code) String() string {
	switch c {
	case Internal:
		return "internal"
	case Unavailable:
		return "unavailable"
	case ResourceExhausted:
		return "resource_exhausted"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case PermissionDenied:
		return "permission_denied"
	case Unauthenticated:
		return "unauthenticated"
	case InvalidArgument:
		return "invalid_argument"
	case FailedPrecondition:
		return "failed_precondition"
	default:
		return "unknown"
	}
}

// Error is the session's error type. It pairs a Code with the underlying
// cause so a caller can both branch on Code and still Unwrap to the
// original error.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error with the given code wrapping err. A nil err
// still produces a non-nil *Error carrying just the code.
func E(c Code, err error) *Error {
	return &Error{Code: c, Err: err}
}

// CodeOf returns the Code of err if it (or something it wraps) is an
// *Error, and Unknown otherwise.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// New, Is, As, and Unwrap are re-exported so callers only need to import
// this package instead of both errors and this one.
var (
	New    = stderrors.New
	Is     = stderrors.Is
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
)
