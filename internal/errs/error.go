// Package errs defines the structured error taxonomy shared across the
// coordination core: every failure returned from the store, the search
// planner, the summariser, the reservation engine, or the build-slot lease
// carries a machine code and a retryability bit, per the error handling
// design.
package errs

import (
	"fmt"
	"strings"
)

// Code is a machine-stable error classifier returned at every boundary.
type Code string

const (
	CodeResourceBusy     Code = "RESOURCE_BUSY"
	CodePoolExhausted    Code = "DATABASE_POOL_EXHAUSTED"
	CodeSQLite           Code = "SQLITE"
	CodeCircuitOpen      Code = "CIRCUIT_BREAKER_OPEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeInternal         Code = "INTERNAL"
	CodeCancelled        Code = "CANCELLED"
	CodeModelUnavailable Code = "MODEL_UNAVAILABLE"
)

// Error is the structured error returned by every core operation.
type Error struct {
	Code      Code           `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Detail    map[string]any `json:"detail,omitempty"`
	Cause     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message. Retryability
// defaults to false; use WithRetryable, or ClassifyStoreError for raw store
// errors.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// NotFound builds a NOT_FOUND error for a missing entity. key may be any
// value with a natural string form (an id, a name); it is only ever used
// for display and detail, never compared.
func NotFound(kind string, key any) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %v", kind, key)).
		WithDetail("kind", kind).WithDetail("key", key)
}

// InvalidArgument builds an INVALID_ARGUMENT error.
func InvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// AliasConflict builds the INVALID_ARGUMENT error the boundary returns when a
// canonical field and its alias disagree, per spec §6.
func AliasConflict(field, firstName string, firstValue any, secondName string, secondValue any) *Error {
	return InvalidArgument(fmt.Sprintf("conflicting values for %q", field)).
		WithDetail("field", field).
		WithDetail("first", map[string]any{"name": firstName, "value": firstValue}).
		WithDetail("second", map[string]any{"name": secondName, "value": secondValue})
}

// Internal builds an INTERNAL error, for logic violations that should be
// surfaced and investigated rather than retried.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// CircuitOpen builds the error a breaker returns while rejecting calls.
func CircuitOpen(subsystem string, remaining float64, rateLimited bool) *Error {
	msg := fmt.Sprintf("circuit %q is open, retry in %.1fs", subsystem, remaining)
	if rateLimited {
		msg = fmt.Sprintf("circuit %q is half-open and rate-limited, next probe in %.1fs", subsystem, remaining)
	}
	return New(CodeCircuitOpen, msg).
		WithDetail("subsystem", subsystem).
		WithDetail("remaining_seconds", remaining).
		WithDetail("rate_limited", rateLimited)
}

// IsRetryable reports whether err (if it is, or wraps, an *Error) is marked
// retryable.
func IsRetryable(err error) bool {
	var e *Error
	if As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return ""
}

// As is a tiny local errors.As to avoid importing errors in every call site
// that only needs this one assertion.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// knownTransientSignatures are substrings of driver error messages that the
// classifier treats as retryable store contention (spec §4.1 failure
// classification).
var knownTransientSignatures = []string{
	"database is locked",
	"busy",
	"unable to open database file",
	"disk i/o error",
	"pool timeout",
	"pool exhausted",
}

// ClassifyStoreError wraps a raw store error into an *Error, marking it
// retryable if its message matches a known transient signature.
func ClassifyStoreError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, sig := range knownTransientSignatures {
		if strings.Contains(lower, sig) {
			return New(CodeSQLite, msg).WithCause(err).WithRetryable(true)
		}
	}
	return New(CodeSQLite, msg).WithCause(err).WithRetryable(false)
}
