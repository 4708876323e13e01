package domain

import (
	"errors"
	"fmt"
)

// ErrorCode buckets a failure for logging, auditing and retry policy.
type ErrorCode string

const (
	// CodeConfiguration marks missing or unreadable credentials/config.
	// Fatal to the affected provider, never retried blindly.
	CodeConfiguration ErrorCode = "CONFIGURATION"
	// CodeProviderTransient marks timeouts and non-2xx vendor responses.
	// Caught per row, audit-logged, retried on a later tick.
	CodeProviderTransient ErrorCode = "PROVIDER_TRANSIENT"
	// CodeStateConflict marks a status-guard miss. Benign: another writer
	// got there first.
	CodeStateConflict ErrorCode = "STATE_CONFLICT"
	// CodeStuckState marks an age-heuristic conversion of a silent stall
	// into an explicit failure.
	CodeStuckState ErrorCode = "STUCK_STATE"
	// CodeMockValidation marks a synchronous create-time rejection by the
	// mock provider (unknown zone or instance type).
	CodeMockValidation ErrorCode = "MOCK_VALIDATION"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeInternal       ErrorCode = "INTERNAL"
)

var (
	// ErrNoWorkerAvailable is returned by worker selection when no ready,
	// fresh instance matches the request.
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrModelNotFound is returned when a model identifier resolves to no
	// known offering.
	ErrModelNotFound = errors.New("model not found")
	// ErrInstanceNotFound is returned by store lookups for unknown ids.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrOrganizationMismatch is returned when a private offering is
	// requested by a caller outside its organization.
	ErrOrganizationMismatch = errors.New("model offering belongs to another organization")
)

// Error is the structured failure the orchestrator passes between layers.
type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Op == "" && msg == "":
		return string(e.Code)
	case e.Op == "":
		return fmt.Sprintf("%s: %s", e.Code, msg)
	case msg == "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// E builds a structured error.
func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Op: op, Message: msg, Cause: cause}
}

// Wrap annotates err with a code and op, preserving an existing code when
// err is already a *Error.
func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Op: op, Message: existing.Message, Cause: err, Retryable: existing.Retryable}
	}
	return &Error{Code: code, Op: op, Cause: err}
}

// Transient marks err retryable under CodeProviderTransient.
func Transient(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeProviderTransient, Op: op, Cause: err, Retryable: true}
}

// CodeOf extracts the ErrorCode from err, defaulting to CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}
