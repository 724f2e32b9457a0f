package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/selfcheckout/internal/model"
)

// Error represents an engine operation failure.
//
// Error includes structured fields for diagnostics and for mapping to
// transport status codes. Idempotent replay is never an Error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session, if any.
	SessionID string

	// FrameID identifies the affected frame, if any.
	FrameID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown session.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidStateTransition indicates the operation is illegal in
	// the session's current state.
	ErrCodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"

	// ErrCodeUnresolvedProduct indicates a confident label with no catalog
	// product behind it.
	ErrCodeUnresolvedProduct ErrorCode = "UNRESOLVED_PRODUCT"

	// ErrCodeAlreadyInvoiced indicates a second invoice for one session.
	ErrCodeAlreadyInvoiced ErrorCode = "ALREADY_INVOICED"

	// ErrCodeStorageFailure indicates the transaction could not commit.
	// The whole operation may be retried.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// ErrCodeClassifierUnavailable indicates the classifier failed for a
	// reason other than a malformed image. Nothing was recorded.
	ErrCodeClassifierUnavailable ErrorCode = "CLASSIFIER_UNAVAILABLE"

	// ErrCodeFrameConflict indicates a frame_id already recorded under a
	// different session.
	ErrCodeFrameConflict ErrorCode = "FRAME_CONFLICT"

	// ErrCodeInvalidArgument indicates a malformed request.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeInternalInconsistency indicates stored state that violates an
	// invariant, such as an unreadable frame record.
	ErrCodeInternalInconsistency ErrorCode = "INTERNAL_INCONSISTENCY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session=%s", e.SessionID)
		if e.FrameID != "" {
			msg += fmt.Sprintf(", frame=%s", e.FrameID)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsInvalidStateTransition returns true if err is a state-gate rejection.
func IsInvalidStateTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidStateTransition
}

func newNotFound(sessionID string) *Error {
	return &Error{
		Code:      ErrCodeNotFound,
		Message:   "session not found",
		SessionID: sessionID,
	}
}

func newInvalidTransition(sessionID, op string, from model.State) *Error {
	return &Error{
		Code:      ErrCodeInvalidStateTransition,
		Message:   fmt.Sprintf("cannot %s session in state %s", op, from),
		SessionID: sessionID,
	}
}

func newInvalidArgument(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

func newStorageFailure(sessionID string, err error) *Error {
	return &Error{
		Code:      ErrCodeStorageFailure,
		Message:   "transaction failed",
		SessionID: sessionID,
		Err:       err,
	}
}
