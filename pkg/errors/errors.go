package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusClientClosedRequest is returned when the caller cancelled a long running operation.
const StatusClientClosedRequest = 499

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it with errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code and status of a predefined error.
func WrapAs(base *Error, err error, message string) *Error {
	if message == "" {
		message = base.Message
	}
	return Wrap(err, base.Code, base.Status, message)
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// ErrTransportUnavailable means the LMS could not be reached at all.
	ErrTransportUnavailable = New("TRANSPORT_UNAVAILABLE", http.StatusServiceUnavailable, "remote record source unavailable")
	// ErrRemoteRejected means the LMS answered but refused the request.
	ErrRemoteRejected = New("REMOTE_REJECTED", http.StatusBadGateway, "remote record source rejected the request")
	// ErrRecordRejected means the local store refused a single insert or update.
	ErrRecordRejected = New("RECORD_REJECTED", http.StatusUnprocessableEntity, "record rejected by local store")
	// ErrSagaStepFailed marks a non-fatal enrollment step failure.
	ErrSagaStepFailed = New("SAGA_STEP_FAILED", http.StatusMultiStatus, "enrollment step failed")
	// ErrSagaAborted means the local enrollment could not be persisted.
	ErrSagaAborted = New("SAGA_ABORTED", http.StatusInternalServerError, "enrollment aborted")
	// ErrSyncCancelled is returned with the partial result of a cancelled sync.
	ErrSyncCancelled = New("SYNC_CANCELLED", StatusClientClosedRequest, "synchronization cancelled")
	// ErrPaymentFailed wraps gateway failures.
	ErrPaymentFailed = New("PAYMENT_FAILED", http.StatusBadGateway, "payment gateway request failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
