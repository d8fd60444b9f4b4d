package syncengine

import (
	"context"
	"errors"
	"fmt"
)

// Engine-level error values.
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrSessionCheckFailed  = errors.New("session check failed")
	ErrRetriesExhausted    = errors.New("retries exhausted")
	ErrMutationPending     = errors.New("mutation already pending for booking")
	ErrActionNotAvailable  = errors.New("action not available for booking")
	ErrUnknownBooking      = errors.New("unknown booking")
	ErrEngineDisposed      = errors.New("engine disposed")
	ErrInvalidEngineConfig = errors.New("invalid engine config")
)

// ErrorKind classifies a remote-call failure for retry and surfacing decisions.
type ErrorKind string

const (
	ErrorKindTransient          ErrorKind = "transient"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindUnauthorized       ErrorKind = "unauthorized"
	ErrorKindClientRejected     ErrorKind = "client_rejected"
	ErrorKindServerError        ErrorKind = "server_error"
	ErrorKindValidationConflict ErrorKind = "validation_conflict"
)

// CallError is the tagged failure every remote call resolves to. The executor
// and cache never let an untagged error escape their boundary.
type CallError struct {
	operation  string
	kind       ErrorKind
	statusCode int
	message    string
	err        error
}

// NewCallError tags a failure with its operation and classification.
func NewCallError(operation string, kind ErrorKind, statusCode int, message string, err error) *CallError {
	return &CallError{
		operation:  operation,
		kind:       kind,
		statusCode: statusCode,
		message:    message,
		err:        err,
	}
}

// Error returns the formatted error message.
func (callError *CallError) Error() string {
	if callError.err != nil {
		return fmt.Sprintf("%s: %s: %v", callError.operation, callError.kind, callError.err)
	}
	if callError.message != "" {
		return fmt.Sprintf("%s: %s: %s", callError.operation, callError.kind, callError.message)
	}
	return fmt.Sprintf("%s: %s", callError.operation, callError.kind)
}

// Unwrap returns the underlying error.
func (callError *CallError) Unwrap() error {
	return callError.err
}

// Operation returns the remote operation segment.
func (callError *CallError) Operation() string {
	return callError.operation
}

// Kind returns the failure classification.
func (callError *CallError) Kind() ErrorKind {
	return callError.kind
}

// StatusCode returns the HTTP status carried by the failure, if any.
func (callError *CallError) StatusCode() int {
	return callError.statusCode
}

// Message returns the server-provided message, surfaced verbatim for
// validation conflicts.
func (callError *CallError) Message() string {
	return callError.message
}

// KindFromStatus maps an HTTP status code to an error kind.
func KindFromStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 401:
		return ErrorKindUnauthorized
	case statusCode == 409 || statusCode == 422:
		return ErrorKindValidationConflict
	case statusCode >= 400 && statusCode < 500:
		return ErrorKindClientRejected
	case statusCode >= 500:
		return ErrorKindServerError
	}
	return ErrorKindTransient
}

// KindOf classifies any error. Untagged failures count as transient; deadline
// expiry counts as timeout.
func KindOf(err error) ErrorKind {
	var callError *CallError
	if errors.As(err, &callError) {
		return callError.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindTransient
}

// retryableKind reports whether a failure of the given kind may be retried.
func retryableKind(kind ErrorKind) bool {
	switch kind {
	case ErrorKindTransient, ErrorKindTimeout, ErrorKindServerError:
		return true
	}
	return false
}
