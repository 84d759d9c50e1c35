// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error taxonomy for hioload-ipc. Every failure surfaced by the
// runtime maps onto one of these sentinels so callers can branch with
// errors.Is instead of string matching. The split mirrors how the errors
// behave, not where they originate:
//
//   - terminal/state errors (ErrBadState, ErrBadHandle) are never retried;
//   - ErrShouldWait is pure backpressure and never reaches an error callback;
//   - ErrPeerClosed triggers the teardown path exactly once;
//   - ErrNotFound reports a benign cancellation race, not corruption;
//   - ErrTimedOut is the retryable outcome of a bounded blocking wait.

package api

import "fmt"

// Sentinel errors used across the library.
var (
	ErrBadState        = fmt.Errorf("object is shut down or in the wrong state")
	ErrCanceled        = fmt.Errorf("operation canceled")
	ErrTimedOut        = fmt.Errorf("deadline elapsed")
	ErrNotFound        = fmt.Errorf("registration not found")
	ErrShouldWait      = fmt.Errorf("no message ready")
	ErrPeerClosed      = fmt.Errorf("peer endpoint closed")
	ErrBufferTooSmall  = fmt.Errorf("receive buffer too small")
	ErrBadHandle       = fmt.Errorf("handle is closed or invalid")
	ErrAccessDenied    = fmt.Errorf("handle cannot be watched")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrMsgTooBig       = fmt.Errorf("message payload exceeds limit")
	ErrTooManyHandles  = fmt.Errorf("message carries too many handles")
)

// ErrorCode classifies structured errors raised on protocol surfaces.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeBadState
	ErrCodeCanceled
	ErrCodeTimeout
	ErrCodeNotFound
	ErrCodeShouldWait
	ErrCodePeerClosed
	ErrCodeInvalidArgument
	ErrCodeProtocol
	ErrCodeInternal
)

// Error is a structured error with code and free-form context, used where a
// bare sentinel loses too much (envelope decoding, dispatch failures).
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
