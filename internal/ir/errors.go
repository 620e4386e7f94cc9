package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorises debugger and dispatch failures.
type ErrorCode string

const (
	// ErrCodeBackwardTimeTravel: run-to-time target is before the virtual clock.
	ErrCodeBackwardTimeTravel ErrorCode = "BACKWARD_TIME_TRAVEL"

	// ErrCodeBreakpointNeverMatched: the calendar ran out before the
	// requested event type was dispatched.
	ErrCodeBreakpointNeverMatched ErrorCode = "BREAKPOINT_NEVER_MATCHED"

	// ErrCodeUnhandledEventType: no handler is registered for the event type.
	ErrCodeUnhandledEventType ErrorCode = "UNHANDLED_EVENT_TYPE"

	// ErrCodeHandlerFailure: a handler failed to re-enact its event.
	ErrCodeHandlerFailure ErrorCode = "HANDLER_FAILURE"

	// ErrCodeInvalidSessionState: operation called outside its valid states.
	ErrCodeInvalidSessionState ErrorCode = "INVALID_SESSION_STATE"
)

// SimError is returned by the debugger and the dispatcher.
//
// Event fields are set when the failure is tied to a specific calendar
// event. Err carries the underlying cause for HANDLER_FAILURE.
type SimError struct {
	Code      ErrorCode
	Message   string
	EventType string
	EventID   string
	Seq       int64
	Err       error
}

// Error implements the error interface.
func (e *SimError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EventType != "" {
		msg = fmt.Sprintf("%s (event=%s, seq=%d)", msg, e.EventType, e.Seq)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SimError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err wraps a SimError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *SimError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// NewEventError creates a SimError tied to an event.
func NewEventError(code ErrorCode, ev SimEvent, message string, cause error) *SimError {
	return &SimError{
		Code:      code,
		Message:   message,
		EventType: ev.Type,
		EventID:   ev.ID,
		Seq:       ev.Seq,
		Err:       cause,
	}
}
