package debugger

import (
	"fmt"
	"time"

	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/ir"
)

// IsBackwardTimeTravel reports whether err is a BACKWARD_TIME_TRAVEL error.
func IsBackwardTimeTravel(err error) bool {
	return ir.HasCode(err, ir.ErrCodeBackwardTimeTravel)
}

// IsBreakpointNeverMatched reports whether err is a BREAKPOINT_NEVER_MATCHED
// error.
func IsBreakpointNeverMatched(err error) bool {
	return ir.HasCode(err, ir.ErrCodeBreakpointNeverMatched)
}

// IsUnhandledEventType reports whether err is an UNHANDLED_EVENT_TYPE error.
func IsUnhandledEventType(err error) bool {
	return ir.HasCode(err, ir.ErrCodeUnhandledEventType)
}

// IsHandlerFailure reports whether err is a HANDLER_FAILURE error.
func IsHandlerFailure(err error) bool {
	return ir.HasCode(err, ir.ErrCodeHandlerFailure)
}

// IsInvalidState reports whether err is an INVALID_SESSION_STATE error.
func IsInvalidState(err error) bool {
	return ir.HasCode(err, ir.ErrCodeInvalidSessionState)
}

func invalidState(op string, s State) error {
	return &ir.SimError{
		Code:    ir.ErrCodeInvalidSessionState,
		Message: fmt.Sprintf("%s not allowed in state %s", op, s),
	}
}

func backwardTimeTravel(target, now time.Time) error {
	return &ir.SimError{
		Code: ir.ErrCodeBackwardTimeTravel,
		Message: fmt.Sprintf("target %dms is before virtual time %dms",
			clock.ToMillis(target), clock.ToMillis(now)),
	}
}

func breakpointNeverMatched(tag string, dispatched int) error {
	return &ir.SimError{
		Code: ir.ErrCodeBreakpointNeverMatched,
		Message: fmt.Sprintf("calendar exhausted after %d events without dispatching %q",
			dispatched, tag),
	}
}
