package debugger

// State is the debugger lifecycle state.
type State int

const (
	// StateUninitialized: constructed, Init not yet called.
	StateUninitialized State = iota
	// StatePaused: a session is bound and no call is dispatching.
	StatePaused
	// StateRunning: a Step or Run* call is dispatching.
	StateRunning
	// StateClosed: terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
