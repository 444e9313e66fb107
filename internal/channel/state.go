package channel

// State is the lifecycle state of a channel's transport.
type State int

const (
	// StateClosedClean - Not connected and not retrying (initial state)
	StateClosedClean State = iota
	// StateConnecting - Dial in progress
	StateConnecting
	// StateOpen - Transport open, events flowing
	StateOpen
	// StateClosedRetrying - Dropped unexpectedly, reconnect scheduled
	StateClosedRetrying
	// StateClosedExhausted - Reconnect attempts used up (terminal)
	StateClosedExhausted
)

// String returns a stable snake_case name for the state.
func (s State) String() string {
	switch s {
	case StateClosedClean:
		return "closed_clean"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "closed_retrying"
	case StateClosedExhausted:
		return "closed_exhausted"
	default:
		return "unknown"
	}
}

// StateListener observes state transitions.
type StateListener func(State)
