package session

// State is a session's position in its per-light lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSending
	StateDisconnecting
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateDisconnecting:
		return "disconnecting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a light's run.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSuccess
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failed"
}
