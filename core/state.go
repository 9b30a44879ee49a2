package live

// State is the lifecycle state of a live session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	// StateErrored is transient; a session passes through it on its way to
	// StateClosed.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsActive reports whether the session holds, or is acquiring, the
// microphone and the remote channel.
func (s State) IsActive() bool {
	return s == StateConnecting || s == StateOpen || s == StateClosing
}

// canStart reports whether a new session may start from s.
func (s State) canStart() bool {
	return s == StateIdle || s == StateClosed
}

func parseState(s string) State {
	for _, state := range []State{StateIdle, StateConnecting, StateOpen, StateClosing, StateClosed, StateErrored} {
		if state.String() == s {
			return state
		}
	}
	return StateIdle
}
