package terminal

// State is the lifecycle stage of a Session. Transitions only move forward.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosing
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON listings.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
