package chatbot

// State is the position of the session in its send cycle
type State int8

const (
	StateIdle = State(iota)
	StateSending
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is what the UI shows about the session; Message is only set in StateError
type Status struct {
	State   State
	Message string
}

func (s Status) Sending() bool {
	return s.State == StateSending
}
