package relay

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange describes one transition. Err is set when the transition was
// caused by a failure; a terminal give-up carries ErrMaxRetriesExceeded.
type StateChange struct {
	From State
	To   State
	Err  error
}

// Terminal reports whether the relay gave up retrying.
func (c StateChange) Terminal() bool {
	return c.To == Disconnected && c.Err != nil
}
