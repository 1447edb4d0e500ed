package listener

// State is the listener's position in its lifecycle:
// Initializing -> Scanning <-> Idle -> Stopped
type State int32

const (
	StateInitializing State = iota
	StateScanning
	StateIdle
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateScanning:
		return "scanning"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
