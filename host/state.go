package host

// State is the lifecycle state of a host process.
// Terminal states are absorbing.
type State string

const (
	StateNew       State = "NEW"
	StateRunning   State = "RUNNING"
	StateExited    State = "EXITED"
	StateTimedOut  State = "TIMED_OUT"
	StateCrashed   State = "CRASHED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	switch s {
	case StateExited, StateTimedOut, StateCrashed, StateCancelled:
		return true
	default:
		return false
	}
}
