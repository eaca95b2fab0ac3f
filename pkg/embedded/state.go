package embedded

import "sync/atomic"

// State is the lifecycle state of a Controller.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// stateMachine holds a State that only moves forward.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

// advance moves the state to `to` if it is ahead of the current state.
// Returns false when the state is already at or past `to`.
func (m *stateMachine) advance(to State) bool {
	for {
		cur := m.v.Load()
		if int32(to) <= cur {
			return false
		}
		if m.v.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}
