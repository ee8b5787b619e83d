package task

// State is the task lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// ValidState reports whether s is a known state.
func ValidState(s State) bool {
	switch s {
	case StateIdle, StateRunning, StateDisabled, StateError:
		return true
	}
	return false
}

// transitions is the full edge set of the state machine:
//
//	idle     → running, disabled
//	running  → idle, error
//	disabled → idle
//	error    → idle, disabled
var transitions = map[State][]State{
	StateIdle:     {StateRunning, StateDisabled},
	StateRunning:  {StateIdle, StateError},
	StateDisabled: {StateIdle},
	StateError:    {StateIdle, StateDisabled},
}

// CanTransition reports whether from → to is a legal edge. Self loops
// are allowed everywhere except running (a no-op user update on an idle
// or disabled task is fine; re-entering running needs a real run).
func CanTransition(from, to State) bool {
	if from == to {
		return from != StateRunning
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanUserSet reports whether a client may set the state via update.
// Only idle and disabled are user-settable, and never on a running
// task: running → idle belongs to the scheduler's completion path, and
// letting a client take it would open a second concurrent execution of
// the same uuid.
func CanUserSet(from, to State) bool {
	if from == StateRunning {
		return false
	}
	if to != StateIdle && to != StateDisabled {
		return false
	}
	return CanTransition(from, to)
}
