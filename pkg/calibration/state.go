package calibration

import "fmt"

// State is a calibration session state.
type State int

const (
	// StateSetup builds the empty dataset tree.
	StateSetup State = iota

	// StateAwaitStart waits for the user to begin calibration.
	StateAwaitStart

	// StateAwaitClass announces the next label and waits for a confirm.
	StateAwaitClass

	// StateCapturing collects eye pairs for the current label.
	StateCapturing

	// StateRetrain fine-tunes the model on the collected dataset.
	StateRetrain

	// StateCleanup removes the dataset tree.
	StateCleanup

	// StateDone holds the tuned model.
	StateDone

	// StateCancelled means the user aborted the session.
	StateCancelled

	// StateFailed means dataset assembly or training failed.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateAwaitStart:
		return "await_start"
	case StateAwaitClass:
		return "await_class"
	case StateCapturing:
		return "capturing"
	case StateRetrain:
		return "retrain"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// StateError is returned when an operation is not valid in the current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("calibration: %s not allowed in state %s", e.Op, e.State)
}
