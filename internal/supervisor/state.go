// Package supervisor launches a fixed-size cluster of node processes and
// collects the terminal state of every one of them.
package supervisor

// State represents the lifecycle state of a supervised node.
//
//	Launching → Running → Exited(code)
//	Launching → Failed(error)
type State int

const (
	// StateLaunching is the initial state, set when the launch is requested.
	StateLaunching State = iota

	// StateRunning indicates the OS has created the node process.
	StateRunning

	// StateExited indicates the process ran and was reaped. See NodeHandle.ExitCode.
	StateExited

	// StateFailed indicates the process could not be started. See NodeHandle.Err.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true while a node has not yet reached a terminal state.
func (s State) IsActive() bool {
	return s == StateLaunching || s == StateRunning
}

// IsTerminal returns true for Exited and Failed.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateFailed
}

// canTransition reports whether from → to is a legal lifecycle step.
func canTransition(from, to State) bool {
	switch from {
	case StateLaunching:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateExited || to == StateFailed
	default:
		return false
	}
}
