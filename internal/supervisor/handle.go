package supervisor

import (
	"fmt"
	"time"

	"github.com/randomizedcoder/reticulum-cluster/internal/logging"
	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// NodeHandle is the supervisor's record of one node's runtime state.
//
// A handle is written only by the goroutine that launches and waits on its
// node, and read by aggregation only after that goroutine has finished.
type NodeHandle struct {
	Spec process.NodeSpec

	// PID is valid once State has reached Running.
	PID int

	State State

	// ExitCode is valid when State is Exited. Signal deaths are 128+signal.
	ExitCode int

	// Err is a *LaunchError, or a *WaitError if the node was started, when State is Failed.
	Err error

	StartedAt time.Time
	EndedAt   time.Time

	// Output holds recent stdout/stderr lines when capture is enabled.
	Output *logging.OutputHandler
}

func newNodeHandle(spec process.NodeSpec) *NodeHandle {
	return &NodeHandle{
		Spec:  spec,
		State: StateLaunching,
	}
}

// Index returns the node index.
func (h *NodeHandle) Index() int {
	return h.Spec.Index
}

// Started reports whether the OS created the node process.
func (h *NodeHandle) Started() bool {
	return h.PID != 0
}

// Succeeded returns true iff the node is Exited(0).
func (h *NodeHandle) Succeeded() bool {
	return h.State == StateExited && h.ExitCode == 0
}

// Runtime returns how long the process ran. Zero if it never started.
func (h *NodeHandle) Runtime() time.Duration {
	if h.StartedAt.IsZero() || h.EndedAt.IsZero() {
		return 0
	}
	return h.EndedAt.Sub(h.StartedAt)
}

// Error returns the node-level error: the LaunchError or WaitError for Failed handles,
// a NodeExitError for non-zero exits, nil otherwise.
func (h *NodeHandle) Error() error {
	switch {
	case h.State == StateFailed:
		return h.Err
	case h.State == StateExited && h.ExitCode != 0:
		return &NodeExitError{Index: h.Index(), ExitCode: h.ExitCode}
	default:
		return nil
	}
}

// String renders the state as Exited(code), Failed(err), or the plain state name.
func (h *NodeHandle) String() string {
	switch h.State {
	case StateExited:
		return fmt.Sprintf("Exited(%d)", h.ExitCode)
	case StateFailed:
		return fmt.Sprintf("Failed(%v)", h.Err)
	default:
		return h.State.String()
	}
}

func (h *NodeHandle) transition(to State) error {
	if !canTransition(h.State, to) {
		return &InternalError{
			Index: h.Index(),
			Op:    "transition",
			Msg:   fmt.Sprintf("illegal transition %s -> %s", h.State, to),
		}
	}
	h.State = to
	return nil
}

func (h *NodeHandle) markRunning(pid int, at time.Time) error {
	if err := h.transition(StateRunning); err != nil {
		return err
	}
	h.PID = pid
	h.StartedAt = at
	return nil
}

func (h *NodeHandle) markExited(code int, at time.Time) error {
	if err := h.transition(StateExited); err != nil {
		return err
	}
	h.ExitCode = code
	h.EndedAt = at
	return nil
}

func (h *NodeHandle) markFailed(err error, at time.Time) error {
	if terr := h.transition(StateFailed); terr != nil {
		return terr
	}
	h.Err = err
	h.EndedAt = at
	return nil
}
