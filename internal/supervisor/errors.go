package supervisor

import (
	"errors"
	"fmt"
)

// ErrInvalidClusterSize is returned by LaunchAll when n < 1.
var ErrInvalidClusterSize = errors.New("cluster size must be at least 1")

// LaunchError records that a node process could not be started
// (missing binary, permission denied, bad working directory).
// It is per-node and never fatal to the supervisor.
type LaunchError struct {
	Index int
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("node %d: launch failed: %v", e.Index, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// WaitError records that a node process was started but its exit status
// could not be collected. The process may still be running.
type WaitError struct {
	Index int
	PID   int
	Err   error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("node %d: wait for pid %d failed: %v", e.Index, e.PID, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// NodeExitError records that a node ran and exited with a non-zero status.
type NodeExitError struct {
	Index    int
	ExitCode int
}

func (e *NodeExitError) Error() string {
	return fmt.Sprintf("node %d: exited with code %d", e.Index, e.ExitCode)
}

// InternalError is a bookkeeping violation inside the supervisor itself,
// such as a second terminal transition or a missing handle.
// It is fatal and indicates a bug.
type InternalError struct {
	Index int
	Op    string
	Msg   string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("supervisor internal error: node %d: %s: %s", e.Index, e.Op, e.Msg)
}

// IsInternal reports whether err contains an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
