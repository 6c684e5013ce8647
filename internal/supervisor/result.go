package supervisor

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ClusterResult is the aggregate outcome of one LaunchAll call.
type ClusterResult struct {
	// Handles is indexed by node index, independent of completion order.
	Handles []*NodeHandle

	// AllSucceeded is true iff every handle is Exited(0).
	AllSucceeded bool

	StartedAt time.Time
	Duration  time.Duration
}

// newClusterResult verifies that handles account for every index in [0, n)
// exactly once and that each is terminal, then derives AllSucceeded.
func newClusterResult(handles []*NodeHandle, startedAt time.Time, duration time.Duration) (*ClusterResult, error) {
	var errs []error
	allSucceeded := len(handles) > 0

	for i, h := range handles {
		if h == nil {
			errs = append(errs, &InternalError{Index: i, Op: "aggregate", Msg: "missing handle"})
			allSucceeded = false
			continue
		}
		if h.Index() != i {
			errs = append(errs, &InternalError{
				Index: i,
				Op:    "aggregate",
				Msg:   fmt.Sprintf("handle reports index %d", h.Index()),
			})
		}
		if !h.State.IsTerminal() {
			errs = append(errs, &InternalError{
				Index: i,
				Op:    "aggregate",
				Msg:   fmt.Sprintf("handle not terminal (%s)", h.State),
			})
		}
		if !h.Succeeded() {
			allSucceeded = false
		}
	}

	result := &ClusterResult{
		Handles:      handles,
		AllSucceeded: allSucceeded && len(errs) == 0,
		StartedAt:    startedAt,
		Duration:     duration,
	}
	return result, errors.Join(errs...)
}

// Size returns the number of nodes in the cluster.
func (r *ClusterResult) Size() int {
	return len(r.Handles)
}

// Failed returns every handle that did not exit 0, in index order.
func (r *ClusterResult) Failed() []*NodeHandle {
	var failed []*NodeHandle
	for _, h := range r.Handles {
		if h != nil && !h.Succeeded() {
			failed = append(failed, h)
		}
	}
	return failed
}

// ExitCodes returns a count of nodes per exit code. Failed launches are not included.
func (r *ClusterResult) ExitCodes() map[int]int {
	codes := make(map[int]int)
	for _, h := range r.Handles {
		if h != nil && h.State == StateExited {
			codes[h.ExitCode]++
		}
	}
	return codes
}

// SortedExitCodes returns the distinct exit codes in ascending order.
func (r *ClusterResult) SortedExitCodes() []int {
	codes := r.ExitCodes()
	sorted := make([]int, 0, len(codes))
	for code := range codes {
		sorted = append(sorted, code)
	}
	sort.Ints(sorted)
	return sorted
}

// Counts returns the number of clean exits, non-zero exits, and Failed handles.
// Nodes that started but could not be reaped count as failed.
func (r *ClusterResult) Counts() (succeeded, exitedNonZero, launchFailed int) {
	for _, h := range r.Handles {
		switch {
		case h == nil:
		case h.Succeeded():
			succeeded++
		case h.State == StateExited:
			exitedNonZero++
		case h.State == StateFailed:
			launchFailed++
		}
	}
	return
}

// Runtimes returns the runtime of every node that actually ran.
func (r *ClusterResult) Runtimes() []time.Duration {
	runtimes := make([]time.Duration, 0, len(r.Handles))
	for _, h := range r.Handles {
		if h != nil && h.State == StateExited {
			runtimes = append(runtimes, h.Runtime())
		}
	}
	return runtimes
}
