package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/reticulum-cluster/internal/logging"
	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// Callbacks contains optional callback functions for supervisor events.
// Callbacks for different nodes run concurrently and must be safe for
// concurrent use.
type Callbacks struct {
	// OnStateChange is called on every handle transition.
	OnStateChange func(index int, oldState, newState State)

	// OnStart is called once a node process has been created.
	OnStart func(index int, pid int)

	// OnExit is called when a node process is reaped.
	OnExit func(index int, exitCode int, runtime time.Duration)

	// OnLaunchFailed is called when a node process could not be started.
	OnLaunchFailed func(index int, err error)

	// OnWaitFailed is called when a started node could not be reaped.
	// OnStart has already fired for the node; OnExit will not.
	OnWaitFailed func(index int, err error)
}

// Config holds supervisor configuration.
type Config struct {
	Runner    process.Runner
	Logger    *slog.Logger
	Callbacks Callbacks

	// CaptureOutput attaches an OutputHandler to each node's stdout/stderr.
	// When false, node output is passed through to Stdout/Stderr.
	CaptureOutput bool

	// Verbose logs every captured output line, not just warnings.
	Verbose bool

	// Stdout and Stderr receive uncaptured node output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// ClusterSupervisor launches a fixed-size set of node processes and
// reports the terminal state of each.
type ClusterSupervisor struct {
	runner    process.Runner
	logger    *slog.Logger
	callbacks Callbacks

	captureOutput bool
	verbose       bool
	stdout        io.Writer
	stderr        io.Writer
}

// New creates a new ClusterSupervisor.
func New(cfg Config) *ClusterSupervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ClusterSupervisor{
		runner:        cfg.Runner,
		logger:        logger,
		callbacks:     cfg.Callbacks,
		captureOutput: cfg.CaptureOutput,
		verbose:       cfg.Verbose,
		stdout:        cfg.Stdout,
		stderr:        cfg.Stderr,
	}
}

// LaunchAll starts n node processes concurrently, one per index in [0, n),
// each with the configuration path derived from configTemplate, and blocks
// until every node has reached a terminal state.
//
// Per-node failures (launch errors, non-zero exits) are recorded in the
// returned ClusterResult and never returned as the error. A non-nil error
// means the arguments were invalid or the supervisor's own bookkeeping
// failed. Cancelling ctx signals every running node's process group with
// SIGTERM; the nodes are still reaped and recorded.
func (s *ClusterSupervisor) LaunchAll(ctx context.Context, n int, configTemplate string) (*ClusterResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidClusterSize, n)
	}
	if err := process.ValidateTemplate(configTemplate); err != nil {
		return nil, err
	}
	if s.runner == nil {
		return nil, &InternalError{Index: -1, Op: "launch", Msg: "no runner configured"}
	}

	startedAt := time.Now()
	handles := make([]*NodeHandle, n)
	internal := make([]error, n)

	s.logger.Info("cluster_launching",
		"nodes", n,
		"config_template", configTemplate,
		"runner", s.runner.Name(),
	)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		spec, err := s.runner.Spec(i, configTemplate)
		if err != nil {
			spec = process.NodeSpec{Index: i}
		}
		h := newNodeHandle(spec)
		handles[i] = h

		if err != nil {
			internal[i] = s.fail(h, err)
			continue
		}

		wg.Add(1)
		go func(h *NodeHandle) {
			defer wg.Done()
			internal[h.Index()] = s.runNode(ctx, h)
		}(h)
	}
	wg.Wait()

	result, aggErr := newClusterResult(handles, startedAt, time.Since(startedAt))
	err := errors.Join(append(internal, aggErr)...)

	succeeded, exitedNonZero, launchFailed := result.Counts()
	s.logger.Info("cluster_finished",
		"nodes", n,
		"succeeded", succeeded,
		"exited_nonzero", exitedNonZero,
		"launch_failed", launchFailed,
		"all_succeeded", result.AllSucceeded,
		"duration", result.Duration.String(),
	)
	if err != nil {
		s.logger.Error("cluster_bookkeeping_error", "error", err)
	}

	return result, err
}

// runNode launches one node and waits for it exactly once.
// Only the returned error is an InternalError; node failures go to the handle.
func (s *ClusterSupervisor) runNode(ctx context.Context, h *NodeHandle) error {
	index := h.Index()
	logger := logging.ForNode(s.logger, index)

	cmd, err := s.runner.BuildCommand(ctx, h.Spec)
	if err != nil {
		return s.fail(h, err)
	}

	var writers []*logging.StreamWriter
	if s.captureOutput {
		h.Output = logging.NewOutputHandler(logger, s.verbose)
		stdout := h.Output.Writer("stdout")
		stderr := h.Output.Writer("stderr")
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		writers = append(writers, stdout, stderr)
	} else {
		cmd.Stdout = s.stdout
		cmd.Stderr = s.stderr
	}

	if err := cmd.Start(); err != nil {
		return s.fail(h, err)
	}

	pid := cmd.Process.Pid
	if err := s.transition(h, func() error { return h.markRunning(pid, time.Now()) }); err != nil {
		return err
	}

	logger.Info("node_started",
		"pid", pid,
		"config_path", h.Spec.ConfigPath,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(index, pid)
	}

	waitErr := cmd.Wait()
	endedAt := time.Now()

	for _, w := range writers {
		w.Flush()
	}

	return s.reap(ctx, h, logger, cmd.ProcessState, waitErr, endedAt)
}

// reap records the outcome of waiting on a running node.
// A nil state means Wait failed before the process was reaped.
func (s *ClusterSupervisor) reap(ctx context.Context, h *NodeHandle, logger *slog.Logger, state *os.ProcessState, waitErr error, endedAt time.Time) error {
	if state == nil {
		if waitErr == nil {
			waitErr = errors.New("no process state")
		}
		return s.lose(h, logger, waitErr, endedAt)
	}

	exitCode := extractExitCode(state)
	if err := s.transition(h, func() error { return h.markExited(exitCode, endedAt) }); err != nil {
		return err
	}

	level := slog.LevelInfo
	if exitCode != 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "node_exited",
		"pid", h.PID,
		"exit_code", exitCode,
		"runtime", h.Runtime().String(),
	)
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(h.Index(), exitCode, h.Runtime())
	}

	return nil
}

// lose records a running node whose exit status could not be collected.
func (s *ClusterSupervisor) lose(h *NodeHandle, logger *slog.Logger, cause error, at time.Time) error {
	waitErr := &WaitError{Index: h.Index(), PID: h.PID, Err: cause}
	if err := s.transition(h, func() error { return h.markFailed(waitErr, at) }); err != nil {
		return err
	}

	logger.Error("node_wait_failed",
		"pid", h.PID,
		"error", cause,
	)
	if s.callbacks.OnWaitFailed != nil {
		s.callbacks.OnWaitFailed(h.Index(), waitErr)
	}
	return nil
}

// fail records a launch failure on h.
func (s *ClusterSupervisor) fail(h *NodeHandle, cause error) error {
	launchErr := &LaunchError{Index: h.Index(), Err: cause}
	if err := s.transition(h, func() error { return h.markFailed(launchErr, time.Now()) }); err != nil {
		return err
	}

	s.logger.Error("node_launch_failed",
		"node_index", h.Index(),
		"config_path", h.Spec.ConfigPath,
		"error", cause,
	)
	if s.callbacks.OnLaunchFailed != nil {
		s.callbacks.OnLaunchFailed(h.Index(), launchErr)
	}
	return nil
}

// transition applies mark to h and fires OnStateChange on success.
func (s *ClusterSupervisor) transition(h *NodeHandle, mark func() error) error {
	old := h.State
	if err := mark(); err != nil {
		return err
	}
	if s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(h.Index(), old, h.State)
	}
	return nil
}

// extractExitCode converts a reaped process state into a shell-style exit code.
func extractExitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			// Signal exit: 128 + signal number
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return state.ExitCode()
}
