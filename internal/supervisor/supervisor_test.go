package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// =============================================================================
// Test helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newShellRunner returns a runner that executes script with sh, passing the
// node's config path as $1.
func newShellRunner(script string) *process.NodeRunner {
	return process.NewNodeRunner(&process.NodeConfig{
		BinaryPath:  "sh",
		ExtraArgs:   []string{"-c", script, "sh"},
		StopTimeout: 2 * time.Second,
	})
}

// mockRunner wraps a NodeRunner and lets tests override BuildCommand per node.
type mockRunner struct {
	*process.NodeRunner
	buildFn func(ctx context.Context, spec process.NodeSpec) (*exec.Cmd, error)
}

func (m *mockRunner) BuildCommand(ctx context.Context, spec process.NodeSpec) (*exec.Cmd, error) {
	if m.buildFn != nil {
		return m.buildFn(ctx, spec)
	}
	return m.NodeRunner.BuildCommand(ctx, spec)
}

func newTestSupervisor(runner process.Runner, cb Callbacks) *ClusterSupervisor {
	return New(Config{
		Runner:        runner,
		Logger:        newTestLogger(),
		Callbacks:     cb,
		CaptureOutput: true,
	})
}

func exitCodes(t *testing.T, result *ClusterResult) []int {
	t.Helper()
	codes := make([]int, len(result.Handles))
	for i, h := range result.Handles {
		if h.State != StateExited {
			t.Fatalf("node %d: state = %s, want exited", i, h)
		}
		codes[i] = h.ExitCode
	}
	return codes
}

// =============================================================================
// LaunchAll
// =============================================================================

func TestLaunchAll_InvalidArguments(t *testing.T) {
	sup := newTestSupervisor(newShellRunner("exit 0"), Callbacks{})

	testCases := []struct {
		name     string
		n        int
		template string
		wantErr  error
	}{
		{"zero nodes", 0, "cfg%d.json", ErrInvalidClusterSize},
		{"negative nodes", -3, "cfg%d.json", ErrInvalidClusterSize},
		{"no verb", 3, "cfg.json", process.ErrBadTemplate},
		{"two verbs", 3, "cfg%d-%d.json", process.ErrBadTemplate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := sup.LaunchAll(context.Background(), tc.n, tc.template)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if result != nil {
				t.Error("result should be nil for invalid arguments")
			}
		})
	}
}

func TestLaunchAll_NoRunner(t *testing.T) {
	sup := New(Config{Logger: newTestLogger()})
	_, err := sup.LaunchAll(context.Background(), 1, "cfg%d.json")
	if !IsInternal(err) {
		t.Errorf("expected InternalError, got %v", err)
	}
}

func TestLaunchAll_AllSucceed(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		sup := newTestSupervisor(newShellRunner("exit 0"), Callbacks{})

		result, err := sup.LaunchAll(context.Background(), n, "test/config%d.json")
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if result.Size() != n {
			t.Fatalf("n=%d: got %d handles", n, result.Size())
		}
		if !result.AllSucceeded {
			t.Errorf("n=%d: AllSucceeded = false", n)
		}
		for i, h := range result.Handles {
			if h.Spec.Index != i {
				t.Errorf("handle %d has index %d", i, h.Spec.Index)
			}
			if !h.Succeeded() {
				t.Errorf("handle %d: %s", i, h)
			}
			if h.PID <= 0 {
				t.Errorf("handle %d: pid = %d", i, h.PID)
			}
		}
	}
}

func TestLaunchAll_OneNodeFails(t *testing.T) {
	// Node 3 exits 2, everyone else exits 0
	sup := newTestSupervisor(newShellRunner(`[ "$1" = "cfg3.json" ] && exit 2; exit 0`), Callbacks{})

	result, err := sup.LaunchAll(context.Background(), 5, "cfg%d.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AllSucceeded {
		t.Error("AllSucceeded should be false")
	}

	got := exitCodes(t, result)
	want := []int{0, 0, 0, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("exit codes = %v, want %v", got, want)
			break
		}
	}

	failed := result.Failed()
	if len(failed) != 1 || failed[0].Spec.Index != 3 {
		t.Fatalf("Failed() = %v, want only node 3", failed)
	}
	var exitErr *NodeExitError
	if !errors.As(failed[0].Error(), &exitErr) || exitErr.ExitCode != 2 {
		t.Errorf("node 3 error = %v", failed[0].Error())
	}
}

func TestLaunchAll_ConfigPathScenario(t *testing.T) {
	// Three nodes; the one reading cfg1.txt exits 1.
	sup := newTestSupervisor(newShellRunner(`test "$1" != cfg1.txt`), Callbacks{})

	result, err := sup.LaunchAll(context.Background(), 3, "cfg%d.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPaths := []string{"cfg0.txt", "cfg1.txt", "cfg2.txt"}
	wantCodes := []int{0, 1, 0}
	codes := exitCodes(t, result)
	for i, h := range result.Handles {
		if h.Spec.ConfigPath != wantPaths[i] {
			t.Errorf("node %d config path = %q, want %q", i, h.Spec.ConfigPath, wantPaths[i])
		}
		if codes[i] != wantCodes[i] {
			t.Errorf("node %d exit code = %d, want %d", i, codes[i], wantCodes[i])
		}
	}
	if result.AllSucceeded {
		t.Error("AllSucceeded should be false")
	}
}

func TestLaunchAll_LaunchFailureIsolation(t *testing.T) {
	base := newShellRunner("exit 0")
	runner := &mockRunner{
		NodeRunner: base,
		buildFn: func(ctx context.Context, spec process.NodeSpec) (*exec.Cmd, error) {
			if spec.Index == 1 {
				return exec.CommandContext(ctx, "/nonexistent/reticulum-binary"), nil
			}
			return base.BuildCommand(ctx, spec)
		},
	}

	var launchFailures atomic.Int32
	sup := newTestSupervisor(runner, Callbacks{
		OnLaunchFailed: func(index int, err error) {
			launchFailures.Add(1)
		},
	})

	result, err := sup.LaunchAll(context.Background(), 4, "cfg%d.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, h := range result.Handles {
		if i == 1 {
			if h.State != StateFailed {
				t.Fatalf("node 1 state = %s, want failed", h)
			}
			var launchErr *LaunchError
			if !errors.As(h.Err, &launchErr) || launchErr.Index != 1 {
				t.Errorf("node 1 err = %v, want LaunchError", h.Err)
			}
			if h.PID != 0 {
				t.Errorf("failed node should have no pid, got %d", h.PID)
			}
			continue
		}
		if !h.Succeeded() {
			t.Errorf("node %d should succeed despite node 1 failing: %s", i, h)
		}
	}

	if launchFailures.Load() != 1 {
		t.Errorf("OnLaunchFailed called %d times, want 1", launchFailures.Load())
	}
	if _, _, failed := result.Counts(); failed != 1 {
		t.Errorf("launch failures = %d, want 1", failed)
	}
}

func TestLaunchAll_BuildCommandError(t *testing.T) {
	runner := &mockRunner{
		NodeRunner: newShellRunner("exit 0"),
		buildFn: func(ctx context.Context, spec process.NodeSpec) (*exec.Cmd, error) {
			return nil, errors.New("build failed")
		},
	}
	sup := newTestSupervisor(runner, Callbacks{})

	result, err := sup.LaunchAll(context.Background(), 2, "cfg%d.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range result.Handles {
		if h.State != StateFailed {
			t.Errorf("node %d state = %s, want failed", h.Spec.Index, h.State)
		}
	}
}

func TestLaunchAll_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	// Ten nodes that each sleep 300ms. Sequential would take 3s.
	runner := process.NewNodeRunner(&process.NodeConfig{
		BinaryPath:  "sleep",
		StopTimeout: time.Second,
	})
	sup := newTestSupervisor(runner, Callbacks{})

	start := time.Now()
	result, err := sup.LaunchAll(context.Background(), 10, "0.3%d")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AllSucceeded {
		t.Fatalf("expected all nodes to succeed: %v", result.Failed())
	}
	if elapsed > 1500*time.Millisecond {
		t.Errorf("launching 10 nodes took %v, expected close to one node's runtime", elapsed)
	}
}

func TestLaunchAll_OrderIndependentOfCompletion(t *testing.T) {
	// Node i sleeps longer the lower its index, so completion order is reversed
	sup := newTestSupervisor(newShellRunner(`case "$1" in
  n0) sleep 0.3 ;;
  n1) sleep 0.2 ;;
  n2) sleep 0.1 ;;
esac
exit 0`), Callbacks{})

	var mu sync.Mutex
	var exitOrder []int
	sup.callbacks.OnExit = func(index int, exitCode int, runtime time.Duration) {
		mu.Lock()
		exitOrder = append(exitOrder, index)
		mu.Unlock()
	}

	result, err := sup.LaunchAll(context.Background(), 3, "n%d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, h := range result.Handles {
		if h.Spec.Index != i {
			t.Errorf("handles[%d] has index %d", i, h.Spec.Index)
		}
	}
	if len(exitOrder) != 3 {
		t.Fatalf("OnExit called %d times", len(exitOrder))
	}
}

func TestLaunchAll_Cancellation(t *testing.T) {
	runner := process.NewNodeRunner(&process.NodeConfig{
		BinaryPath:  "sleep",
		StopTimeout: 2 * time.Second,
	})
	sup := newTestSupervisor(runner, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	result, err := sup.LaunchAll(ctx, 3, "3%d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}

	for i, h := range result.Handles {
		if h.State != StateExited {
			t.Errorf("node %d: state = %s, want exited", i, h)
			continue
		}
		if h.ExitCode != 128+15 {
			t.Errorf("node %d: exit code = %d, want %d (SIGTERM)", i, h.ExitCode, 128+15)
		}
	}
	if result.AllSucceeded {
		t.Error("cancelled cluster should not report success")
	}
}

func TestLaunchAll_Callbacks(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions = make(map[int][]State)
		starts      atomic.Int32
		exits       atomic.Int32
	)

	sup := newTestSupervisor(newShellRunner("exit 0"), Callbacks{
		OnStateChange: func(index int, oldState, newState State) {
			mu.Lock()
			transitions[index] = append(transitions[index], newState)
			mu.Unlock()
		},
		OnStart: func(index int, pid int) {
			starts.Add(1)
		},
		OnExit: func(index int, exitCode int, runtime time.Duration) {
			exits.Add(1)
		},
	})

	if _, err := sup.LaunchAll(context.Background(), 4, "cfg%d.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if starts.Load() != 4 || exits.Load() != 4 {
		t.Errorf("OnStart=%d OnExit=%d, want 4 each", starts.Load(), exits.Load())
	}
	for i := 0; i < 4; i++ {
		got := transitions[i]
		if len(got) != 2 || got[0] != StateRunning || got[1] != StateExited {
			t.Errorf("node %d transitions = %v, want [running exited]", i, got)
		}
	}
}

func TestLaunchAll_CapturesOutput(t *testing.T) {
	sup := newTestSupervisor(newShellRunner(`echo "node reading $1"; echo "oops" >&2; exit 3`), Callbacks{})

	result, err := sup.LaunchAll(context.Background(), 2, "cfg%d.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := result.Handles[1]
	if h.Output == nil {
		t.Fatal("expected captured output")
	}
	lines := strings.Join(h.Output.RecentLines(10), "\n")
	if !strings.Contains(lines, "node reading cfg1.json") || !strings.Contains(lines, "oops") {
		t.Errorf("captured output = %q", lines)
	}
}

func TestLaunchAll_NodeIndexEnv(t *testing.T) {
	sup := newTestSupervisor(newShellRunner(`exit $((`+process.NodeIndexEnv+` + 10))`), Callbacks{})

	result, err := sup.LaunchAll(context.Background(), 3, "cfg%d.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, code := range exitCodes(t, result) {
		if code != i+10 {
			t.Errorf("node %d exit code = %d, want %d", i, code, i+10)
		}
	}
}

// =============================================================================
// Exit codes
// =============================================================================

func TestExtractExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		script   string
		expected int
	}{
		{"success", "exit 0", 0},
		{"exit 1", "exit 1", 1},
		{"exit 42", "exit 42", 42},
		{"sigterm", "kill -TERM $$", 128 + 15},
		{"sigkill", "kill -KILL $$", 128 + 9},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := exec.Command("sh", "-c", tc.script)
			_ = cmd.Run()
			if got := extractExitCode(cmd.ProcessState); got != tc.expected {
				t.Errorf("extractExitCode() = %d, want %d", got, tc.expected)
			}
		})
	}

	if got := extractExitCode(nil); got != 1 {
		t.Errorf("extractExitCode(nil) = %d, want 1", got)
	}
}

func TestReap_WaitFailure(t *testing.T) {
	var started, launchFailed, waitFailed, exited atomic.Int32
	var gotErr error
	sup := newTestSupervisor(newShellRunner("exit 0"), Callbacks{
		OnStart:        func(index int, pid int) { started.Add(1) },
		OnLaunchFailed: func(index int, err error) { launchFailed.Add(1) },
		OnWaitFailed: func(index int, err error) {
			waitFailed.Add(1)
			gotErr = err
		},
		OnExit: func(index int, exitCode int, runtime time.Duration) { exited.Add(1) },
	})

	h := newNodeHandle(process.NodeSpec{Index: 5, ConfigPath: "cfg5.json"})
	if err := h.markRunning(4242, time.Now()); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("wait: no child processes")
	if err := sup.reap(context.Background(), h, sup.logger, nil, cause, time.Now()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}

	if h.State != StateFailed {
		t.Fatalf("state = %s, want failed", h.State)
	}
	if !h.Started() {
		t.Error("handle should still report that the process was started")
	}

	var waitErr *WaitError
	if !errors.As(h.Err, &waitErr) {
		t.Fatalf("Err = %T, want *WaitError", h.Err)
	}
	if waitErr.Index != 5 || waitErr.PID != 4242 || !errors.Is(waitErr, cause) {
		t.Errorf("WaitError = %+v", waitErr)
	}
	var launchErr *LaunchError
	if errors.As(h.Err, &launchErr) {
		t.Error("wait failure must not be reported as a LaunchError")
	}

	if waitFailed.Load() != 1 || launchFailed.Load() != 0 || exited.Load() != 0 {
		t.Errorf("callbacks: wait=%d launch=%d exit=%d, want 1/0/0",
			waitFailed.Load(), launchFailed.Load(), exited.Load())
	}
	if gotErr != h.Err {
		t.Errorf("OnWaitFailed err = %v, want handle err", gotErr)
	}
	if started.Load() != 0 {
		t.Error("reap should not fire OnStart")
	}
}

func TestReap_ExitedRecordsCode(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 3")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected non-zero exit")
	}

	var exitCode atomic.Int32
	sup := newTestSupervisor(newShellRunner("exit 0"), Callbacks{
		OnExit:       func(index int, code int, runtime time.Duration) { exitCode.Store(int32(code)) },
		OnWaitFailed: func(index int, err error) { t.Error("OnWaitFailed should not fire") },
	})

	h := newNodeHandle(process.NodeSpec{Index: 0})
	if err := h.markRunning(cmd.Process.Pid, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := sup.reap(context.Background(), h, sup.logger, cmd.ProcessState, nil, time.Now()); err != nil {
		t.Fatalf("reap() error = %v", err)
	}

	if h.State != StateExited || h.ExitCode != 3 {
		t.Errorf("handle = %s, want Exited(3)", h)
	}
	if exitCode.Load() != 3 {
		t.Errorf("OnExit code = %d, want 3", exitCode.Load())
	}
}

func TestLaunchAll_NodeLogsCarryIndex(t *testing.T) {
	var buf syncBuffer
	sup := New(Config{
		Runner:        newShellRunner(`echo "hello from $1"`),
		Logger:        slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		CaptureOutput: true,
		Verbose:       true,
	})

	if _, err := sup.LaunchAll(context.Background(), 2, "cfg%d.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"msg=node_output node_index=1 stream=stdout",
		`line="hello from cfg1.json"`,
		"msg=node_started node_index=0",
		"msg=node_exited node_index=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

// syncBuffer collects log output written from concurrent node goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
