package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// NodeIndexEnv is set in every node's environment to its index.
const NodeIndexEnv = "RETICULUM_NODE_INDEX"

// NodeConfig holds configuration for node process execution.
type NodeConfig struct {
	// BinaryPath is the path to the node binary.
	BinaryPath string

	// ConfigFlag is the flag that carries the config path ("-config").
	// When empty the config path is passed as a bare positional argument.
	ConfigFlag string

	// ExtraArgs are placed before the config argument.
	ExtraArgs []string

	// WorkDir is the working directory for every node. Empty means inherit.
	WorkDir string

	// Env holds additional KEY=VALUE entries appended to the parent environment.
	Env []string

	// StopTimeout bounds how long a cancelled node gets between SIGTERM and SIGKILL.
	StopTimeout time.Duration
}

// DefaultNodeConfig returns a NodeConfig matching the reticulum launcher.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		BinaryPath:  "./reticulum",
		ConfigFlag:  "-config",
		StopTimeout: 10 * time.Second,
	}
}

// NodeRunner implements Runner for reticulum nodes.
type NodeRunner struct {
	config *NodeConfig
}

// NewNodeRunner creates a new node runner with the given configuration.
func NewNodeRunner(cfg *NodeConfig) *NodeRunner {
	return &NodeRunner{
		config: cfg,
	}
}

// Name returns the base name of the node binary.
func (r *NodeRunner) Name() string {
	return filepath.Base(r.config.BinaryPath)
}

// Spec builds the NodeSpec for index.
func (r *NodeRunner) Spec(index int, configTemplate string) (NodeSpec, error) {
	if index < 0 {
		return NodeSpec{}, fmt.Errorf("node index must be non-negative (got %d)", index)
	}
	path, err := ConfigPath(configTemplate, index)
	if err != nil {
		return NodeSpec{}, err
	}
	return NodeSpec{
		Index:      index,
		ConfigPath: path,
		Command:    r.config.BinaryPath,
		Args:       r.buildArgs(path),
	}, nil
}

// Specs builds the NodeSpecs for indices [0, n).
func (r *NodeRunner) Specs(n int, configTemplate string) ([]NodeSpec, error) {
	specs := make([]NodeSpec, 0, n)
	for i := 0; i < n; i++ {
		spec, err := r.Spec(i, configTemplate)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// BuildCommand creates an exec.Cmd for a node. The process is placed in its
// own process group; on context cancellation the whole group receives SIGTERM
// and os/exec escalates to SIGKILL after StopTimeout.
func (r *NodeRunner) BuildCommand(ctx context.Context, spec NodeSpec) (*exec.Cmd, error) {
	if spec.Command == "" {
		return nil, errors.New("node spec has no command")
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = r.config.WorkDir
	cmd.Env = append(os.Environ(), r.config.Env...)
	cmd.Env = append(cmd.Env, NodeIndexEnv+"="+strconv.Itoa(spec.Index))

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return SignalGroup(cmd.Process, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.config.StopTimeout

	return cmd, nil
}

// buildArgs constructs the node command-line arguments.
func (r *NodeRunner) buildArgs(configPath string) []string {
	args := make([]string, 0, len(r.config.ExtraArgs)+1)
	args = append(args, r.config.ExtraArgs...)

	if r.config.ConfigFlag == "" {
		return append(args, configPath)
	}
	return append(args, r.config.ConfigFlag+"="+configPath)
}

// Config returns the node configuration.
func (r *NodeRunner) Config() *NodeConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
// Arguments containing whitespace or quotes are single-quoted.
func (r *NodeRunner) CommandString(spec NodeSpec) string {
	argv := spec.Argv()
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
