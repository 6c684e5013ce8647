// Package process provides abstractions for running external node processes.
package process

import (
	"context"
	"os/exec"
)

// Runner creates executable commands for cluster nodes.
// This interface allows the supervisor to be binary-agnostic.
type Runner interface {
	// Spec returns the immutable description of the node at index,
	// resolving its configuration path from configTemplate.
	Spec(index int, configTemplate string) (NodeSpec, error)

	// BuildCommand returns a ready-to-start command for the given node.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context, spec NodeSpec) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
