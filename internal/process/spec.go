package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadTemplate is returned when a configuration path template does not
// contain exactly one integer verb.
var ErrBadTemplate = errors.New("config template must contain exactly one integer verb (e.g. %d)")

// NodeSpec is the immutable description of one node to launch.
type NodeSpec struct {
	// Index is the node's position in [0, N).
	Index int

	// ConfigPath is the node's configuration file, derived from Index.
	ConfigPath string

	// Command is the executable to run.
	Command string

	// Args are the invocation arguments. They include ConfigPath.
	Args []string
}

// Argv returns the full argument vector (command followed by args).
func (s NodeSpec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Command)
	return append(argv, s.Args...)
}

// ValidateTemplate checks that template has exactly one integer verb.
// A literal "%%" is allowed anywhere.
func ValidateTemplate(template string) error {
	verbs := 0
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		i++
		if i >= len(template) {
			return fmt.Errorf("%w: trailing %% in %q", ErrBadTemplate, template)
		}
		if template[i] == '%' {
			continue
		}

		// Flags, width and precision may precede the verb: %02d, %-3d, %.3d
		for i < len(template) && strings.IndexByte("+-# 0123456789.", template[i]) >= 0 {
			i++
		}
		if i >= len(template) {
			return fmt.Errorf("%w: unterminated verb in %q", ErrBadTemplate, template)
		}
		if template[i] != 'd' {
			return fmt.Errorf("%w: unsupported verb %%%c in %q", ErrBadTemplate, template[i], template)
		}
		verbs++
	}

	if verbs != 1 {
		return fmt.Errorf("%w: found %d verbs in %q", ErrBadTemplate, verbs, template)
	}
	return nil
}

// ConfigPath substitutes index into template.
func ConfigPath(template string, index int) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}
	return fmt.Sprintf(template, index), nil
}
