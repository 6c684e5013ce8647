// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes the cluster about to be launched.
type Options struct {
	Nodes       int
	Binary      string
	WorkDir     string
	ConfigPaths []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.Nodes))
	add(checkProcessLimit(opts.Nodes))
	if opts.WorkDir != "" {
		add(checkWorkDir(opts.WorkDir))
	}
	add(checkBinary(opts.Binary, opts.WorkDir))

	// Missing config files are the node's problem to report; warn only
	add(checkConfigFiles(opts.ConfigPaths, opts.WorkDir))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(nodes int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each node holds stdout/stderr pipes plus the pidfd/wait bookkeeping.
	// Plus supervisor overhead (metrics server, logging, etc.)
	required := nodes*4 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d nodes)", actual, required, nodes),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(nodes int) Check {
	required := nodes + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from the
// contents of /proc/self/limits. Returns 0 if it cannot be determined.
func parseMaxProcesses(limits string) int {
	actual := 0
	for _, line := range strings.Split(limits, "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[2] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[2], "%d", &actual)
				}
			}
			break
		}
	}
	return actual
}

// checkWorkDir verifies the node working directory exists.
func checkWorkDir(dir string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkBinary verifies the node binary resolves to an executable file.
// Paths containing a separator are resolved against workDir, as exec does
// when Cmd.Dir is set.
func checkBinary(path, workDir string) Check {
	if path == "" {
		return Check{
			Name:    "node_binary",
			Passed:  false,
			Message: "no binary configured",
		}
	}

	resolved := path
	if strings.Contains(path, string(filepath.Separator)) && !filepath.IsAbs(path) && workDir != "" {
		resolved = filepath.Join(workDir, path)
	}

	found, err := exec.LookPath(resolved)
	if err != nil && !errors.Is(err, exec.ErrDot) {
		return Check{
			Name:    "node_binary",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	if found == "" {
		found = resolved
	}

	return Check{
		Name:    "node_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", found),
	}
}

// checkConfigFiles reports how many per-node config files exist.
// Never fails the preflight.
func checkConfigFiles(paths []string, workDir string) Check {
	if len(paths) == 0 {
		return Check{
			Name:    "config_files",
			Passed:  true,
			Message: "no config files to check",
		}
	}

	var missing []string
	for _, p := range paths {
		full := p
		if workDir != "" && !filepath.IsAbs(p) {
			full = filepath.Join(workDir, p)
		}
		if _, err := os.Stat(full); err != nil {
			missing = append(missing, p)
		}
	}

	if len(missing) == 0 {
		return Check{
			Name:    "config_files",
			Passed:  true,
			Message: fmt.Sprintf("all %d present", len(paths)),
		}
	}

	shown := missing
	if len(shown) > 3 {
		shown = shown[:3]
	}
	msg := fmt.Sprintf("%d of %d missing (%s", len(missing), len(paths), strings.Join(shown, ", "))
	if len(missing) > len(shown) {
		msg += ", ..."
	}
	msg += ")"

	return Check{
		Name:    "config_files",
		Passed:  true,
		Warning: true,
		Message: msg,
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "node_binary":
		return "build the node binary or pass -binary /path/to/reticulum"
	case "work_dir":
		return "create the directory or fix -workdir"
	default:
		return "see documentation"
	}
}
