package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/reticulum-cluster/internal/supervisor"
)

const (
	// MaxNodeRows is the largest cluster for which every node gets a full row.
	// Larger clusters list every node compactly and only failures in full.
	MaxNodeRows = 50

	// DefaultTailLines is the number of output lines shown per failed node.
	DefaultTailLines = 5
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Binary is the node executable that was launched
	Binary string

	// ConfigTemplate is the per-node configuration path template
	ConfigTemplate string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// MetricsDump is the file metrics were written to, if any
	MetricsDump string

	// TailLines is how many captured output lines to show per failed node.
	// Zero uses DefaultTailLines; negative disables output tails.
	TailLines int
}

// FormatExitSummary formats a cluster result for display at program exit.
//
// The summary includes:
// - Run information and overall verdict
// - Per-node state table
// - Exit code distribution
// - Runtime percentiles
// - Recent output from nodes that did not exit 0
func FormatExitSummary(result *supervisor.ClusterResult, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                        reticulum-cluster Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	if result == nil {
		b.WriteString("(No nodes were launched)\n\n")
		b.WriteString(heavyRule)
		return b.String()
	}

	succeeded, exitedNonZero, launchFailed := result.Counts()
	verdict := "OK"
	if !result.AllSucceeded {
		verdict = "FAILED"
	}

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(result.Duration))
	if cfg.Binary != "" {
		fmt.Fprintf(&b, "Binary:                 %s\n", cfg.Binary)
	}
	if cfg.ConfigTemplate != "" {
		fmt.Fprintf(&b, "Config Template:        %s\n", cfg.ConfigTemplate)
	}
	fmt.Fprintf(&b, "Nodes:                  %d\n", result.Size())
	fmt.Fprintf(&b, "Exited 0:               %d\n", succeeded)
	fmt.Fprintf(&b, "Exited Non-Zero:        %d\n", exitedNonZero)
	fmt.Fprintf(&b, "Launch Failed:          %d\n", launchFailed)
	fmt.Fprintf(&b, "Result:                 %s\n\n", verdict)

	b.WriteString(renderNodeTable(result))
	b.WriteString(renderExitCodes(result))
	b.WriteString(renderRuntimes(result))
	b.WriteString(renderFailedOutput(result, cfg.TailLines))

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.MetricsDump != "" {
		fmt.Fprintf(&b, "Metrics written to:   %s\n", cfg.MetricsDump)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func sectionHeader(b *strings.Builder, title string) {
	b.WriteString(lightRule)
	pad := (len([]rune(strings.TrimSuffix(lightRule, "\n"))) - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// renderNodeTable lists nodes in index order. Clusters larger than
// MaxNodeRows get one compact index:state entry per node, followed by full
// rows for the nodes that did not exit 0.
func renderNodeTable(result *supervisor.ClusterResult) string {
	if len(result.Handles) == 0 {
		return ""
	}
	if len(result.Handles) <= MaxNodeRows {
		var b strings.Builder
		sectionHeader(&b, "Nodes")
		writeNodeRows(&b, result.Handles)
		return b.String()
	}

	var b strings.Builder
	sectionHeader(&b, fmt.Sprintf("Nodes (%d)", result.Size()))
	for i, h := range result.Handles {
		if i%compactPerLine == 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, " %-16s", fmt.Sprintf("%d:%s", h.Index(), compactState(h)))
		if i%compactPerLine == compactPerLine-1 || i == len(result.Handles)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	if failed := result.Failed(); len(failed) > 0 {
		sectionHeader(&b, fmt.Sprintf("Nodes Not Exiting 0 (%d of %d)", len(failed), result.Size()))
		writeNodeRows(&b, failed)
	}
	return b.String()
}

// compactPerLine is the number of index:state entries per summary line.
const compactPerLine = 4

func writeNodeRows(b *strings.Builder, handles []*supervisor.NodeHandle) {
	fmt.Fprintf(b, "  %-6s %-8s %-22s %-10s %s\n", "Node", "PID", "State", "Runtime", "Config")
	b.WriteString("  " + strings.Repeat("─", 70) + "\n")
	for _, h := range handles {
		pid := "-"
		if h.PID > 0 {
			pid = fmt.Sprintf("%d", h.PID)
		}
		runtime := "-"
		if h.State == supervisor.StateExited {
			runtime = FormatMs(h.Runtime())
		}
		fmt.Fprintf(b, "  %-6d %-8s %-22s %-10s %s\n",
			h.Index(),
			pid,
			truncate(stateLabel(h), 22),
			runtime,
			h.Spec.ConfigPath,
		)
	}
	b.WriteString("\n")
}

// compactState is stateLabel without the exit code annotation.
func compactState(h *supervisor.NodeHandle) string {
	switch h.State {
	case supervisor.StateExited:
		return fmt.Sprintf("Exited(%d)", h.ExitCode)
	case supervisor.StateFailed:
		return failedLabel(h)
	default:
		return h.State.String()
	}
}

// failedLabel distinguishes nodes that never started from nodes that could not be reaped.
func failedLabel(h *supervisor.NodeHandle) string {
	if h.Started() {
		return "Failed(wait)"
	}
	return "Failed(launch)"
}

// stateLabel renders a handle's terminal state with an exit code label.
func stateLabel(h *supervisor.NodeHandle) string {
	switch h.State {
	case supervisor.StateExited:
		if label := exitCodeLabel(h.ExitCode); label != "" {
			return fmt.Sprintf("Exited(%d) %s", h.ExitCode, label)
		}
		return fmt.Sprintf("Exited(%d)", h.ExitCode)
	case supervisor.StateFailed:
		return failedLabel(h)
	default:
		return h.State.String()
	}
}

func renderExitCodes(result *supervisor.ClusterResult) string {
	codes := result.SortedExitCodes()
	if len(codes) == 0 {
		return ""
	}

	counts := result.ExitCodes()

	var b strings.Builder
	sectionHeader(&b, "Exit Codes")
	for _, code := range codes {
		fmt.Fprintf(&b, "  %4d %-12s %d\n", code, exitCodeLabel(code), counts[code])
	}
	b.WriteString("\n")
	return b.String()
}

func renderRuntimes(result *supervisor.ClusterResult) string {
	runtimes := NewRuntimeStats()
	for _, d := range result.Runtimes() {
		runtimes.Add(d)
	}
	snap := runtimes.Snapshot()
	if snap.Count == 0 {
		return ""
	}

	var b strings.Builder
	sectionHeader(&b, "Node Runtime")
	fmt.Fprintf(&b, "  %-10s %s\n", "Min", FormatMs(snap.Min))
	fmt.Fprintf(&b, "  %-10s %s\n", "P50", FormatMs(snap.P50))
	fmt.Fprintf(&b, "  %-10s %s\n", "P95", FormatMs(snap.P95))
	fmt.Fprintf(&b, "  %-10s %s\n", "P99", FormatMs(snap.P99))
	fmt.Fprintf(&b, "  %-10s %s\n\n", "Max", FormatMs(snap.Max))
	return b.String()
}

// renderFailedOutput shows the launch error or the last output lines of each
// node that did not exit 0.
func renderFailedOutput(result *supervisor.ClusterResult, tailLines int) string {
	if tailLines < 0 {
		return ""
	}
	if tailLines == 0 {
		tailLines = DefaultTailLines
	}

	failed := result.Failed()
	if len(failed) == 0 {
		return ""
	}

	var b strings.Builder
	sectionHeader(&b, "Failures")
	for _, h := range failed {
		fmt.Fprintf(&b, "  node %d (%s):\n", h.Index(), h.Spec.ConfigPath)
		if h.State == supervisor.StateFailed {
			fmt.Fprintf(&b, "    %v\n", h.Err)
			continue
		}
		if h.Output == nil || h.Output.TotalLines() == 0 {
			b.WriteString("    (no output)\n")
			continue
		}
		for _, line := range h.Output.RecentLines(tailLines) {
			fmt.Fprintf(&b, "    | %s\n", truncate(line, 100))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 2:
		return "(usage)"
	case 126:
		return "(not exec)"
	case 127:
		return "(not found)"
	case 130:
		return "(SIGINT)"
	case 134:
		return "(SIGABRT)"
	case 137:
		return "(SIGKILL)"
	case 139:
		return "(SIGSEGV)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
