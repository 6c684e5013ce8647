package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/reticulum-cluster/internal/supervisor"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		m.renderNodeTable(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" reticulum-cluster │ Active: %d/%d │ Failed: %d │ Elapsed: %s ",
		m.ActiveCount(),
		len(m.nodes),
		m.FailedCount(),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	counts := m.Counts()
	progress := m.Progress()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	var status string
	switch {
	case m.stopping:
		status = statusWarning.Render("Stopping nodes... (q again to detach)")
	case progress >= 1.0 && m.FailedCount() == 0:
		status = statusOK.Render("✓ All nodes exited cleanly")
	case progress >= 1.0:
		status = statusError.Render(fmt.Sprintf("✗ %d node(s) failed", m.FailedCount()))
	default:
		status = statusInfo.Render(fmt.Sprintf("Waiting for nodes... %d/%d finished",
			counts[supervisor.StateExited]+counts[supervisor.StateFailed], len(m.nodes)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Cluster"),
		RenderKeyValue("Binary", m.binary),
		RenderKeyValue("Config template", m.configTemplate),
		RenderKeyValue("Launching", fmt.Sprintf("%d", counts[supervisor.StateLaunching])),
		RenderKeyValue("Running", fmt.Sprintf("%d", counts[supervisor.StateRunning])),
		RenderKeyValue("Exited", fmt.Sprintf("%d", counts[supervisor.StateExited])),
		RenderKeyValue("Failed", fmt.Sprintf("%d", counts[supervisor.StateFailed])),
		"",
		RenderProgressBar(progress, barWidth),
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Node Table
// =============================================================================

func (m Model) renderNodeTable() string {
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-6s %-8s %-18s %-10s %s", "Node", "PID", "State", "Runtime", "Config"),
	)

	maxRows := m.height - 22
	if maxRows < 5 {
		maxRows = 5
	}

	now := time.Now()
	var rows []string
	shown := 0
	hidden := 0
	for i, n := range m.nodes {
		if m.onlyFailed && !(n.state == supervisor.StateFailed || (n.state == supervisor.StateExited && n.exitCode != 0)) {
			continue
		}
		if shown >= maxRows {
			hidden++
			continue
		}
		shown++

		pid := "-"
		if n.pid > 0 {
			pid = fmt.Sprintf("%d", n.pid)
		}

		var runtime time.Duration
		switch {
		case !n.startedAt.IsZero() && !n.endedAt.IsZero():
			runtime = n.endedAt.Sub(n.startedAt)
		case !n.startedAt.IsZero():
			runtime = now.Sub(n.startedAt)
		}

		state := StateStyle(n.state, n.exitCode).Render(fmt.Sprintf("%-18s", StateLabel(n.state, n.exitCode)))
		rows = append(rows, fmt.Sprintf("%-6d %-8s %s %-10s %s",
			i, pid, state, formatRuntime(runtime), n.configPath))
	}
	if hidden > 0 {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more nodes", hidden)))
	}
	if len(rows) == 0 {
		rows = append(rows, dimStyle.Render("No nodes to show. Press 'f' to toggle the filter."))
	}

	title := "Nodes"
	if m.onlyFailed {
		title = "Nodes (failed only)"
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render(title),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q/ctrl+c: stop cluster",
		"f: failed only",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
