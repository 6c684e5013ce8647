package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/reticulum-cluster/internal/supervisor"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// NodeStateMsg reports a node transition.
type NodeStateMsg struct {
	Index    int
	State    supervisor.State
	PID      int
	ExitCode int
	Err      error
	At       time.Time
}

// ClusterDoneMsg signals that every node has reached a terminal state.
type ClusterDoneMsg struct {
	AllSucceeded bool
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// nodeRow is the dashboard's view of one node.
type nodeRow struct {
	state      supervisor.State
	pid        int
	exitCode   int
	err        error
	configPath string
	startedAt  time.Time
	endedAt    time.Time
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	binary         string
	configTemplate string
	metricsAddr    string
	onInterrupt    func()

	// Current state
	nodes        []nodeRow
	startTime    time.Time
	lastUpdate   time.Time
	done         bool
	allSucceeded bool
	stopping     bool
	onlyFailed   bool

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
	detached bool
}

// Config holds TUI configuration.
type Config struct {
	Nodes          int
	Binary         string
	ConfigTemplate string
	ConfigPaths    []string
	MetricsAddr    string

	// OnInterrupt is called on the first q, esc, or ctrl+c to stop the cluster.
	OnInterrupt func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	nodes := make([]nodeRow, cfg.Nodes)
	for i := range nodes {
		if i < len(cfg.ConfigPaths) {
			nodes[i].configPath = cfg.ConfigPaths[i]
		}
	}

	return Model{
		binary:         cfg.Binary,
		configTemplate: cfg.ConfigTemplate,
		metricsAddr:    cfg.MetricsAddr,
		onInterrupt:    cfg.OnInterrupt,
		nodes:          nodes,
		startTime:      time.Now(),
		lastUpdate:     time.Now(),
		width:          80,
		height:         24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// First press stops the cluster; a second press leaves the
			// dashboard while the nodes are still shutting down.
			if m.stopping || m.done || m.ActiveCount() == 0 {
				m.detached = !m.done && m.ActiveCount() > 0
				m.quitting = true
				return m, tea.Quit
			}
			m.stopping = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, nil
		case "f":
			m.onlyFailed = !m.onlyFailed
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Now()
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case NodeStateMsg:
		m.applyNodeState(msg)
		m.lastUpdate = time.Now()
		return m, nil

	case ClusterDoneMsg:
		m.done = true
		m.allSucceeded = msg.AllSucceeded
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// applyNodeState records a transition. Out-of-range indices are ignored.
func (m *Model) applyNodeState(msg NodeStateMsg) {
	if msg.Index < 0 || msg.Index >= len(m.nodes) {
		return
	}
	row := &m.nodes[msg.Index]
	row.state = msg.State

	switch msg.State {
	case supervisor.StateRunning:
		row.pid = msg.PID
		row.startedAt = msg.At
	case supervisor.StateExited:
		row.exitCode = msg.ExitCode
		row.endedAt = msg.At
	case supervisor.StateFailed:
		row.err = msg.Err
		row.endedAt = msg.At
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the cluster was launched.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Counts returns the number of nodes in each state.
func (m Model) Counts() map[supervisor.State]int {
	counts := make(map[supervisor.State]int, 4)
	for _, n := range m.nodes {
		counts[n.state]++
	}
	return counts
}

// ActiveCount returns the number of nodes still launching or running.
func (m Model) ActiveCount() int {
	active := 0
	for _, n := range m.nodes {
		if n.state.IsActive() {
			active++
		}
	}
	return active
}

// FailedCount returns nodes that failed to launch or exited non-zero.
func (m Model) FailedCount() int {
	failed := 0
	for _, n := range m.nodes {
		if n.state == supervisor.StateFailed || (n.state == supervisor.StateExited && n.exitCode != 0) {
			failed++
		}
	}
	return failed
}

// Progress returns the fraction of nodes in a terminal state (0.0 to 1.0).
func (m Model) Progress() float64 {
	if len(m.nodes) == 0 {
		return 0
	}
	terminal := 0
	for _, n := range m.nodes {
		if n.state.IsTerminal() {
			terminal++
		}
	}
	return float64(terminal) / float64(len(m.nodes))
}

// Done reports whether the cluster has finished.
func (m Model) Done() bool {
	return m.done
}

// Stopping reports whether an interrupt has been requested.
func (m Model) Stopping() bool {
	return m.stopping
}

// Detached reports whether the dashboard was closed while nodes were still active.
func (m Model) Detached() bool {
	return m.detached
}

// =============================================================================
// Helper for external use
// =============================================================================

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// SendNodeState sends a node transition to the TUI.
func SendNodeState(p Sender, msg NodeStateMsg) {
	if p != nil {
		p.Send(msg)
	}
}

// SendDone tells the TUI the cluster has finished.
func SendDone(p Sender, allSucceeded bool) {
	if p != nil {
		p.Send(ClusterDoneMsg{AllSucceeded: allSucceeded})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p Sender) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatRuntime formats a node runtime compactly.
func formatRuntime(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return formatDuration(d)
	}
}
