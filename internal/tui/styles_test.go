package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/reticulum-cluster/internal/supervisor"
)

func TestStateLabel(t *testing.T) {
	testCases := []struct {
		state    supervisor.State
		exitCode int
		contains string
	}{
		{supervisor.StateLaunching, 0, "launching"},
		{supervisor.StateRunning, 0, "running"},
		{supervisor.StateExited, 0, "✓ exited(0)"},
		{supervisor.StateExited, 2, "✗ exited(2)"},
		{supervisor.StateFailed, 0, "launch failed"},
		{supervisor.State(42), 0, "unknown"},
	}

	for _, tc := range testCases {
		if got := StateLabel(tc.state, tc.exitCode); !strings.Contains(got, tc.contains) {
			t.Errorf("StateLabel(%s, %d) = %q, want %q", tc.state, tc.exitCode, got, tc.contains)
		}
	}
}

func TestStateStyle(t *testing.T) {
	testCases := []struct {
		name     string
		state    supervisor.State
		exitCode int
		expected lipgloss.Style
	}{
		{"running", supervisor.StateRunning, 0, statusInfo},
		{"clean exit", supervisor.StateExited, 0, statusOK},
		{"error exit", supervisor.StateExited, 1, statusError},
		{"signal exit", supervisor.StateExited, 143, statusWarning},
		{"launch failed", supervisor.StateFailed, 0, statusError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := StateStyle(tc.state, tc.exitCode)
			if got.GetForeground() != tc.expected.GetForeground() {
				t.Errorf("StateStyle foreground = %v, want %v", got.GetForeground(), tc.expected.GetForeground())
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	testCases := []struct {
		name     string
		progress float64
		width    int
		percent  string
	}{
		{"empty", 0, 20, "0%"},
		{"half", 0.5, 20, "50%"},
		{"full", 1.0, 20, "100%"},
		{"over", 1.5, 20, "150%"},
		{"narrow", 0.5, 3, "50%"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bar := RenderProgressBar(tc.progress, tc.width)
			if !strings.Contains(bar, tc.percent) {
				t.Errorf("bar %q missing %q", bar, tc.percent)
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('█', 3); got != "███" {
		t.Errorf("repeatChar = %q", got)
	}
	if got := repeatChar('x', -1); got != "" {
		t.Errorf("negative count should be empty, got %q", got)
	}
}

func TestFormatRuntime(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "-"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "00:01:30"},
	}

	for _, tc := range testCases {
		if got := formatRuntime(tc.d); got != tc.want {
			t.Errorf("formatRuntime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestRenderKeyValue(t *testing.T) {
	out := RenderKeyValue("Binary", "./reticulum")
	if !strings.Contains(out, "Binary:") || !strings.Contains(out, "./reticulum") {
		t.Errorf("RenderKeyValue = %q", out)
	}
}
