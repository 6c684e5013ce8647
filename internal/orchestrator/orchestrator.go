// Package orchestrator wires configuration, preflight checks, metrics, the
// dashboard and the cluster supervisor into a single run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/reticulum-cluster/internal/config"
	"github.com/randomizedcoder/reticulum-cluster/internal/metrics"
	"github.com/randomizedcoder/reticulum-cluster/internal/preflight"
	"github.com/randomizedcoder/reticulum-cluster/internal/process"
	"github.com/randomizedcoder/reticulum-cluster/internal/stats"
	"github.com/randomizedcoder/reticulum-cluster/internal/supervisor"
	"github.com/randomizedcoder/reticulum-cluster/internal/tui"
)

// ErrPreflightFailed is returned by Run when a required preflight check fails.
var ErrPreflightFailed = errors.New("preflight checks failed (use --skip-preflight to override)")

// Orchestrator coordinates all components for one cluster run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	runner        *process.NodeRunner
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	// dashboard is nil unless the TUI is running.
	dashboard tui.Sender

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Nodes:          cfg.Nodes,
		ConfigTemplate: cfg.ConfigTemplate,
		Binary:         cfg.NodeBinary,
		Version:        cfg.Version,
	}, registry)

	return &Orchestrator{
		config:   cfg,
		logger:   logger,
		out:      os.Stdout,
		runner:   process.NewNodeRunner(cfg.NodeConfig()),
		registry: registry,
		metrics:  collector,
	}
}

// SetOutput redirects preflight results, uncaptured node output and the
// exit summary. The default is os.Stdout.
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// Run launches the cluster and blocks until every node has finished or
// the run is interrupted. Node failures are reported in the result, not
// as an error; an error means the run could not be carried out.
func (o *Orchestrator) Run(ctx context.Context) (*supervisor.ClusterResult, error) {
	o.startTime = time.Now()

	specs, err := o.runner.Specs(o.config.Nodes, o.config.ConfigTemplate)
	if err != nil {
		return nil, fmt.Errorf("build node specs: %w", err)
	}
	configPaths := make([]string, len(specs))
	for i, spec := range specs {
		configPaths[i] = spec.ConfigPath
	}

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Nodes:       o.config.Nodes,
			Binary:      o.config.NodeBinary,
			WorkDir:     o.config.WorkDir,
			ConfigPaths: configPaths,
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return nil, ErrPreflightFailed
		}
	}

	// Start metrics server
	if o.config.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(o.config.MetricsAddr, o.logger, o.registry)
		if err := o.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	// Keep the elapsed gauge fresh for scrapes during the run
	go o.updateElapsed(ctx)

	tuiDone := o.startDashboard(configPaths, cancel)

	sup := supervisor.New(supervisor.Config{
		Runner: o.runner,
		Logger: o.logger,
		Callbacks: supervisor.Callbacks{
			OnStateChange:  o.onStateChange,
			OnStart:        o.onStart,
			OnExit:         o.onExit,
			OnLaunchFailed: o.onLaunchFailed,
			OnWaitFailed:   o.onWaitFailed,
		},
		CaptureOutput: o.config.CaptureOutput,
		Verbose:       o.config.Verbose,
		Stdout:        o.nodeOutput(o.out),
		Stderr:        o.nodeOutput(os.Stderr),
	})

	result, runErr := sup.LaunchAll(ctx, o.config.Nodes, o.config.ConfigTemplate)
	if result == nil {
		o.stopDashboard(tuiDone)
		o.shutdownServer()
		return nil, runErr
	}

	o.metrics.ClusterFinished(result.AllSucceeded)
	tui.SendDone(o.dashboard, result.AllSucceeded)
	o.stopDashboard(tuiDone)

	o.shutdownServer()

	if o.config.MetricsDump != "" {
		if err := metrics.DumpFile(o.config.MetricsDump, o.registry); err != nil {
			o.logger.Warn("metrics_dump_failed", "path", o.config.MetricsDump, "error", err)
		} else {
			o.logger.Info("metrics_dumped", "path", o.config.MetricsDump)
		}
	}

	o.logger.Info("run_complete",
		"all_succeeded", result.AllSucceeded,
		"duration", time.Since(o.startTime).String(),
	)

	// Print exit summary
	fmt.Fprint(o.out, stats.FormatExitSummary(result, stats.SummaryConfig{
		Binary:         o.config.NodeBinary,
		ConfigTemplate: o.config.ConfigTemplate,
		MetricsAddr:    o.MetricsAddr(),
		MetricsDump:    o.config.MetricsDump,
	}))

	return result, runErr
}

// nodeOutput returns where uncaptured node output goes.
// The dashboard owns the terminal, so node output is dropped while it runs.
func (o *Orchestrator) nodeOutput(w io.Writer) io.Writer {
	if o.config.TUIEnabled {
		return nil
	}
	return w
}

// startDashboard runs the TUI in the background when enabled.
// The returned channel is closed once the TUI exits; it is nil when disabled.
func (o *Orchestrator) startDashboard(configPaths []string, interrupt context.CancelFunc) chan struct{} {
	if !o.config.TUIEnabled {
		return nil
	}

	model := tui.New(tui.Config{
		Nodes:          o.config.Nodes,
		Binary:         o.config.NodeBinary,
		ConfigTemplate: o.config.ConfigTemplate,
		ConfigPaths:    configPaths,
		MetricsAddr:    o.MetricsAddr(),
		OnInterrupt: func() {
			o.logger.Info("interrupt_requested", "source", "tui")
			interrupt()
		},
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	o.dashboard = program

	done := make(chan struct{})
	go func() {
		defer close(done)
		final, err := program.Run()
		if err != nil {
			o.logger.Warn("tui_error", "error", err)
			return
		}
		o.dashboardExited(final)
	}()
	return done
}

// dashboardExited tells the user the run continues after they leave the TUI.
func (o *Orchestrator) dashboardExited(final tea.Model) {
	m, ok := final.(tui.Model)
	if !ok || !m.Detached() {
		return
	}
	o.logger.Info("tui_detached")
	fmt.Fprintln(o.out, "Dashboard closed; waiting for nodes to stop. The exit summary follows.")
}

// stopDashboard waits for the TUI to restore the terminal.
func (o *Orchestrator) stopDashboard(done chan struct{}) {
	if done == nil {
		return
	}
	tui.SendQuit(o.dashboard)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		o.logger.Warn("tui_shutdown_timeout")
	}
}

func (o *Orchestrator) shutdownServer() {
	if o.metricsServer == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) updateElapsed(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.metrics.UpdateElapsed()
		}
	}
}

// Callback handlers

func (o *Orchestrator) onStateChange(index int, oldState, newState supervisor.State) {
	if o.config.Verbose {
		o.logger.Debug("node_state_change",
			"node_index", index,
			"from", oldState.String(),
			"to", newState.String(),
		)
	}
}

func (o *Orchestrator) onStart(index int, pid int) {
	o.metrics.NodeStarted(index)
	tui.SendNodeState(o.dashboard, tui.NodeStateMsg{
		Index: index,
		State: supervisor.StateRunning,
		PID:   pid,
		At:    time.Now(),
	})
}

func (o *Orchestrator) onExit(index int, exitCode int, runtime time.Duration) {
	o.metrics.RecordExit(index, exitCode, runtime)
	tui.SendNodeState(o.dashboard, tui.NodeStateMsg{
		Index:    index,
		State:    supervisor.StateExited,
		ExitCode: exitCode,
		At:       time.Now(),
	})
}

func (o *Orchestrator) onLaunchFailed(index int, err error) {
	o.metrics.LaunchFailed(index)
	tui.SendNodeState(o.dashboard, tui.NodeStateMsg{
		Index: index,
		State: supervisor.StateFailed,
		Err:   err,
		At:    time.Now(),
	})
}

func (o *Orchestrator) onWaitFailed(index int, err error) {
	o.metrics.WaitFailed(index)
	tui.SendNodeState(o.dashboard, tui.NodeStateMsg{
		Index: index,
		State: supervisor.StateFailed,
		Err:   err,
		At:    time.Now(),
	})
}

// Runner returns the node runner for external access.
func (o *Orchestrator) Runner() *process.NodeRunner {
	return o.runner
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the Prometheus registry the collector is registered on.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// MetricsAddr returns the metrics listen address, or "" when disabled.
func (o *Orchestrator) MetricsAddr() string {
	if o.metricsServer != nil {
		return o.metricsServer.Addr()
	}
	return o.config.MetricsAddr
}
