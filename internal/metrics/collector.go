// Package metrics provides Prometheus metrics for reticulum-cluster.
//
// Metrics are organized into two tiers:
//   - Cluster metrics: aggregate launch, exit and runtime counters
//   - Node metrics: one series per node index for state and exit code
//
// Cluster sizes are small, so per-node series are always enabled.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Node state values exported by reticulum_cluster_node_state.
const (
	NodeStateLaunching = 0
	NodeStateRunning   = 1
	NodeStateExited    = 2
	NodeStateFailed    = 3
)

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Nodes          int
	ConfigTemplate string
	Binary         string
	Version        string
}

// Collector manages all Prometheus metrics for one cluster run.
type Collector struct {
	// --- Cluster overview ---
	clusterInfo     *prometheus.GaugeVec
	targetNodes     prometheus.Gauge
	runningNodes    prometheus.Gauge
	elapsedSeconds  prometheus.Gauge
	clusterSuccess  prometheus.Gauge
	clusterFinished prometheus.Gauge

	// --- Lifecycle events ---
	launchesTotal       prometheus.Counter
	launchFailuresTotal prometheus.Counter
	waitFailuresTotal   prometheus.Counter
	exitsTotal          *prometheus.CounterVec
	runtimeSeconds      prometheus.Histogram

	// --- Per node ---
	nodeState    *prometheus.GaugeVec
	nodeExitCode *prometheus.GaugeVec

	startTime time.Time

	mu             sync.Mutex
	running        int
	peakRunning    int
	totalLaunches  int64
	launchFailures int64
	waitFailures   int64
	exitCodes      map[int]int64
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		clusterInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reticulum_cluster_info",
				Help: "Information about the cluster run (value always 1)",
			},
			[]string{"version", "binary", "config_template"},
		),
		targetNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reticulum_cluster_target_nodes",
			Help: "Number of nodes the cluster was asked to launch",
		}),
		runningNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reticulum_cluster_running_nodes",
			Help: "Node processes currently running",
		}),
		elapsedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reticulum_cluster_elapsed_seconds",
			Help: "Seconds since the cluster was launched",
		}),
		clusterSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reticulum_cluster_success",
			Help: "1 if every node exited 0 (valid once reticulum_cluster_finished is 1)",
		}),
		clusterFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reticulum_cluster_finished",
			Help: "1 once every node has reached a terminal state",
		}),

		launchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reticulum_cluster_node_launches_total",
			Help: "Node processes successfully started",
		}),
		launchFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reticulum_cluster_node_launch_failures_total",
			Help: "Node processes that could not be started",
		}),
		waitFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reticulum_cluster_node_wait_failures_total",
			Help: "Started node processes whose exit status could not be collected",
		}),
		exitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reticulum_cluster_node_exits_total",
				Help: "Node process exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		runtimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "reticulum_cluster_node_runtime_seconds",
			Help: "Node process runtime distribution",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 5, 10, 30, 60,
				300, 900, 3600,
			},
		}),

		nodeState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reticulum_cluster_node_state",
				Help: "Node lifecycle state (0=launching, 1=running, 2=exited, 3=failed)",
			},
			[]string{"node_index"},
		),
		nodeExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reticulum_cluster_node_exit_code",
				Help: "Node exit code (signal deaths are 128+signal)",
			},
			[]string{"node_index"},
		),

		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		c.clusterInfo,
		c.targetNodes,
		c.runningNodes,
		c.elapsedSeconds,
		c.clusterSuccess,
		c.clusterFinished,
		c.launchesTotal,
		c.launchFailuresTotal,
		c.waitFailuresTotal,
		c.exitsTotal,
		c.runtimeSeconds,
		c.nodeState,
		c.nodeExitCode,
	)

	c.clusterInfo.WithLabelValues(cfg.Version, cfg.Binary, cfg.ConfigTemplate).Set(1)
	c.targetNodes.Set(float64(cfg.Nodes))
	for i := 0; i < cfg.Nodes; i++ {
		c.nodeState.WithLabelValues(strconv.Itoa(i)).Set(NodeStateLaunching)
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// NodeStarted records a successful node launch.
func (c *Collector) NodeStarted(index int) {
	c.launchesTotal.Inc()
	c.nodeState.WithLabelValues(strconv.Itoa(index)).Set(NodeStateRunning)

	c.mu.Lock()
	c.totalLaunches++
	c.running++
	if c.running > c.peakRunning {
		c.peakRunning = c.running
	}
	c.runningNodes.Set(float64(c.running))
	c.mu.Unlock()
}

// LaunchFailed records a node that could not be started.
func (c *Collector) LaunchFailed(index int) {
	c.launchFailuresTotal.Inc()
	c.nodeState.WithLabelValues(strconv.Itoa(index)).Set(NodeStateFailed)

	c.mu.Lock()
	c.launchFailures++
	c.mu.Unlock()
}

// WaitFailed records a started node that could not be reaped.
// The node no longer counts as running.
func (c *Collector) WaitFailed(index int) {
	c.waitFailuresTotal.Inc()
	c.nodeState.WithLabelValues(strconv.Itoa(index)).Set(NodeStateFailed)

	c.mu.Lock()
	c.waitFailures++
	if c.running > 0 {
		c.running--
	}
	c.runningNodes.Set(float64(c.running))
	c.mu.Unlock()
}

// RecordExit records a node process exit.
func (c *Collector) RecordExit(index int, exitCode int, runtime time.Duration) {
	c.exitsTotal.WithLabelValues(exitCategory(exitCode)).Inc()
	c.runtimeSeconds.Observe(runtime.Seconds())

	label := strconv.Itoa(index)
	c.nodeState.WithLabelValues(label).Set(NodeStateExited)
	c.nodeExitCode.WithLabelValues(label).Set(float64(exitCode))

	c.mu.Lock()
	c.exitCodes[exitCode]++
	if c.running > 0 {
		c.running--
	}
	c.runningNodes.Set(float64(c.running))
	c.mu.Unlock()
}

// UpdateElapsed refreshes the elapsed-time gauge.
func (c *Collector) UpdateElapsed() {
	c.elapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// ClusterFinished marks the run complete.
func (c *Collector) ClusterFinished(allSucceeded bool) {
	c.UpdateElapsed()
	c.clusterFinished.Set(1)
	if allSucceeded {
		c.clusterSuccess.Set(1)
	} else {
		c.clusterSuccess.Set(0)
	}
}

// exitCategory buckets an exit code for the exits counter.
func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Running returns the number of node processes currently running.
func (c *Collector) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PeakRunning returns the highest number of simultaneously running nodes.
func (c *Collector) PeakRunning() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakRunning
}

// TotalLaunches returns the number of nodes successfully started.
func (c *Collector) TotalLaunches() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLaunches
}

// LaunchFailures returns the number of nodes that failed to start.
func (c *Collector) LaunchFailures() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launchFailures
}

// WaitFailures returns the number of started nodes that could not be reaped.
func (c *Collector) WaitFailures() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitFailures
}

// ExitCodes returns a copy of the exit code counts.
func (c *Collector) ExitCodes() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make(map[int]int64, len(c.exitCodes))
	for code, count := range c.exitCodes {
		codes[code] = count
	}
	return codes
}
