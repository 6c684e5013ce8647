// Package config provides configuration management for reticulum-cluster.
package config

import (
	"time"

	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Cluster
	Nodes          int    `json:"nodes"`
	ConfigTemplate string `json:"config_template"`

	// Node process
	NodeBinary  string        `json:"binary"`
	ConfigFlag  string        `json:"config_flag"`
	WorkDir     string        `json:"workdir"`
	Env         []string      `json:"env"`
	ExtraArgs   []string      `json:"args"`
	StopTimeout time.Duration `json:"stop_timeout"`

	// Output
	CaptureOutput bool `json:"capture_output"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	MetricsDump string `json:"metrics_dump"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`

	// ClusterFile is the YAML/JSON file the settings were loaded from, if any.
	ClusterFile string `json:"-"`

	// Version is the build version, set by main.
	Version string `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
// The node defaults reproduce "./reticulum -config=test/config<i>.json" for 10 nodes.
func DefaultConfig() *Config {
	return &Config{
		// Cluster
		Nodes:          10,
		ConfigTemplate: "test/config%d.json",

		// Node process
		NodeBinary:  "./reticulum",
		ConfigFlag:  "-config",
		StopTimeout: 10 * time.Second,

		// Output
		CaptureOutput: true,

		// Observability
		MetricsAddr: "",
		Verbose:     false,
		LogFormat:   "json",

		// Dashboard
		TUIEnabled: false,
	}
}

// NodeConfig returns the process-level configuration for every node.
func (c *Config) NodeConfig() *process.NodeConfig {
	env := make([]string, len(c.Env))
	copy(env, c.Env)
	args := make([]string, len(c.ExtraArgs))
	copy(args, c.ExtraArgs)

	return &process.NodeConfig{
		BinaryPath:  c.NodeBinary,
		ConfigFlag:  c.ConfigFlag,
		ExtraArgs:   args,
		WorkDir:     c.WorkDir,
		Env:         env,
		StopTimeout: c.StopTimeout,
	}
}
