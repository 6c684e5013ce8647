// Package main provides the reticulum-cluster CLI entry point.
//
// reticulum-cluster launches a fixed number of Reticulum node processes on the
// local machine, each with its own configuration file, and waits for all of
// them to finish.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/reticulum-cluster/internal/config"
	"github.com/randomizedcoder/reticulum-cluster/internal/logging"
	"github.com/randomizedcoder/reticulum-cluster/internal/orchestrator"
	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/reticulum-cluster
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("reticulum-cluster %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	cfg.Version = version

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewDiscardLogger()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		if err := printNodeCommands(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"nodes", cfg.Nodes,
		"binary", cfg.NodeBinary,
		"config_template", cfg.ConfigTemplate,
		"cluster_file", cfg.ClusterFile,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Print startup banner
	if !cfg.TUIEnabled {
		printBanner(os.Stdout, cfg)
	}

	// Create and run orchestrator
	orch := orchestrator.New(cfg, logger)
	result, err := orch.Run(context.Background())
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		if result == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	return exitCode(result.AllSucceeded)
}

// exitCode maps the cluster outcome to the process exit status.
func exitCode(allSucceeded bool) int {
	if allSucceeded {
		return 0
	}
	return 1
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                       reticulum-cluster                           ║")
	fmt.Fprintln(w, "║          Local Reticulum Node Cluster Supervisor                  ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Nodes:       %d\n", cfg.Nodes)
	fmt.Fprintf(w, "  Binary:      %s\n", cfg.NodeBinary)
	fmt.Fprintf(w, "  Configs:     %s\n", cfg.ConfigTemplate)
	if cfg.WorkDir != "" {
		fmt.Fprintf(w, "  Workdir:     %s\n", cfg.WorkDir)
	}
	if cfg.ClusterFile != "" {
		fmt.Fprintf(w, "  From file:   %s\n", cfg.ClusterFile)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// printNodeCommands prints the command line each node would be started with.
func printNodeCommands(w io.Writer, cfg *config.Config) error {
	runner := process.NewNodeRunner(cfg.NodeConfig())
	specs, err := runner.Specs(cfg.Nodes, cfg.ConfigTemplate)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "# Commands that would be run for %d node(s):\n", len(specs))
	if cfg.WorkDir != "" {
		fmt.Fprintf(w, "# (in %s)\n", cfg.WorkDir)
	}
	fmt.Fprintln(w)
	for _, spec := range specs {
		fmt.Fprintln(w, runner.CommandString(spec))
	}
	return nil
}
