package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// stringList is a custom flag type for repeatable flags (-env, -arg).
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[0], os.Args[1:])
}

// ParseArgs parses the given arguments and returns a Config.
// When -cluster-file is given, the file is applied to the defaults and the
// arguments are parsed again on top of it, so flags set on the command line
// override the values it provides. Repeatable flags append to the file's lists.
func ParseArgs(name string, args []string) (*Config, error) {
	cfg, err := parseOnto(name, DefaultConfig(), args)
	if err != nil {
		return nil, err
	}
	if cfg.ClusterFile == "" {
		return cfg, nil
	}

	base, err := LoadFile(cfg.ClusterFile)
	if err != nil {
		return nil, err
	}
	return parseOnto(name, base, args)
}

// parseOnto parses args using the values in cfg as flag defaults.
func parseOnto(name string, cfg *Config, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	env := stringList(cfg.Env)
	extra := stringList(cfg.ExtraArgs)

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, `reticulum-cluster - launch and supervise a local cluster of Reticulum nodes

Usage:
  reticulum-cluster [flags] [-- extra node args]

Cluster Flags:
`)
		printFlagCategory(fs, out, []string{"nodes", "n", "config-template", "cluster-file"})

		fmt.Fprintf(out, "\nNode Process:\n")
		printFlagCategory(fs, out, []string{"binary", "config-flag", "workdir", "env", "arg", "stop-timeout", "capture-output"})

		fmt.Fprintf(out, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, out, []string{"print-cmd", "skip-preflight"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "metrics-dump", "v", "log-format"})

		fmt.Fprintf(out, "\nDashboard:\n")
		printFlagCategory(fs, out, []string{"tui"})

		fmt.Fprintf(out, `
Flag Convention:
  Single-dash flags (-nodes, -binary) are normal options.
  Double-dash flags (--print-cmd, --skip-preflight) are diagnostic modes.

Examples:
  # Ten nodes using test/config0.json .. test/config9.json
  reticulum-cluster

  # Three nodes with a custom binary and template
  reticulum-cluster -nodes 3 -binary ./bin/reticulum -config-template cfg/node%%02d.json

  # Show what would be launched
  reticulum-cluster -nodes 3 --print-cmd

  # Load settings from a file, override the node count
  reticulum-cluster -cluster-file cluster.yaml -nodes 5

`)
	}

	// Cluster
	fs.IntVar(&cfg.Nodes, "nodes", cfg.Nodes, "Number of nodes to launch")
	fs.IntVar(&cfg.Nodes, "n", cfg.Nodes, "Shorthand for -nodes")
	fs.StringVar(&cfg.ConfigTemplate, "config-template", cfg.ConfigTemplate, "Per-node config path template (one %d verb)")
	fs.StringVar(&cfg.ClusterFile, "cluster-file", cfg.ClusterFile, "YAML or JSON file with cluster settings")

	// Node process
	fs.StringVar(&cfg.NodeBinary, "binary", cfg.NodeBinary, "Path to the node binary")
	fs.StringVar(&cfg.ConfigFlag, "config-flag", cfg.ConfigFlag, `Flag used to pass the config path ("" = positional)`)
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Working directory for node processes")
	fs.Var(&env, "env", "Extra environment variable KEY=VALUE (can repeat)")
	fs.Var(&extra, "arg", "Extra argument passed before the config flag (can repeat)")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Grace period between SIGTERM and SIGKILL")
	fs.BoolVar(&cfg.CaptureOutput, "capture-output", cfg.CaptureOutput, "Capture node stdout/stderr into the log")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print node commands and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write final metrics to this file on exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// TUI (Terminal User Interface)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = env
	cfg.ExtraArgs = extra

	// Positional arguments are passed through to every node
	cfg.ExtraArgs = append(cfg.ExtraArgs, fs.Args()...)

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(out, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(out)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if _, ok := f.Value.(*stringList); ok {
		return "value"
	}

	getter, ok := f.Value.(flag.Getter)
	if !ok {
		return "string"
	}
	switch getter.Get().(type) {
	case bool:
		return ""
	case time.Duration:
		return "duration"
	case int, int64, uint, uint64:
		return "int"
	case float64:
		return "float"
	default:
		return "string"
	}
}
