package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/randomizedcoder/reticulum-cluster/internal/process"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	// Cluster size must be positive
	if cfg.Nodes < 1 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Nodes),
		})
	}

	if err := process.ValidateTemplate(cfg.ConfigTemplate); err != nil {
		errs = append(errs, ValidationError{
			Field:   "config_template",
			Message: err.Error(),
		})
	}

	if strings.TrimSpace(cfg.NodeBinary) == "" {
		errs = append(errs, ValidationError{
			Field:   "binary",
			Message: "node binary path is required",
		})
	}

	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	for _, kv := range cfg.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("%q must be KEY=VALUE", kv),
			})
		}
	}

	// Log format must be valid
	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text', got %q", cfg.LogFormat),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// TUI and print-cmd both own stdout
	if cfg.TUIEnabled && cfg.PrintCmd {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "cannot be combined with --print-cmd",
		})
	}

	return errors.Join(errs...)
}
