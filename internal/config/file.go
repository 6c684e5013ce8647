package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of a cluster file.
// Pointer fields distinguish "unset" from zero values.
type fileConfig struct {
	Nodes          *int     `yaml:"nodes" json:"nodes"`
	ConfigTemplate *string  `yaml:"config_template" json:"config_template"`
	Binary         *string  `yaml:"binary" json:"binary"`
	ConfigFlag     *string  `yaml:"config_flag" json:"config_flag"`
	WorkDir        *string  `yaml:"workdir" json:"workdir"`
	Env            []string `yaml:"env" json:"env"`
	Args           []string `yaml:"args" json:"args"`
	StopTimeout    *string  `yaml:"stop_timeout" json:"stop_timeout"`
	CaptureOutput  *bool    `yaml:"capture_output" json:"capture_output"`
	MetricsAddr    *string  `yaml:"metrics_addr" json:"metrics_addr"`
	MetricsDump    *string  `yaml:"metrics_dump" json:"metrics_dump"`
	Verbose        *bool    `yaml:"verbose" json:"verbose"`
	LogFormat      *string  `yaml:"log_format" json:"log_format"`
	TUI            *bool    `yaml:"tui" json:"tui"`
}

// LoadFile reads a cluster file on top of DefaultConfig.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile reads a YAML or JSON cluster file and overlays the values it sets onto cfg.
// Files ending in .json are decoded as JSON; everything else as YAML.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cluster file: %w", err)
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return fmt.Errorf("parse cluster file %s: %w", path, err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty file decodes as io.EOF and leaves the defaults in place
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse cluster file %s: %w", path, err)
		}
	}

	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("cluster file %s: %w", path, err)
	}
	cfg.ClusterFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Nodes != nil {
		cfg.Nodes = *fc.Nodes
	}
	if fc.ConfigTemplate != nil {
		cfg.ConfigTemplate = *fc.ConfigTemplate
	}
	if fc.Binary != nil {
		cfg.NodeBinary = *fc.Binary
	}
	if fc.ConfigFlag != nil {
		cfg.ConfigFlag = *fc.ConfigFlag
	}
	if fc.WorkDir != nil {
		cfg.WorkDir = *fc.WorkDir
	}
	if fc.Env != nil {
		cfg.Env = append([]string(nil), fc.Env...)
	}
	if fc.Args != nil {
		cfg.ExtraArgs = append([]string(nil), fc.Args...)
	}
	if fc.StopTimeout != nil {
		d, err := time.ParseDuration(*fc.StopTimeout)
		if err != nil {
			return ValidationError{Field: "stop_timeout", Message: err.Error()}
		}
		cfg.StopTimeout = d
	}
	if fc.CaptureOutput != nil {
		cfg.CaptureOutput = *fc.CaptureOutput
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	if fc.MetricsDump != nil {
		cfg.MetricsDump = *fc.MetricsDump
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = *fc.LogFormat
	}
	if fc.TUI != nil {
		cfg.TUIEnabled = *fc.TUI
	}
	return nil
}
