// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the micrograd CLI configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/train"
	"github.com/go-playground/validator/v10"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

var validate = validator.New()

// MicrogradConfig is the root of micrograd.yaml.
type MicrogradConfig struct {
	Meta      MetaConfig      `yaml:"meta"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Training  train.Config    `yaml:"training"`
	Storage   StorageConfig   `yaml:"storage"`
	Graph     GraphConfig     `yaml:"graph"`
}

type MetaConfig struct {
	Version string `yaml:"version" validate:"required"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"` // daily JSON log files; empty disables
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty" validate:"omitempty,hostname_port"`

	// MetricsAddr is where `train` serves /metrics when the prometheus
	// exporter is selected, e.g. "localhost:9464".
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

type StorageConfig struct {
	Path       string `yaml:"path" validate:"required"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type GraphConfig struct {
	Format    string `yaml:"format" validate:"oneof=dot mermaid json"`
	Direction string `yaml:"direction" validate:"oneof=LR RL TB BT"`
	MaxNodes  int    `yaml:"max_nodes" validate:"gte=1"`
}

// Validate checks struct tags and the training config's cross-field rules.
func (c *MicrogradConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Training.Validate()
}

// Home returns the micrograd state directory: $MICROGRAD_HOME, or
// ~/.micrograd.
func Home() (string, error) {
	if dir := os.Getenv("MICROGRAD_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".micrograd"), nil
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() MicrogradConfig {
	storage := "snapshots"
	if home, err := Home(); err == nil {
		storage = filepath.Join(home, "snapshots")
	}
	return MicrogradConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			MetricsAddr:    "localhost:9464",
		},
		Training: train.DefaultConfig(),
		Storage: StorageConfig{
			Path:       storage,
			SyncWrites: true,
		},
		Graph: GraphConfig{
			Format:    "dot",
			Direction: "LR",
			MaxNodes:  500,
		},
	}
}
