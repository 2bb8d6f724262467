// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Kodylow/nn-zero-to-hero/cmd/micrograd/config"
	"github.com/Kodylow/nn-zero-to-hero/pkg/logging"
	"github.com/Kodylow/nn-zero-to-hero/pkg/ux"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/telemetry"
	"github.com/spf13/cobra"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	plain      bool
}

// cliApp is the state built once per invocation by the root command's
// PersistentPreRunE and torn down by run once Execute returns.
type cliApp struct {
	opts     globalOptions
	cfg      *config.MicrogradConfig
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

// slog returns the logger handed to library packages.
func (a *cliApp) slog() *slog.Logger {
	return a.logger.Slog()
}

func (a *cliApp) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.opts.configPath, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	levelName := cfg.Logging.Level
	if a.opts.logLevel != "" {
		levelName = a.opts.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "micrograd",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})

	a.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if a.opts.plain {
		a.printer.SetPlain(true)
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tcfg.Output = cmd.ErrOrStderr()

	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		_ = a.logger.Close()
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown

	a.logger.Debug("cli initialized",
		"command", cmd.CommandPath(),
		"trace_exporter", tcfg.TraceExporter,
		"metric_exporter", tcfg.MetricExporter)
	return nil
}

func (a *cliApp) teardown() error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// newRootCmd builds the command tree around app. The caller tears app down
// after Execute, since cobra skips post-run hooks when a command fails.
func newRootCmd(app *cliApp) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "micrograd",
		Short: "A tiny scalar autodiff engine",
		Long: `micrograd builds scalar computation graphs out of +, * and tanh,
runs reverse-mode differentiation over them, and renders the result.

Commands:
  demo       Differentiate the reference expression and print every node
  graph      Render an expression graph as DOT, Mermaid or JSON
  train      Fit a small tanh network by gradient descent
  snapshots  Inspect loss graphs stored during training`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.opts.configPath, "config", "",
		"Config file (default ~/.micrograd/micrograd.yaml, created on first run)")
	flags.StringVar(&app.opts.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")
	flags.BoolVar(&app.opts.plain, "plain", false,
		"Disable colors and boxes even on a terminal")

	rootCmd.AddCommand(
		newDemoCmd(app),
		newGraphCmd(app),
		newTrainCmd(app),
		newSnapshotsCmd(app),
	)
	return rootCmd
}

// newErrorPrinter is used for errors raised before or outside cliApp setup.
func newErrorPrinter(stdout, stderr io.Writer) *ux.Printer {
	return ux.NewPrinter(stdout, stderr)
}
