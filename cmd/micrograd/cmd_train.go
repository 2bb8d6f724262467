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
	"net"
	"net/http"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/pkg/ux"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/snapshot"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/telemetry"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/train"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type trainOptions struct {
	steps         int
	learningRate  float64
	runs          int
	seed          uint64
	snapshotEvery int
	noStore       bool
	serveMetrics  bool
	format        string
}

// trainReport is the JSON shape of one finished run.
type trainReport struct {
	RunID       string    `json:"run_id"`
	Seed        uint64    `json:"seed"`
	FinalLoss   float64   `json:"final_loss"`
	Losses      []float64 `json:"losses"`
	Predictions []float64 `json:"predictions"`
	Targets     []float64 `json:"targets"`
	DurationMS  int64     `json:"duration_ms"`
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newTrainCmd(app *cliApp) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a small tanh network by gradient descent",
		Long: `Train a multi-layer perceptron of tanh neurons on the built-in
four-sample dataset, minimising the sum of squared errors.

Every step builds a fresh computation graph, runs the backward pass and
moves each parameter against its gradient. Loss graphs are stored in the
snapshot database every --snapshot-every steps and at the final step.

Multiple runs execute concurrently, run i seeded with seed+i.

Examples:
  micrograd train
  micrograd train --steps 200 --lr 0.1
  micrograd train --runs 4 --snapshot-every 25
  micrograd train --format json --no-store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, app, opts)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.steps, "steps", 0, "Training steps per run (default from config)")
	flags.Float64Var(&opts.learningRate, "lr", 0, "Learning rate (default from config)")
	flags.IntVar(&opts.runs, "runs", 1, "Number of concurrent runs")
	flags.Uint64Var(&opts.seed, "seed", 0, "Seed of the first run (default from config)")
	flags.IntVar(&opts.snapshotEvery, "snapshot-every", -1, "Snapshot interval in steps, 0 disables (default from config)")
	flags.BoolVar(&opts.noStore, "no-store", false, "Do not open the snapshot database")
	flags.BoolVar(&opts.serveMetrics, "serve-metrics", false, "Serve /metrics on telemetry.metrics_addr while training")
	flags.StringVar(&opts.format, "format", "table", "Output format (table, json)")
	return cmd
}

// trainConfig overlays the flags that were set onto the configured
// training parameters.
func trainConfig(cmd *cobra.Command, base train.Config, opts *trainOptions) (train.Config, error) {
	cfg := base
	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps = opts.steps
	}
	if flags.Changed("lr") {
		cfg.LearningRate = opts.learningRate
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if flags.Changed("snapshot-every") {
		cfg.SnapshotEvery = opts.snapshotEvery
	}
	if err := cfg.Validate(); err != nil {
		return train.Config{}, err
	}
	return cfg, nil
}

func runTrain(cmd *cobra.Command, app *cliApp, opts *trainOptions) error {
	ctx := cmd.Context()

	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (want table or json)", opts.format)
	}
	if opts.runs < 1 {
		return fmt.Errorf("--runs must be at least 1, got %d", opts.runs)
	}
	cfg, err := trainConfig(cmd, app.cfg.Training, opts)
	if err != nil {
		return err
	}

	trainerOpts := []train.Option{train.WithLogger(app.slog())}
	if !opts.noStore && cfg.SnapshotEvery > 0 {
		store, closeStore, err := openStore(app)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				app.logger.Warn("closing snapshot store failed", "error", err)
			}
		}()
		trainerOpts = append(trainerOpts, train.WithSnapshotFunc(storeSnapshots(store)))
	}

	if opts.serveMetrics {
		stop, err := serveMetrics(app, app.cfg.Telemetry.MetricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	trainer, err := train.NewTrainer(cfg, trainerOpts...)
	if err != nil {
		return err
	}

	ds := train.DefaultDataset()
	results, err := trainer.RunMany(ctx, ds, opts.runs)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if opts.format == "json" {
		reports := make([]trainReport, len(results))
		for i, res := range results {
			reports[i] = trainReport{
				RunID:       res.RunID,
				Seed:        res.Seed,
				FinalLoss:   res.FinalLoss,
				Losses:      res.Losses,
				Predictions: res.Predictions,
				Targets:     ds.Targets,
				DurationMS:  res.Duration.Milliseconds(),
			}
		}
		return writeJSON(app.printer.Out(), reports)
	}

	printTrainResults(app.printer, results, ds)
	return nil
}

// storeSnapshots adapts a snapshot store to the trainer's snapshot hook.
func storeSnapshots(store *snapshot.Store) train.SnapshotFunc {
	return func(ctx context.Context, runID string, step int, loss float64, view *engine.View) error {
		return store.Put(ctx, &snapshot.Snapshot{
			RunID: runID,
			Step:  step,
			Loss:  loss,
			View:  view,
		})
	}
}

// serveMetrics serves the prometheus handler on addr until the returned
// stop func is called.
func serveMetrics(app *cliApp, addr string) (func(), error) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		return nil, errors.New("--serve-metrics requires telemetry.metric_exporter: prometheus")
	}
	if addr == "" {
		return nil, errors.New("--serve-metrics requires telemetry.metrics_addr")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("metrics server stopped", "error", err)
		}
	}()
	app.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			app.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}, nil
}

func printTrainResults(p *ux.Printer, results []*train.Result, ds train.Dataset) {
	p.Title("Training runs")
	rows := make([][]string, len(results))
	for i, res := range results {
		rows[i] = []string{
			res.RunID,
			fmt.Sprintf("%d", res.Seed),
			formatFloat(res.Losses[0]),
			formatFloat(res.FinalLoss),
			ux.Sparkline(res.Losses),
			res.Duration.Round(time.Millisecond).String(),
		}
	}
	p.Table([]string{"run", "seed", "first loss", "final loss", "curve", "duration"}, rows)

	best := results[0]
	for _, res := range results[1:] {
		if res.FinalLoss < best.FinalLoss {
			best = res
		}
	}
	predRows := make([][]string, len(ds.Targets))
	for i, y := range ds.Targets {
		predRows[i] = []string{
			fmt.Sprintf("%d", i),
			formatFloat(y),
			formatFloat(best.Predictions[i]),
		}
	}
	p.Info(fmt.Sprintf("Predictions of run %s", best.RunID))
	p.Table([]string{"sample", "target", "prediction"}, predRows)
	p.Success(fmt.Sprintf("Best final loss %s", formatFloat(best.FinalLoss)))
}
