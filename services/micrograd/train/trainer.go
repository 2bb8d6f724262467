// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package train fits small tanh networks with the scalar engine.
//
// The engine only computes gradients; updating parameters is the caller's
// job. This package is that caller: every step builds a fresh graph from
// the current parameters, backpropagates a squared-error loss and applies
// p -= lr * grad to the plain float64 parameters held by the MLP.
//
// # Thread Safety
//
// A Trainer holds no mutable state and may run several trainings at once.
// Each run owns its model and graphs.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrNonFiniteLoss is returned when a step produces a NaN or infinite loss.
var ErrNonFiniteLoss = errors.New("loss is not finite")

var validate = validator.New()

// Config controls a training run.
type Config struct {
	// Steps is the number of gradient descent steps.
	Steps int `yaml:"steps" json:"steps" validate:"gte=1,lte=1000000"`

	// LearningRate scales each update: p -= LearningRate * grad.
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate" validate:"gt=0"`

	// Layers lists the layer widths. The last layer must have width 1.
	Layers []int `yaml:"layers" json:"layers" validate:"min=1,dive,gte=1"`

	// Seed initializes the parameter RNG. RunMany uses Seed+i for run i.
	Seed uint64 `yaml:"seed" json:"seed"`

	// SnapshotEvery exports the loss graph every N steps (and at the last
	// step) to the SnapshotFunc. 0 disables snapshots.
	SnapshotEvery int `yaml:"snapshot_every" json:"snapshot_every" validate:"gte=0"`

	// LogEvery logs the loss at info level every N steps. 0 logs only the
	// final loss.
	LogEvery int `yaml:"log_every" json:"log_every" validate:"gte=0"`
}

// DefaultConfig returns the settings used in the micrograd lecture: a
// 3-input network with two hidden layers of 4 and one output.
func DefaultConfig() Config {
	return Config{
		Steps:         50,
		LearningRate:  0.05,
		Layers:        []int{4, 4, 1},
		Seed:          1337,
		SnapshotEvery: 10,
		LogEvery:      10,
	}
}

// Validate checks the config's struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid training config: %w", err)
	}
	if c.Layers[len(c.Layers)-1] != 1 {
		return fmt.Errorf("%w: output layer must have width 1, got %d", ErrInvalidShape, c.Layers[len(c.Layers)-1])
	}
	return nil
}

// SnapshotFunc receives the exported loss graph of a step, after the
// backward pass and before the parameter update. Returning an error aborts
// the run. It may be called from several goroutines under RunMany.
type SnapshotFunc func(ctx context.Context, runID string, step int, loss float64, view *engine.View) error

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger. Per-step engine events go to the same logger
// at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) {
		t.logger = l
	}
}

// WithSnapshotFunc sets the hook called every Config.SnapshotEvery steps.
func WithSnapshotFunc(fn SnapshotFunc) Option {
	return func(t *Trainer) {
		t.snapshot = fn
	}
}

// Trainer runs gradient descent on an MLP.
type Trainer struct {
	cfg      Config
	logger   *slog.Logger
	snapshot SnapshotFunc
}

// NewTrainer validates cfg and creates a Trainer.
func NewTrainer(cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t, nil
}

// Result is the outcome of one training run.
type Result struct {
	RunID       string        `json:"run_id"`
	Seed        uint64        `json:"seed"`
	Losses      []float64     `json:"losses"`
	FinalLoss   float64       `json:"final_loss"`
	Predictions []float64     `json:"predictions"`
	Model       *MLP          `json:"model"`
	Duration    time.Duration `json:"duration"`
}

// Run trains a freshly initialized model on ds.
//
// # Description
//
// Each step builds a new engine.Graph containing the parameters, the
// inputs and the squared-error loss sum((ypred - y)^2), runs Backward from
// the loss and updates every parameter by -LearningRate * grad. The
// context is checked before every step.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - ds: Training data. Must be non-empty and rectangular.
//
// # Outputs
//
//   - *Result: Loss history, final predictions and the trained model.
//   - error: ErrInvalidShape, ErrNonFiniteLoss, a snapshot error, or the
//     context error if cancelled.
func (t *Trainer) Run(ctx context.Context, ds Dataset) (*Result, error) {
	return t.run(ctx, ds, uuid.NewString(), t.cfg.Seed)
}

// RunMany runs n independent trainings concurrently, run i seeded with
// Config.Seed+i. Each run gets its own run id, model and graphs. The first
// failure cancels the remaining runs.
func (t *Trainer) RunMany(ctx context.Context, ds Dataset, n int) ([]*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("run count must be positive, got %d", n)
	}

	results := make([]*Result, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := t.run(gctx, ds, uuid.NewString(), t.cfg.Seed+uint64(i))
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Trainer) run(ctx context.Context, ds Dataset, runID string, seed uint64) (*Result, error) {
	width, err := ds.Validate()
	if err != nil {
		return nil, err
	}
	model, err := NewMLP(width, t.cfg.Layers, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Trainer.Run", trace.WithAttributes(
		attribute.String("train.run_id", runID),
		attribute.Int("train.steps", t.cfg.Steps),
		attribute.Int("train.params", model.NumParams()),
	))
	defer span.End()

	logger := telemetry.LoggerWithRun(ctx, t.logger, runID)
	logger.Info("training started",
		slog.Uint64("seed", seed),
		slog.Int("params", model.NumParams()),
		slog.Int("steps", t.cfg.Steps))

	start := time.Now()
	res := &Result{
		RunID:  runID,
		Seed:   seed,
		Losses: make([]float64, 0, t.cfg.Steps),
		Model:  model,
	}

	for step := 0; step < t.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			recordRun(ctx, "cancelled")
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("training cancelled at step %d: %w", step, err)
		}

		loss, err := t.step(ctx, model, ds, runID, step)
		if err != nil {
			recordRun(ctx, "failed")
			telemetry.RecordError(span, err, attribute.Int("train.step", step))
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		res.Losses = append(res.Losses, loss)

		if t.cfg.LogEvery > 0 && step%t.cfg.LogEvery == 0 {
			logger.Info("step", slog.Int("step", step), slog.Float64("loss", loss))
		} else {
			logger.Debug("step", slog.Int("step", step), slog.Float64("loss", loss))
		}
	}

	res.FinalLoss = res.Losses[len(res.Losses)-1]
	res.Predictions = make([]float64, len(ds.Inputs))
	for i, x := range ds.Inputs {
		ys, err := model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("predict sample %d: %w", i, err)
		}
		res.Predictions[i] = ys[0]
	}
	res.Duration = time.Since(start)

	recordRun(ctx, "completed")
	span.SetAttributes(attribute.Float64("train.final_loss", res.FinalLoss))
	logger.Info("training finished",
		slog.Float64("final_loss", res.FinalLoss),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// step performs one forward, backward and update cycle and returns the loss
// computed before the update.
func (t *Trainer) step(ctx context.Context, model *MLP, ds Dataset, runID string, step int) (float64, error) {
	start := time.Now()

	g := engine.NewGraph(
		engine.WithLogger(t.logger),
		engine.WithCapacity(model.NumParams()*2*len(ds.Inputs)+64),
	)
	params := model.buildParams(g)

	lossID, err := lossGraph(g, model, params, ds)
	if err != nil {
		return 0, err
	}
	if err := g.Backward(ctx, lossID); err != nil {
		return 0, err
	}

	lossNode, err := g.Get(lossID)
	if err != nil {
		return 0, err
	}
	loss := lossNode.Data
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFiniteLoss, loss)
	}

	if t.snapshotDue(step) {
		view, err := g.Export(ctx, lossID)
		if err != nil {
			return 0, err
		}
		if err := t.snapshot(ctx, runID, step, loss, view); err != nil {
			return 0, fmt.Errorf("snapshot: %w", err)
		}
	}

	ptrs := model.paramPtrs()
	for i, id := range params.ids {
		n, err := g.Get(id)
		if err != nil {
			return 0, err
		}
		*ptrs[i] -= t.cfg.LearningRate * n.Grad
	}

	recordStep(ctx, runID, loss, time.Since(start))
	return loss, nil
}

func (t *Trainer) snapshotDue(step int) bool {
	if t.snapshot == nil || t.cfg.SnapshotEvery <= 0 {
		return false
	}
	return step%t.cfg.SnapshotEvery == 0 || step == t.cfg.Steps-1
}

// lossGraph builds sum over samples of (ypred - y)^2. The subtraction is
// expressed as ypred + (-y) with a constant leaf, since the engine has no
// subtraction or power operation.
func lossGraph(g *engine.Graph, model *MLP, params *paramLeaves, ds Dataset) (engine.NodeID, error) {
	var loss engine.NodeID
	for k, x := range ds.Inputs {
		prefix := fmt.Sprintf("s%d.", k)

		xs := make([]engine.NodeID, len(x))
		for i, v := range x {
			xs[i] = g.Leaf(fmt.Sprintf("%sx%d", prefix, i), v)
		}
		out, err := model.forward(g, params, xs, prefix)
		if err != nil {
			return 0, err
		}

		negY := g.Leaf(prefix+"-y", -ds.Targets[k])
		diff, err := g.Add(out[0], negY)
		if err != nil {
			return 0, err
		}
		if err := g.SetLabel(diff, prefix+"diff"); err != nil {
			return 0, err
		}
		sq, err := g.Mul(diff, diff)
		if err != nil {
			return 0, err
		}
		if err := g.SetLabel(sq, prefix+"sq"); err != nil {
			return 0, err
		}

		if k == 0 {
			loss = sq
			continue
		}
		if loss, err = g.Add(loss, sq); err != nil {
			return 0, err
		}
	}
	if err := g.SetLabel(loss, "loss"); err != nil {
		return 0, err
	}
	return loss, nil
}
