// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package train

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("micrograd.train")
	meter  = otel.Meter("micrograd.train")
)

var (
	stepsTotal  metric.Int64Counter
	stepLatency metric.Float64Histogram
	currentLoss metric.Float64Gauge
	runsTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stepsTotal, err = meter.Int64Counter(
			"train_steps_total",
			metric.WithDescription("Total number of optimization steps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepLatency, err = meter.Float64Histogram(
			"train_step_duration_seconds",
			metric.WithDescription("Duration of one forward, backward and update step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		currentLoss, err = meter.Float64Gauge(
			"train_loss",
			metric.WithDescription("Loss after the most recent step"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runsTotal, err = meter.Int64Counter(
			"train_runs_total",
			metric.WithDescription("Total number of training runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordStep(ctx context.Context, runID string, loss float64, d time.Duration) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("run_id", runID))
	stepsTotal.Add(ctx, 1, attrs)
	stepLatency.Record(ctx, d.Seconds(), attrs)
	currentLoss.Record(ctx, loss, attrs)
}

func recordRun(ctx context.Context, outcome string) {
	if initMetrics() != nil {
		return
	}
	runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
