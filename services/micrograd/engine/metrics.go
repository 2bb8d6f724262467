// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine operations.
var (
	tracer = otel.Tracer("micrograd.engine")
	meter  = otel.Meter("micrograd.engine")
)

// Metrics for backward and export operations.
var (
	backwardLatency metric.Float64Histogram
	backwardTotal   metric.Int64Counter
	nodesVisited    metric.Int64Histogram
	exportLatency   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		backwardLatency, err = meter.Float64Histogram(
			"engine_backward_duration_seconds",
			metric.WithDescription("Duration of backward passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		backwardTotal, err = meter.Int64Counter(
			"engine_backward_total",
			metric.WithDescription("Total number of backward passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesVisited, err = meter.Int64Histogram(
			"engine_backward_nodes_visited",
			metric.WithDescription("Number of nodes processed per backward pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		exportLatency, err = meter.Float64Histogram(
			"engine_export_duration_seconds",
			metric.WithDescription("Duration of graph export operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBackwardMetrics records metrics for a backward pass.
func recordBackwardMetrics(ctx context.Context, duration time.Duration, visited int) {
	if err := initMetrics(); err != nil {
		return
	}
	backwardLatency.Record(ctx, duration.Seconds())
	backwardTotal.Add(ctx, 1)
	nodesVisited.Record(ctx, int64(visited))
}

// recordExportMetrics records metrics for an export.
func recordExportMetrics(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	exportLatency.Record(ctx, duration.Seconds())
}

// startBackwardSpan creates a span for a backward pass.
func startBackwardSpan(ctx context.Context, graphID string, root NodeID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph.Backward",
		trace.WithAttributes(
			attribute.String("engine.graph_id", graphID),
			attribute.Int("engine.root", int(root)),
		),
	)
}

// startExportSpan creates a span for an export.
func startExportSpan(ctx context.Context, graphID string, root NodeID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph.Export",
		trace.WithAttributes(
			attribute.String("engine.graph_id", graphID),
			attribute.Int("engine.root", int(root)),
		),
	)
}
