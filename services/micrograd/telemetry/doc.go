// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for micrograd.
//
// The engine and trainer packages call otel.Tracer and otel.Meter directly.
// Until Init runs those resolve to no-op providers, so library users pay
// nothing. The CLI calls Init once at startup and the exporter is chosen by
// configuration:
//
//   - traces: "stdout", "otlp" or "none" (default: none)
//   - metrics: "prometheus", "stdout" or "none" (default: none)
//
// With the prometheus exporter the /metrics handler is available through
// MetricsHandler and is served by `micrograd train --metrics-addr`.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none
//   - MICROGRAD_ENV: environment name (default: development)
package telemetry
