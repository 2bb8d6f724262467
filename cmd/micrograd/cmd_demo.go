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
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type demoOptions struct {
	expr   string
	format string
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newDemoCmd(app *cliApp) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Differentiate a small expression and print every node",
		Long: `Build a small expression, run the backward pass from its output and
print each node's value and gradient in arena order.

Expressions:
  demo    L = (a*b + c) * f with a=2, b=-3, c=10, f=-2
  neuron  o = tanh(x1*w1 + x2*w2 + b), a single two-input neuron

Examples:
  micrograd demo
  micrograd demo --expr neuron
  micrograd demo --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.expr, "expr", exprDemo, "Expression to build (demo, neuron)")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format (table, json)")
	return cmd
}

func runDemo(cmd *cobra.Command, app *cliApp, opts *demoOptions) error {
	ctx := cmd.Context()
	g, root, err := buildExpression(ctx, opts.expr, app.slog())
	if err != nil {
		return err
	}
	out, err := g.Get(root)
	if err != nil {
		return err
	}
	app.logger.Debug("demo expression differentiated",
		"expr", opts.expr, "graph_id", g.ID(), "nodes", g.Len())

	switch opts.format {
	case "json":
		return writeJSON(app.printer.Out(), g.Nodes())
	case "table":
		app.printer.Title(fmt.Sprintf("Expression %s", opts.expr))
		app.printer.Table(nodeHeaders, nodeRows(g.Nodes()))
		app.printer.Box(out.Label, fmt.Sprintf("data %s, grad %s", formatFloat(out.Data), formatFloat(out.Grad)))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table or json)", opts.format)
	}
}
