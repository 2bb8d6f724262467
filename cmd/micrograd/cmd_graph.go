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
	"os"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/visualization"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type graphOptions struct {
	expr      string
	format    string
	direction string
	maxNodes  int
	out       string
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newGraphCmd(app *cliApp) *cobra.Command {
	opts := &graphOptions{}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render an expression graph as DOT, Mermaid or JSON",
		Long: `Build an expression, differentiate it, export the graph reachable from
its output and render it.

Formats default to the graph section of the config file.

Examples:
  micrograd graph | dot -Tsvg > graph.svg
  micrograd graph --expr neuron --format mermaid
  micrograd graph --format json --out graph.json
  micrograd graph --direction TB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, app, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.expr, "expr", exprDemo, "Expression to build (demo, neuron)")
	flags.StringVar(&opts.format, "format", "", "Output format (dot, mermaid, json)")
	flags.StringVar(&opts.direction, "direction", "", "Layout direction (LR, TB, RL, BT)")
	flags.IntVar(&opts.maxNodes, "max-nodes", 0, "Maximum number of value nodes to draw")
	flags.StringVarP(&opts.out, "out", "o", "", "Write to FILE instead of stdout")
	return cmd
}

func runGraph(cmd *cobra.Command, app *cliApp, opts *graphOptions) error {
	ctx := cmd.Context()

	gopts := visualization.GraphOptions{
		MaxNodes:  app.cfg.Graph.MaxNodes,
		Direction: app.cfg.Graph.Direction,
	}
	if opts.direction != "" {
		gopts.Direction = opts.direction
	}
	if opts.maxNodes > 0 {
		gopts.MaxNodes = opts.maxNodes
	}
	formatName := app.cfg.Graph.Format
	if opts.format != "" {
		formatName = opts.format
	}
	format, err := visualization.ParseFormat(formatName)
	if err != nil {
		return err
	}

	g, root, err := buildExpression(ctx, opts.expr, app.slog())
	if err != nil {
		return err
	}
	view, err := g.Export(ctx, root)
	if err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	rendered, err := visualization.NewGraphGenerator(&gopts).Generate(ctx, view, format)
	if err != nil {
		return fmt.Errorf("render graph: %w", err)
	}

	if opts.out == "" {
		_, err = fmt.Fprint(app.printer.Out(), rendered)
		return err
	}
	if err := os.WriteFile(opts.out, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	app.printer.Success(fmt.Sprintf("Wrote %d nodes and %d edges to %s", len(view.Nodes), len(view.Edges), opts.out))
	return nil
}
