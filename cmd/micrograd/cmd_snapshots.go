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
	"strconv"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/snapshot"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/visualization"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newSnapshotsCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect loss graphs stored during training",
		Long: `Commands for the snapshot database written by 'micrograd train'.

Subcommands:
  list    - List runs, or the snapshots of one run
  show    - Print or render one snapshot
  delete  - Delete every snapshot of a run

Examples:
  micrograd snapshots list
  micrograd snapshots list 6f1c...
  micrograd snapshots show 6f1c... 40 --format dot | dot -Tsvg > step40.svg
  micrograd snapshots delete 6f1c...`,
	}
	cmd.AddCommand(
		newSnapshotsListCmd(app),
		newSnapshotsShowCmd(app),
		newSnapshotsDeleteCmd(app),
	)
	return cmd
}

func newSnapshotsListCmd(app *cliApp) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list [RUN]",
		Short: "List runs, or the snapshots of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(app)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if len(args) == 0 {
				runs, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(app.printer.Out(), runs)
				}
				if len(runs) == 0 {
					app.printer.Info("No snapshots stored")
					return nil
				}
				rows := make([][]string, len(runs))
				for i, run := range runs {
					rows[i] = []string{run}
				}
				app.printer.Table([]string{"run"}, rows)
				return nil
			}

			summaries, err := store.List(ctx, args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(app.printer.Out(), summaries)
			}
			if len(summaries) == 0 {
				return fmt.Errorf("%w: run %s", snapshot.ErrSnapshotNotFound, args[0])
			}
			rows := make([][]string, len(summaries))
			for i, s := range summaries {
				rows[i] = []string{
					strconv.Itoa(s.Step),
					formatFloat(s.Loss),
					strconv.Itoa(s.Nodes),
					strconv.Itoa(s.Edges),
					s.CreatedAt.Format(time.RFC3339),
				}
			}
			app.printer.Title("Run " + args[0])
			app.printer.Table([]string{"step", "loss", "nodes", "edges", "created"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	return cmd
}

func newSnapshotsShowCmd(app *cliApp) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show RUN STEP",
		Short: "Print or render one snapshot",
		Long: `Print one stored snapshot.

Formats:
  table    Every node of the loss graph with its data and gradient
  json     The full snapshot record
  dot      Graphviz rendering of the loss graph
  mermaid  Mermaid rendering of the loss graph`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step %q: %w", args[1], err)
			}

			store, closeStore, err := openStore(app)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			snap, err := store.Get(ctx, args[0], step)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeJSON(app.printer.Out(), snap)
			case "table":
				rows := make([][]string, len(snap.View.Nodes))
				for i, n := range snap.View.Nodes {
					rows[i] = []string{n.Label, n.Op, formatFloat(n.Data), formatFloat(n.Grad)}
				}
				app.printer.Title(fmt.Sprintf("Run %s, step %d", snap.RunID, snap.Step))
				app.printer.Table([]string{"label", "op", "data", "grad"}, rows)
				app.printer.Box("Loss", formatFloat(snap.Loss))
				return nil
			}

			vf, err := visualization.ParseFormat(format)
			if err != nil {
				return err
			}
			gopts := visualization.GraphOptions{
				MaxNodes:  app.cfg.Graph.MaxNodes,
				Direction: app.cfg.Graph.Direction,
			}
			rendered, err := visualization.NewGraphGenerator(&gopts).Generate(ctx, snap.View, vf)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(app.printer.Out(), rendered)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json, dot, mermaid)")
	return cmd
}

func newSnapshotsDeleteCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN",
		Short: "Delete every snapshot of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(app)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.DeleteRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: run %s", snapshot.ErrSnapshotNotFound, args[0])
			}
			app.printer.Success(fmt.Sprintf("Deleted %d snapshots of run %s", n, args[0]))
			return nil
		},
	}
}
