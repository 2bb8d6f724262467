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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/train"
)

// Expression names accepted by --expr.
const (
	exprDemo   = "demo"
	exprNeuron = "neuron"
)

// buildExpression builds a named expression and runs the backward pass from
// its output.
func buildExpression(ctx context.Context, name string, logger *slog.Logger) (*engine.Graph, engine.NodeID, error) {
	var (
		g    *engine.Graph
		root engine.NodeID
		err  error
	)
	switch strings.ToLower(name) {
	case exprDemo, "":
		g, root, err = train.ReferenceExpression(logger)
	case exprNeuron:
		g, root, err = train.NeuronDemo(logger)
	default:
		return nil, 0, fmt.Errorf("unknown expression %q (want %s or %s)", name, exprDemo, exprNeuron)
	}
	if err != nil {
		return nil, 0, err
	}
	if err := g.Backward(ctx, root); err != nil {
		return nil, 0, fmt.Errorf("backward: %w", err)
	}
	return g, root, nil
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// nodeRows renders arena nodes as table rows: id, label, op, operands, data, grad.
func nodeRows(nodes []engine.Node) [][]string {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		operands := make([]string, len(n.Operands))
		for j, id := range n.Operands {
			operands[j] = strconv.Itoa(int(id))
		}
		rows[i] = []string{
			strconv.Itoa(int(n.ID)),
			n.Label,
			n.Op.String(),
			strings.Join(operands, ","),
			formatFloat(n.Data),
			formatFloat(n.Grad),
		}
	}
	return rows
}

var nodeHeaders = []string{"id", "label", "op", "operands", "data", "grad"}
