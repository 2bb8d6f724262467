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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// View is a read-only node/edge projection of the sub-graph rooted at Root.
//
// Nodes are keyed by label: two arena nodes sharing a label collapse into one
// entry (the first one discovered wins). Edges point from operand to consumer.
type View struct {
	GraphID string     `json:"graph_id"`
	Root    string     `json:"root"`
	Nodes   []ViewNode `json:"nodes"`
	Edges   []ViewEdge `json:"edges"`
}

// ViewNode is one value in a View.
type ViewNode struct {
	Label string  `json:"label"`
	Op    string  `json:"op,omitempty"`
	Data  float64 `json:"data"`
	Grad  float64 `json:"grad"`

	// Annotation is "{ label | data 0.0000 | grad 0.0000 }".
	Annotation string `json:"annotation"`
}

// ViewEdge connects an operand (From) to the node consuming it (To).
// Op is the consumer's operation.
type ViewEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Op   string `json:"op"`
}

type edgeKey struct {
	from string
	to   string
}

// Export builds a View of every node reachable from root.
//
// # Description
//
// Walks the graph with an explicit worklist, visiting each arena node once.
// Node entries are deduplicated by label and edges by the pair
// (operand label, consumer label), so the result is independent of how many
// paths reach a node. The graph is not modified.
//
// # Inputs
//
//   - ctx: Context carrying the trace span parent. Must not be nil.
//   - root: The node to project from.
//
// # Outputs
//
//   - *View: The projection, nodes in discovery order.
//   - error: *UnknownNodeError if root is invalid.
func (g *Graph) Export(ctx context.Context, root NodeID) (*View, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	ctx, span := startExportSpan(ctx, g.id, root)
	defer span.End()
	start := time.Now()

	rootNode, err := g.node(root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown root")
		return nil, fmt.Errorf("export: %w", err)
	}

	view := &View{
		GraphID: g.id,
		Root:    rootNode.Label,
		Nodes:   make([]ViewNode, 0, 16),
		Edges:   make([]ViewEdge, 0, 16),
	}

	visited := make([]bool, int(root)+1)
	seenLabels := make(map[string]bool)
	seenEdges := make(map[edgeKey]bool)

	stack := []NodeID{root}
	visited[root] = true

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := g.nodes[id]

		if !seenLabels[n.Label] {
			seenLabels[n.Label] = true
			view.Nodes = append(view.Nodes, ViewNode{
				Label:      n.Label,
				Op:         n.Op.String(),
				Data:       n.Data,
				Grad:       n.Grad,
				Annotation: n.String(),
			})
		}

		for _, operand := range n.Operands {
			child := g.nodes[operand]
			key := edgeKey{from: child.Label, to: n.Label}
			if !seenEdges[key] {
				seenEdges[key] = true
				view.Edges = append(view.Edges, ViewEdge{
					From: child.Label,
					To:   n.Label,
					Op:   n.Op.String(),
				})
			}
			if !visited[operand] {
				visited[operand] = true
				stack = append(stack, operand)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("export.node_count", len(view.Nodes)),
		attribute.Int("export.edge_count", len(view.Edges)),
	)
	recordExportMetrics(ctx, time.Since(start))
	return view, nil
}

// Node returns the entry with the given label.
func (v *View) Node(label string) (ViewNode, bool) {
	for _, n := range v.Nodes {
		if n.Label == label {
			return n, true
		}
	}
	return ViewNode{}, false
}
