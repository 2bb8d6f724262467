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

// TopologicalOrder returns every node reachable from root, operands before
// the nodes that consume them. root is always last.
//
// # Description
//
// Uses an explicit stack instead of recursion, so the depth of the graph is
// bounded by memory rather than by the goroutine stack. Each reachable node
// appears exactly once regardless of how many paths lead to it.
//
// # Outputs
//
//   - []NodeID: Post-order of the sub-graph rooted at root.
//   - error: *UnknownNodeError if root is invalid.
func (g *Graph) TopologicalOrder(root NodeID) ([]NodeID, error) {
	if _, err := g.node(root); err != nil {
		return nil, err
	}
	return g.postOrder(root), nil
}

// postOrder assumes root is valid. Operands always have smaller ids than
// their consumer, so a visited slice of root+1 entries covers the sub-graph.
func (g *Graph) postOrder(root NodeID) []NodeID {
	type frame struct {
		id   NodeID
		next int
	}

	visited := make([]bool, int(root)+1)
	visited[root] = true
	order := make([]NodeID, 0, 16)
	stack := []frame{{id: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		operands := g.nodes[top.id].Operands
		if top.next < len(operands) {
			child := operands[top.next]
			top.next++
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{id: child})
			}
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	return order
}

// Backward computes the gradient of root with respect to every node
// reachable from it.
//
// # Description
//
// The root's gradient is seeded to 1.0. Nodes are then processed once each
// in reverse topological order and every operand edge receives its chain
// rule contribution exactly once:
//
//	Add:  operand.grad += node.grad
//	Mul:  operand.grad += node.grad * other.data
//	Tanh: operand.grad += node.grad * (1 - node.data^2)
//
// Contributions of this pass are collected in a scratch buffer and then
// added onto the existing Grad values. Calling Backward twice without
// ZeroGrad therefore doubles every non-root gradient. Resetting gradients
// between passes is the caller's responsibility.
//
// NaN and Inf values propagate as data; they are never reported as errors.
//
// # Inputs
//
//   - ctx: Context carrying the trace span parent. Must not be nil.
//   - root: The output node to differentiate.
//
// # Outputs
//
//   - error: *UnknownNodeError if root is invalid. Gradients are untouched.
func (g *Graph) Backward(ctx context.Context, root NodeID) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	ctx, span := startBackwardSpan(ctx, g.id, root)
	defer span.End()
	start := time.Now()

	if _, err := g.node(root); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown root")
		return fmt.Errorf("backward: %w", err)
	}

	order := g.postOrder(root)

	adj := make([]float64, int(root)+1)
	adj[root] = 1.0

	for i := len(order) - 1; i >= 0; i-- {
		n := &g.nodes[order[i]]
		grad := adj[n.ID]
		switch n.Op {
		case OpAdd:
			adj[n.Operands[0]] += grad
			adj[n.Operands[1]] += grad
		case OpMul:
			left, right := n.Operands[0], n.Operands[1]
			adj[left] += grad * g.nodes[right].Data
			adj[right] += grad * g.nodes[left].Data
		case OpTanh:
			adj[n.Operands[0]] += grad * (1 - n.Data*n.Data)
		case OpNone:
		}
	}

	for _, id := range order {
		if id == root {
			g.nodes[id].Grad = 1.0
			continue
		}
		g.nodes[id].Grad += adj[id]
	}

	span.SetAttributes(attribute.Int("engine.nodes_visited", len(order)))
	recordBackwardMetrics(ctx, time.Since(start), len(order))
	g.logger.Debug("backward pass complete",
		"root", int(root),
		"nodes_visited", len(order),
	)
	return nil
}

// ZeroGrad resets the gradient of every node in the graph to 0.
func (g *Graph) ZeroGrad() {
	for i := range g.nodes {
		g.nodes[i].Grad = 0
	}
}

// ZeroGradFrom resets the gradient of every node reachable from root.
func (g *Graph) ZeroGradFrom(root NodeID) error {
	if _, err := g.node(root); err != nil {
		return fmt.Errorf("zero grad: %w", err)
	}
	for _, id := range g.postOrder(root) {
		g.nodes[id].Grad = 0
	}
	return nil
}
