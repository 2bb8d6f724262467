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

// Leaf inserts an input node and returns its id.
//
// # Description
//
// The node has no operation, no operands and a zero gradient. Leaf never
// fails.
//
// # Inputs
//
//   - label: Human-readable name, used in derived labels and drawings.
//   - data: The input value.
//
// # Outputs
//
//   - NodeID: The id of the new node.
func (g *Graph) Leaf(label string, data float64) NodeID {
	return g.push(Node{
		Label: label,
		Data:  data,
		Op:    OpNone,
	})
}

// Get returns a copy of the node with the given id.
//
// # Outputs
//
//   - Node: A snapshot of the node. Mutating it does not affect the graph.
//   - error: *UnknownNodeError if id was never assigned by this graph.
func (g *Graph) Get(id NodeID) (Node, error) {
	n, err := g.node(id)
	if err != nil {
		return Node{}, err
	}
	out := *n
	out.Operands = append([]NodeID(nil), n.Operands...)
	return out, nil
}

// SetLabel renames a node. Labels of nodes derived earlier are not updated.
func (g *Graph) SetLabel(id NodeID, label string) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.Label = label
	return nil
}

// SetData overwrites a node's value, e.g. for a gradient descent step.
//
// Derived nodes are not recomputed; rebuild the expression to see the effect.
func (g *Graph) SetData(id NodeID, data float64) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.Data = data
	return nil
}

// SetGrad overwrites a node's accumulated gradient.
func (g *Graph) SetGrad(id NodeID, grad float64) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.Grad = grad
	return nil
}

// Nodes returns copies of all nodes in id order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i := range g.nodes {
		out[i] = g.nodes[i]
		out[i].Operands = append([]NodeID(nil), g.nodes[i].Operands...)
	}
	return out
}

// node returns a pointer into the arena. The pointer is invalidated by the
// next push, so it must not be held across builder calls.
func (g *Graph) node(id NodeID) (*Node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, &UnknownNodeError{ID: id, Len: len(g.nodes)}
	}
	return &g.nodes[id], nil
}

// push appends n, assigning the next id.
func (g *Graph) push(n Node) NodeID {
	n.ID = NodeID(len(g.nodes))
	n.Grad = 0
	g.nodes = append(g.nodes, n)
	return n.ID
}
