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
	"fmt"
	"math"
)

// Add creates a node holding data(a) + data(b).
//
// # Description
//
// The value is computed eagerly. The new node is labelled "(a + b)" from its
// operands' current labels. Neither operand is modified.
//
// # Inputs
//
//   - a, b: Operand ids. They may be the same id.
//
// # Outputs
//
//   - NodeID: The id of the sum.
//   - error: *UnknownNodeError if either operand is invalid. No node is created.
func (g *Graph) Add(a, b NodeID) (NodeID, error) {
	return g.binary(OpAdd, a, b)
}

// Mul creates a node holding data(a) * data(b), labelled "(a * b)".
//
// Same contract as Add.
func (g *Graph) Mul(a, b NodeID) (NodeID, error) {
	return g.binary(OpMul, a, b)
}

// Tanh creates a node holding tanh(data(a)), labelled "tanh(a)".
func (g *Graph) Tanh(a NodeID) (NodeID, error) {
	x, err := g.node(a)
	if err != nil {
		return 0, fmt.Errorf("tanh: %w", err)
	}
	return g.push(Node{
		Label:    fmt.Sprintf("tanh(%s)", x.Label),
		Data:     tanh(x.Data),
		Op:       OpTanh,
		Operands: []NodeID{a},
	}), nil
}

func (g *Graph) binary(op Op, a, b NodeID) (NodeID, error) {
	x, err := g.node(a)
	if err != nil {
		return 0, fmt.Errorf("%s: left operand: %w", opName(op), err)
	}
	y, err := g.node(b)
	if err != nil {
		return 0, fmt.Errorf("%s: right operand: %w", opName(op), err)
	}

	var data float64
	switch op {
	case OpAdd:
		data = x.Data + y.Data
	case OpMul:
		data = x.Data * y.Data
	}

	return g.push(Node{
		Label:    fmt.Sprintf("(%s %s %s)", x.Label, op, y.Label),
		Data:     data,
		Op:       op,
		Operands: []NodeID{a, b},
	}), nil
}

// tanh evaluates (e^2x - 1) / (e^2x + 1). When e^2x overflows the quotient
// would be Inf/Inf, so the limit is returned instead. NaN stays NaN.
func tanh(x float64) float64 {
	e := math.Exp(2 * x)
	if math.IsInf(e, 1) {
		return 1
	}
	return (e - 1) / (e + 1)
}

func opName(op Op) string {
	switch op {
	case OpAdd:
		return "add"
	case OpMul:
		return "mul"
	case OpTanh:
		return "tanh"
	default:
		return "op"
	}
}
