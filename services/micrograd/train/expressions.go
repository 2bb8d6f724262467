// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package train

import (
	"log/slog"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
)

// NeuronBias is the bias that puts the demo neuron's pre-activation at
// atanh(1/sqrt(2)) + 6, so its output is 1/sqrt(2) and every local
// derivative comes out to a round number.
const NeuronBias = 6.8813735870195432

// ReferenceExpression builds L = (a*b + c) * f with a=2, b=-3, c=10, f=-2
// and returns the graph and L. Intermediate nodes are labelled e = a*b and
// d = e + c.
func ReferenceExpression(logger *slog.Logger) (*engine.Graph, engine.NodeID, error) {
	g := engine.NewGraph(engine.WithLogger(logger))

	a := g.Leaf("a", 2.0)
	b := g.Leaf("b", -3.0)
	c := g.Leaf("c", 10.0)

	e, err := g.Mul(a, b)
	if err != nil {
		return nil, 0, err
	}
	if err := g.SetLabel(e, "e"); err != nil {
		return nil, 0, err
	}

	d, err := g.Add(e, c)
	if err != nil {
		return nil, 0, err
	}
	if err := g.SetLabel(d, "d"); err != nil {
		return nil, 0, err
	}

	f := g.Leaf("f", -2.0)
	l, err := g.Mul(d, f)
	if err != nil {
		return nil, 0, err
	}
	if err := g.SetLabel(l, "L"); err != nil {
		return nil, 0, err
	}
	return g, l, nil
}

// NeuronDemo builds the single two-input neuron o = tanh(x1*w1 + x2*w2 + b)
// with x1=2, x2=0, w1=-3, w2=1 and b=NeuronBias, and returns the graph and o.
// After a backward pass from o: x1.grad=-1.5, w1.grad=1, x2.grad=0.5,
// w2.grad=0 and b.grad=0.5.
func NeuronDemo(logger *slog.Logger) (*engine.Graph, engine.NodeID, error) {
	g := engine.NewGraph(engine.WithLogger(logger))

	x1 := g.Leaf("x1", 2.0)
	x2 := g.Leaf("x2", 0.0)
	w1 := g.Leaf("w1", -3.0)
	w2 := g.Leaf("w2", 1.0)
	b := g.Leaf("b", NeuronBias)

	x1w1, err := g.Mul(x1, w1)
	if err != nil {
		return nil, 0, err
	}
	x2w2, err := g.Mul(x2, w2)
	if err != nil {
		return nil, 0, err
	}
	sum, err := g.Add(x1w1, x2w2)
	if err != nil {
		return nil, 0, err
	}
	n, err := g.Add(sum, b)
	if err != nil {
		return nil, 0, err
	}
	o, err := g.Tanh(n)
	if err != nil {
		return nil, 0, err
	}

	for id, label := range map[engine.NodeID]string{
		x1w1: "x1*w1",
		x2w2: "x2*w2",
		sum:  "x1*w1 + x2*w2",
		n:    "n",
		o:    "o",
	} {
		if err := g.SetLabel(id, label); err != nil {
			return nil, 0, err
		}
	}
	return g, o, nil
}
