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
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
)

// ErrInvalidShape is returned for a model or input with inconsistent sizes.
var ErrInvalidShape = errors.New("invalid shape")

// Neuron is a weighted sum followed by tanh.
type Neuron struct {
	W []float64 `json:"w"`
	B float64   `json:"b"`
}

// Layer is a set of neurons sharing the same inputs.
type Layer struct {
	Neurons []Neuron `json:"neurons"`
}

// MLP is a multi-layer perceptron of tanh neurons.
//
// Parameters are plain float64 values. They only become graph nodes while
// a step is being built, so a model outlives any single engine.Graph.
//
// # Thread Safety
//
// Not safe for concurrent use. Each training run owns its model.
type MLP struct {
	Nin    int     `json:"nin"`
	Layers []Layer `json:"layers"`
}

// NewMLP creates a model with nin inputs and one layer per entry of sizes.
// Weights and biases are drawn uniformly from [-1, 1).
func NewMLP(nin int, sizes []int, rng *rand.Rand) (*MLP, error) {
	if nin <= 0 || len(sizes) == 0 {
		return nil, fmt.Errorf("%w: nin=%d layers=%v", ErrInvalidShape, nin, sizes)
	}
	if rng == nil {
		return nil, errors.New("rng must not be nil")
	}

	m := &MLP{Nin: nin, Layers: make([]Layer, len(sizes))}
	in := nin
	for li, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("%w: layer %d has size %d", ErrInvalidShape, li, size)
		}
		layer := Layer{Neurons: make([]Neuron, size)}
		for ni := range layer.Neurons {
			w := make([]float64, in)
			for i := range w {
				w[i] = uniform(rng)
			}
			layer.Neurons[ni] = Neuron{W: w, B: uniform(rng)}
		}
		m.Layers[li] = layer
		in = size
	}
	return m, nil
}

func uniform(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

// NumParams returns the number of weights and biases.
func (m *MLP) NumParams() int {
	n := 0
	for _, l := range m.Layers {
		for _, neuron := range l.Neurons {
			n += len(neuron.W) + 1
		}
	}
	return n
}

// Nout returns the width of the last layer.
func (m *MLP) Nout() int {
	return len(m.Layers[len(m.Layers)-1].Neurons)
}

// paramPtrs returns pointers to every parameter in a fixed order: for each
// layer and neuron, the weights then the bias. The order matches the leaves
// created by buildParams.
func (m *MLP) paramPtrs() []*float64 {
	ptrs := make([]*float64, 0, m.NumParams())
	for li := range m.Layers {
		for ni := range m.Layers[li].Neurons {
			neuron := &m.Layers[li].Neurons[ni]
			for wi := range neuron.W {
				ptrs = append(ptrs, &neuron.W[wi])
			}
			ptrs = append(ptrs, &neuron.B)
		}
	}
	return ptrs
}

// Params returns a copy of all parameters in paramPtrs order.
func (m *MLP) Params() []float64 {
	ptrs := m.paramPtrs()
	out := make([]float64, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// paramLeaves holds the graph ids of one step's parameter leaves.
type paramLeaves struct {
	ids []engine.NodeID

	// weights[layer][neuron][input] and biases[layer][neuron] index into ids.
	weights [][][]engine.NodeID
	biases  [][]engine.NodeID
}

// buildParams creates one leaf per parameter, labelled "L<layer>.N<neuron>.w<i>"
// and "L<layer>.N<neuron>.b".
func (m *MLP) buildParams(g *engine.Graph) *paramLeaves {
	p := &paramLeaves{
		ids:     make([]engine.NodeID, 0, m.NumParams()),
		weights: make([][][]engine.NodeID, len(m.Layers)),
		biases:  make([][]engine.NodeID, len(m.Layers)),
	}
	for li, l := range m.Layers {
		p.weights[li] = make([][]engine.NodeID, len(l.Neurons))
		p.biases[li] = make([]engine.NodeID, len(l.Neurons))
		for ni, neuron := range l.Neurons {
			ws := make([]engine.NodeID, len(neuron.W))
			for wi, w := range neuron.W {
				ws[wi] = g.Leaf(fmt.Sprintf("L%d.N%d.w%d", li, ni, wi), w)
				p.ids = append(p.ids, ws[wi])
			}
			b := g.Leaf(fmt.Sprintf("L%d.N%d.b", li, ni), neuron.B)
			p.ids = append(p.ids, b)
			p.weights[li][ni] = ws
			p.biases[li][ni] = b
		}
	}
	return p
}

// forward builds the network output for inputs x. prefix distinguishes the
// nodes of different samples sharing one graph, so the exported view keeps
// them apart.
func (m *MLP) forward(g *engine.Graph, p *paramLeaves, x []engine.NodeID, prefix string) ([]engine.NodeID, error) {
	if len(x) != m.Nin {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrInvalidShape, len(x), m.Nin)
	}

	in := x
	for li, l := range m.Layers {
		out := make([]engine.NodeID, len(l.Neurons))
		for ni := range l.Neurons {
			act := p.biases[li][ni]
			for wi, w := range p.weights[li][ni] {
				wx, err := g.Mul(w, in[wi])
				if err != nil {
					return nil, err
				}
				if act, err = g.Add(act, wx); err != nil {
					return nil, err
				}
			}
			name := fmt.Sprintf("%sL%d.N%d", prefix, li, ni)
			if err := g.SetLabel(act, name+".act"); err != nil {
				return nil, err
			}
			o, err := g.Tanh(act)
			if err != nil {
				return nil, err
			}
			if err := g.SetLabel(o, name+".out"); err != nil {
				return nil, err
			}
			out[ni] = o
		}
		in = out
	}
	return in, nil
}

// Predict runs the model on one input in a throwaway graph.
func (m *MLP) Predict(x []float64) ([]float64, error) {
	g := engine.NewGraph(engine.WithCapacity(m.NumParams() * 4))
	params := m.buildParams(g)

	xs := make([]engine.NodeID, len(x))
	for i, v := range x {
		xs[i] = g.Leaf(fmt.Sprintf("x%d", i), v)
	}
	out, err := m.forward(g, params, xs, "")
	if err != nil {
		return nil, err
	}

	ys := make([]float64, len(out))
	for i, id := range out {
		n, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		ys[i] = n.Data
	}
	return ys, nil
}
