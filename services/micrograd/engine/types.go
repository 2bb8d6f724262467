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
	"log/slog"

	"github.com/google/uuid"
)

// DefaultCapacity is the initial arena capacity of a new graph.
const DefaultCapacity = 64

// NodeID is the arena index of a node.
type NodeID int

// Op identifies how a node's Data was derived.
type Op int

const (
	// OpNone marks a leaf: an independent input value with no operands.
	OpNone Op = iota

	// OpAdd is the sum of two operands.
	OpAdd

	// OpMul is the product of two operands.
	OpMul

	// OpTanh is the hyperbolic tangent of one operand.
	OpTanh
)

// String returns the symbol used when labelling and drawing the operation.
func (o Op) String() string {
	switch o {
	case OpNone:
		return ""
	case OpAdd:
		return "+"
	case OpMul:
		return "*"
	case OpTanh:
		return "tanh"
	default:
		return "unknown"
	}
}

// Arity returns the number of operands the operation takes.
func (o Op) Arity() int {
	switch o {
	case OpAdd, OpMul:
		return 2
	case OpTanh:
		return 1
	default:
		return 0
	}
}

// Node is one scalar computation step.
//
// Grad holds the partial derivative of the most recent backward root with
// respect to this node. It starts at 0 and is accumulated, never overwritten,
// by Backward.
type Node struct {
	ID       NodeID
	Label    string
	Data     float64
	Grad     float64
	Op       Op
	Operands []NodeID
}

// IsLeaf reports whether the node has no operands.
func (n Node) IsLeaf() bool {
	return len(n.Operands) == 0
}

// String renders the node the way it is annotated in graph drawings.
func (n Node) String() string {
	return fmt.Sprintf("{ %s | data %.4f | grad %.4f }", n.Label, n.Data, n.Grad)
}

// GraphOptions configures a Graph.
type GraphOptions struct {
	// Capacity is the initial arena capacity.
	// Default: DefaultCapacity
	Capacity int

	// Logger receives debug events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// GraphOption is a functional option for configuring a Graph.
type GraphOption func(*GraphOptions)

// WithCapacity presizes the arena.
func WithCapacity(n int) GraphOption {
	return func(o *GraphOptions) {
		o.Capacity = n
	}
}

// WithLogger sets the logger used for debug events.
func WithLogger(l *slog.Logger) GraphOption {
	return func(o *GraphOptions) {
		o.Logger = l
	}
}

// Graph is the arena owning every node of one computation.
//
// # Description
//
// Nodes are stored by value in a slice and addressed by NodeID. Builders
// append, nothing removes. Lookups with an id that was never assigned return
// an *UnknownNodeError instead of panicking.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Graph struct {
	id     string
	nodes  []Node
	logger *slog.Logger
}

// NewGraph creates an empty graph with a fresh identity.
func NewGraph(opts ...GraphOption) *Graph {
	options := GraphOptions{Capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Capacity < 0 {
		options.Capacity = 0
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Graph{
		id:     id,
		nodes:  make([]Node, 0, options.Capacity),
		logger: logger.With("graph_id", id),
	}
}

// ID returns the graph's unique identity.
func (g *Graph) ID() string {
	return g.id
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	return len(g.nodes)
}
