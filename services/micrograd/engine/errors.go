// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements a scalar reverse-mode automatic differentiation
// engine whose nodes live in a single growable arena.
//
// # Ownership Model
//
// A Graph owns every Node it creates. Nodes refer to their operands only by
// NodeID (an index into the arena), never by pointer, so shared
// sub-expressions and long chains need no reference counting:
//   - IDs are assigned monotonically starting at 0 and are never reused
//   - Nodes are never removed; the arena only grows
//   - An operand ID always refers to a node created earlier, so the graph is
//     acyclic by construction
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. A graph belongs to a single caller
// session; independent sessions use independent graphs.
//
// # Lifecycle
//
// A typical training step:
//  1. Create leaves with Leaf() for inputs and parameters
//  2. Build the expression with Add(), Mul(), Tanh()
//  3. Call ZeroGrad() if the graph was differentiated before
//  4. Call Backward() from the output node
//  5. Read Grad and apply the update with SetData()
package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrUnknownNode is returned when a NodeID was never assigned by the
	// graph it is used with.
	ErrUnknownNode = errors.New("unknown node")
)

// UnknownNodeError provides details about an invalid node reference.
type UnknownNodeError struct {
	// ID is the offending node id.
	ID NodeID

	// Len is the number of nodes in the arena when the lookup failed.
	Len int
}

// Error implements the error interface.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %d (graph has %d nodes)", e.ID, e.Len)
}

// Unwrap returns the sentinel error.
func (e *UnknownNodeError) Unwrap() error {
	return ErrUnknownNode
}
