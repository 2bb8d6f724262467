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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_ReferenceExpression(t *testing.T) {
	ctx := context.Background()
	g, ids := referenceExpression(t)
	require.NoError(t, g.Backward(ctx, ids["L"]))

	view, err := g.Export(ctx, ids["L"])
	require.NoError(t, err)

	assert.Equal(t, g.ID(), view.GraphID)
	assert.Equal(t, "L", view.Root)
	assert.Len(t, view.Nodes, 7)
	assert.Len(t, view.Edges, 6)

	l, ok := view.Node("L")
	require.True(t, ok)
	assert.Equal(t, "*", l.Op)
	assert.Equal(t, "{ L | data -8.0000 | grad 1.0000 }", l.Annotation)

	a, ok := view.Node("a")
	require.True(t, ok)
	assert.Equal(t, "", a.Op)
	assert.Equal(t, 6.0, a.Grad)

	assert.Contains(t, view.Edges, ViewEdge{From: "d", To: "L", Op: "*"})
	assert.Contains(t, view.Edges, ViewEdge{From: "e", To: "d", Op: "+"})
	assert.Contains(t, view.Edges, ViewEdge{From: "a", To: "e", Op: "*"})
}

func TestExport_DeduplicatesNodesAndEdges(t *testing.T) {
	g := NewGraph()
	a := g.Leaf("a", 3)
	b, err := g.Mul(a, a)
	require.NoError(t, err)
	c, err := g.Add(b, a)
	require.NoError(t, err)

	// Two distinct arena nodes sharing one label collapse into one entry.
	d := g.Leaf("a", 100)
	out, err := g.Add(c, d)
	require.NoError(t, err)

	view, err := g.Export(context.Background(), out)
	require.NoError(t, err)

	labels := make(map[string]int)
	for _, n := range view.Nodes {
		labels[n.Label]++
	}
	for label, count := range labels {
		assert.Equal(t, 1, count, label)
	}
	assert.Len(t, view.Nodes, 4)

	type pair struct{ from, to string }
	edges := make(map[pair]int)
	for _, e := range view.Edges {
		edges[pair{e.From, e.To}]++
	}
	for p, count := range edges {
		assert.Equal(t, 1, count, "%s -> %s", p.from, p.to)
	}
	// a->(a * a), (a * a)->((a * a) + a), a->((a * a) + a), ((a * a) + a)->out, a->out
	assert.Len(t, view.Edges, 5)
}

func TestExport_DoesNotMutate(t *testing.T) {
	g, ids := referenceExpression(t)
	before := g.Nodes()

	_, err := g.Export(context.Background(), ids["L"])
	require.NoError(t, err)

	assert.Equal(t, before, g.Nodes())
}

func TestExport_LeafRoot(t *testing.T) {
	g := NewGraph()
	a := g.Leaf("a", 1)

	view, err := g.Export(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, view.Nodes, 1)
	assert.Empty(t, view.Edges)
}

func TestExport_UnknownRoot(t *testing.T) {
	g := NewGraph()
	_, err := g.Export(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestView_Node_Missing(t *testing.T) {
	v := &View{}
	_, ok := v.Node("nope")
	assert.False(t, ok)
}
