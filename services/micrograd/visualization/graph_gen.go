// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package visualization renders engine views as text graph descriptions.
//
// The output is meant for an external renderer (Graphviz, Mermaid, a D3
// page); nothing here draws images or spawns processes.
package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
)

// OutputFormat specifies the visualization output format.
type OutputFormat string

const (
	FormatMermaid OutputFormat = "mermaid"
	FormatJSON    OutputFormat = "json"
	FormatDOT     OutputFormat = "dot"
)

// ErrUnsupportedFormat is returned for an unknown OutputFormat.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat converts a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMermaid, FormatJSON, FormatDOT:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// GraphGenerator generates text representations of computation graphs.
//
// # Description
//
// Value nodes are drawn as records "{ label | data | grad }". Every derived
// value gets a small operation node placed between its operands and itself,
// so an edge operand -> value is drawn as operand -> op -> value.
//
// # Thread Safety
//
// Safe for concurrent use.
type GraphGenerator struct {
	options GraphOptions
}

// GraphOptions configures graph generation.
type GraphOptions struct {
	// MaxNodes limits the number of value nodes in the output.
	// Default: 500
	MaxNodes int

	// Direction is the graph direction (TB, LR, BT, RL).
	// Default: "LR"
	Direction string
}

// DefaultGraphOptions returns sensible defaults.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes:  500,
		Direction: "LR",
	}
}

// NewGraphGenerator creates a new graph generator.
func NewGraphGenerator(opts *GraphOptions) *GraphGenerator {
	if opts == nil {
		defaults := DefaultGraphOptions()
		opts = &defaults
	}
	o := *opts
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultGraphOptions().MaxNodes
	}
	if o.Direction == "" {
		o.Direction = DefaultGraphOptions().Direction
	}
	return &GraphGenerator{options: o}
}

// Generate renders a view in the requested format.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - view: The exported graph.
//   - format: The output format.
//
// # Outputs
//
//   - string: The rendered graph.
//   - error: Non-nil on failure.
func (g *GraphGenerator) Generate(ctx context.Context, view *engine.View, format OutputFormat) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if view == nil {
		return "", fmt.Errorf("view is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch format {
	case FormatMermaid:
		return g.generateMermaid(view), nil
	case FormatJSON:
		return g.generateJSON(view)
	case FormatDOT:
		return g.generateDOT(view), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// visible returns the nodes kept after MaxNodes and the set of their labels.
func (g *GraphGenerator) visible(view *engine.View) ([]engine.ViewNode, map[string]bool, int) {
	nodes := view.Nodes
	hidden := 0
	if len(nodes) > g.options.MaxNodes {
		hidden = len(nodes) - g.options.MaxNodes
		nodes = nodes[:g.options.MaxNodes]
	}
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n.Label] = true
	}
	return nodes, keep, hidden
}

// generateDOT creates a Graphviz DOT format graph.
func (g *GraphGenerator) generateDOT(view *engine.View) string {
	var sb strings.Builder

	sb.WriteString("digraph Computation {\n")
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", g.options.Direction))
	sb.WriteString("    node [shape=record];\n")
	sb.WriteString("\n")

	nodes, keep, hidden := g.visible(view)
	ids := assignIDs(nodes)

	for _, n := range nodes {
		id := ids[n.Label]
		sb.WriteString(fmt.Sprintf("    %s [label=\"{ %s | data %.4f | grad %.4f }\"];\n",
			id, escapeDOTLabel(n.Label), n.Data, n.Grad))
		if n.Op != "" {
			sb.WriteString(fmt.Sprintf("    %s_op [label=\"%s\", shape=circle];\n", id, escapeDOTLabel(n.Op)))
			sb.WriteString(fmt.Sprintf("    %s_op -> %s;\n", id, id))
		}
	}
	if hidden > 0 {
		sb.WriteString(fmt.Sprintf("    overflow [label=\"+%d more\", shape=plaintext];\n", hidden))
	}

	sb.WriteString("\n")

	for _, e := range view.Edges {
		if !keep[e.From] || !keep[e.To] {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -> %s_op;\n", ids[e.From], ids[e.To]))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// generateMermaid creates a Mermaid flowchart diagram.
func (g *GraphGenerator) generateMermaid(view *engine.View) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("flowchart %s\n", g.options.Direction))

	nodes, keep, hidden := g.visible(view)
	ids := assignIDs(nodes)

	for _, n := range nodes {
		id := ids[n.Label]
		sb.WriteString(fmt.Sprintf("    %s[\"%s | data %.4f | grad %.4f\"]\n",
			id, escapeMermaidLabel(n.Label), n.Data, n.Grad))
		if n.Op != "" {
			sb.WriteString(fmt.Sprintf("    %s_op((\"%s\"))\n", id, escapeMermaidLabel(n.Op)))
			sb.WriteString(fmt.Sprintf("    %s_op --> %s\n", id, id))
		}
	}
	if hidden > 0 {
		sb.WriteString(fmt.Sprintf("    more[...%d more]\n", hidden))
	}

	sb.WriteString("\n")
	for _, e := range view.Edges {
		if !keep[e.From] || !keep[e.To] {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s --> %s_op\n", ids[e.From], ids[e.To]))
	}

	return sb.String()
}

// jsonGraph is the D3-style force layout document.
type jsonGraph struct {
	GraphID string     `json:"graph_id"`
	Root    string     `json:"root"`
	Nodes   []jsonNode `json:"nodes"`
	Links   []jsonLink `json:"links"`
}

type jsonNode struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Op         string  `json:"op,omitempty"`
	Data       float64 `json:"data"`
	Grad       float64 `json:"grad"`
	Annotation string  `json:"annotation"`
}

type jsonLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Op     string `json:"op"`
}

// generateJSON creates a D3.js compatible JSON document.
func (g *GraphGenerator) generateJSON(view *engine.View) (string, error) {
	nodes, keep, _ := g.visible(view)
	ids := assignIDs(nodes)

	doc := jsonGraph{
		GraphID: view.GraphID,
		Root:    view.Root,
		Nodes:   make([]jsonNode, 0, len(nodes)),
		Links:   make([]jsonLink, 0, len(view.Edges)),
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, jsonNode{
			ID:         ids[n.Label],
			Label:      n.Label,
			Op:         n.Op,
			Data:       n.Data,
			Grad:       n.Grad,
			Annotation: n.Annotation,
		})
	}
	for _, e := range view.Edges {
		if !keep[e.From] || !keep[e.To] {
			continue
		}
		doc.Links = append(doc.Links, jsonLink{Source: ids[e.From], Target: ids[e.To], Op: e.Op})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal graph: %w", err)
	}
	return string(data) + "\n", nil
}

// Helper functions

// assignIDs maps labels to identifiers safe for DOT and Mermaid. Labels such
// as "(a * b)" cannot be used as ids directly.
func assignIDs(nodes []engine.ViewNode) map[string]string {
	ids := make(map[string]string, len(nodes))
	for i, n := range nodes {
		ids[n.Label] = fmt.Sprintf("n%d", i)
	}
	return ids
}

func escapeMermaidLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "#quot;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

func escapeDOTLabel(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
		"{", "\\{",
		"}", "\\}",
		"|", "\\|",
		"<", "\\<",
		">", "\\>",
	)
	return replacer.Replace(s)
}
