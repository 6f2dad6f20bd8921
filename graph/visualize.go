//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"io"
	"strings"
)

const (
	// RankDirLR sets a left-to-right layout in Graphviz.
	RankDirLR = "LR"
	// RankDirTB sets a top-to-bottom layout in Graphviz.
	RankDirTB = "TB"
)

const (
	colorNodeFill     = "#e3f2fd"
	colorNodeBorder   = "#2196f3"
	colorCursorFill   = "#fff3e0"
	colorCursorBorder = "#ff9800"
	colorEndFill      = "#ffe1e1"
	colorEndBorder    = "#f44336"

	entryPeripheries = 2
)

// VizOptions configures DOT export.
type VizOptions struct {
	// RankDir sets DOT graph direction: "LR" or "TB".
	RankDir string
	// GraphLabel optionally labels the whole graph.
	GraphLabel string
	// Cursor highlights a node, typically the one a session is suspended at.
	Cursor string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets DOT graph direction. Valid values: "LR", "TB".
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithGraphLabel sets an optional label for the graph.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

// WithCursor highlights the given node.
func WithCursor(nodeID string) VizOption {
	return func(o *VizOptions) { o.Cursor = nodeID }
}

// DOT returns a Graphviz DOT representation of the graph. The entry point is
// drawn with a double border.
func (g *Graph) DOT(opts ...VizOption) string {
	o := &VizOptions{RankDir: RankDirLR}
	for _, fn := range opts {
		fn(o)
	}

	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", o.RankDir)
	b.WriteString("  node [fontname=\"Helvetica\", shape=box, style=filled];\n")
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "  label=\"%s\";\n  labelloc=t;\n", escapeLabel(o.GraphLabel))
	}
	fmt.Fprintf(&b, "  \"%s\" [label=\"end\", shape=oval, fillcolor=\"%s\", color=\"%s\"];\n",
		escapeLabel(End), colorEndFill, colorEndBorder)
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		fill, border := colorNodeFill, colorNodeBorder
		if id == o.Cursor {
			fill, border = colorCursorFill, colorCursorBorder
		}
		fmt.Fprintf(&b, "  \"%s\" [label=\"%s\", fillcolor=\"%s\", color=\"%s\"",
			escapeLabel(id), escapeLabel(n.Name), fill, border)
		if id == g.entryPoint {
			fmt.Fprintf(&b, ", peripheries=%d", entryPeripheries)
		}
		b.WriteString("];\n")
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", escapeLabel(e.From), escapeLabel(e.To))
	}
	b.WriteString("}\n")
	return b.String()
}

// WriteDOT writes the DOT representation to the provided writer.
func (g *Graph) WriteDOT(w io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(w, g.DOT(opts...))
	return err
}

// escapeLabel escapes quoted DOT strings.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
