//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides a checkpointed graph executor whose nodes can
// suspend a session to wait for external input and later resume it.
package graph

import (
	"context"
	"sort"
)

// End is the virtual terminal node. An edge pointing to End completes the
// session.
const End = "__end__"

// NodeFunc is the logic of a node. It receives a private copy of the session
// state and, when the session is being resumed at this node, the resume
// command supplied by the caller (nil otherwise).
//
// It returns either Update(...) to merge fields into the state and move on,
// or Suspend(...) to pause the session. A node that suspends is re-entered
// from its beginning on resume, so it must not cause external side effects
// before deciding to suspend.
type NodeFunc func(ctx context.Context, state State, resume *ResumeCommand) (NodeResult, error)

// Node represents a node in the graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
}

// Edge represents a transition between two nodes. To may be End.
type Edge struct {
	From string
	To   string
}

// Graph is the compiled, read-only form of a StateGraph. It holds no mutable
// state so one instance can serve any number of concurrent sessions.
type Graph struct {
	schema     *StateSchema
	nodes      map[string]*Node
	next       map[string]string
	entryPoint string
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Next returns the successor of a node. The successor may be End.
func (g *Graph) Next(id string) (string, bool) {
	to, ok := g.next[id]
	return to, ok
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// Schema returns the state schema. A nil schema means untyped state.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// NodeIDs returns the node ids in lexical order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns every edge of the graph ordered by source id.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.next))
	for _, from := range g.NodeIDs() {
		if to, ok := g.next[from]; ok {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}
