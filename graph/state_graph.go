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
	"errors"
	"fmt"
	"sort"
)

// StateGraph builds a Graph. It is the primary public API for declaring
// nodes and edges.
//
// Example usage:
//
//	sg := NewStateGraph(schema)
//	_ = sg.AddNode("generator", generate)
//	_ = sg.AddNode("human", approve)
//	_ = sg.SetEntryPoint("generator")
//	_ = sg.AddEdge("generator", "human")
//	_ = sg.SetFinishPoint("human")
//	g, err := sg.Compile()
//
// Every failed call is also remembered, so Validate and Compile report all
// construction problems at once even if the individual errors were ignored.
//
// A StateGraph is not safe for concurrent use; the compiled Graph is.
type StateGraph struct {
	schema     *StateSchema
	nodes      map[string]*Node
	edges      map[string][]string
	entryPoint string
	errs       []error
}

// NewStateGraph creates a new graph builder with the given state schema.
// Pass nil for untyped state.
func NewStateGraph(schema *StateSchema) *StateGraph {
	return &StateGraph{
		schema: schema,
		nodes:  make(map[string]*Node),
		edges:  make(map[string][]string),
	}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// AddNode registers a node. It fails with *DuplicateNodeError when the id is
// taken.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) error {
	switch {
	case id == "":
		return sg.fail(errors.New("node id cannot be empty"))
	case id == End:
		return sg.fail(fmt.Errorf("node id %q is reserved", End))
	case function == nil:
		return sg.fail(fmt.Errorf("node %q has a nil function", id))
	}
	if _, exists := sg.nodes[id]; exists {
		return sg.fail(&DuplicateNodeError{NodeID: id})
	}
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.nodes[id] = node
	return nil
}

// AddEdge registers a transition. It fails with *UnknownNodeError when an
// endpoint other than End was not registered.
func (sg *StateGraph) AddEdge(from, to string) error {
	var errs []error
	if _, ok := sg.nodes[from]; !ok {
		errs = append(errs, &UnknownNodeError{NodeID: from, Role: "edge source"})
	}
	if _, ok := sg.nodes[to]; !ok && to != End {
		errs = append(errs, &UnknownNodeError{NodeID: to, Role: "edge target"})
	}
	if len(errs) > 0 {
		for _, err := range errs {
			sg.fail(err)
		}
		return errors.Join(errs...)
	}
	sg.edges[from] = append(sg.edges[from], to)
	return nil
}

// SetEntryPoint sets the entry point of the graph.
func (sg *StateGraph) SetEntryPoint(nodeID string) error {
	if _, ok := sg.nodes[nodeID]; !ok {
		return sg.fail(&UnknownNodeError{NodeID: nodeID, Role: "entry point"})
	}
	sg.entryPoint = nodeID
	return nil
}

// SetFinishPoint adds an edge from the node to End.
func (sg *StateGraph) SetFinishPoint(nodeID string) error {
	return sg.AddEdge(nodeID, End)
}

// Validate checks the graph invariants and returns a *GraphIntegrityError
// listing every violation, including failed construction calls.
func (sg *StateGraph) Validate() error {
	violations := append([]error(nil), sg.errs...)

	switch {
	case sg.entryPoint == "":
		violations = append(violations, errors.New("graph has no entry point"))
	case sg.nodes[sg.entryPoint] == nil:
		violations = append(violations, &UnknownNodeError{NodeID: sg.entryPoint, Role: "entry point"})
	}

	ids := make([]string, 0, len(sg.nodes))
	for id := range sg.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		switch n := len(sg.edges[id]); {
		case n == 0:
			violations = append(violations, fmt.Errorf("node %q has no outgoing edge", id))
		case n > 1:
			violations = append(violations,
				fmt.Errorf("node %q has %d outgoing edges, only one is supported", id, n))
		}
	}

	if entry := sg.entryPoint; entry != "" && sg.nodes[entry] != nil {
		if err := sg.checkTerminalReachable(entry); err != nil {
			violations = append(violations, err)
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &GraphIntegrityError{Violations: violations}
}

// checkTerminalReachable follows the first outgoing edge from the entry
// point. With one successor per node the walk is the only path.
func (sg *StateGraph) checkTerminalReachable(entry string) error {
	seen := make(map[string]bool)
	for cur := entry; ; {
		if cur == End {
			return nil
		}
		if seen[cur] {
			return fmt.Errorf("%s is not reachable from entry point %q: cycle through %q",
				End, entry, cur)
		}
		seen[cur] = true
		next := sg.edges[cur]
		if len(next) == 0 {
			return fmt.Errorf("%s is not reachable from entry point %q: path stops at %q",
				End, entry, cur)
		}
		cur = next[0]
	}
}

// Compile validates the graph and freezes it into a read-only Graph.
func (sg *StateGraph) Compile() (*Graph, error) {
	if err := sg.Validate(); err != nil {
		return nil, err
	}
	g := &Graph{
		schema:     sg.schema,
		nodes:      make(map[string]*Node, len(sg.nodes)),
		next:       make(map[string]string, len(sg.edges)),
		entryPoint: sg.entryPoint,
	}
	for id, n := range sg.nodes {
		node := *n
		g.nodes[id] = &node
	}
	for from, to := range sg.edges {
		g.next[from] = to[0]
	}
	return g, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (sg *StateGraph) fail(err error) error {
	sg.errs = append(sg.errs, err)
	return err
}
