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
	"context"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/log"
)

// NodeCallbackContext provides context information for node callbacks.
type NodeCallbackContext struct {
	// SessionID is the session being executed.
	SessionID string
	// NodeID is the ID of the node being executed.
	NodeID string
	// NodeName is the name of the node being executed.
	NodeName string
	// StepNumber is the session wide step of this node run.
	StepNumber int
	// Resumed is true when the node is re-entered with a resume value.
	Resumed bool
	// ExecutionStartTime is when the node execution started.
	ExecutionStartTime time.Time
}

// BeforeNodeCallback is called before a node is executed.
// Returns (customResult, error).
// - customResult: if not nil, this result is used and the node function is skipped.
// - error: if not nil, the node fails with this error.
type BeforeNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (NodeResult, error)

// AfterNodeCallback is called after a node returned successfully.
// Returns (customResult, error).
// - customResult: if not nil, this result replaces the node result.
// - error: if not nil, the node fails with this error.
type AfterNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	result NodeResult,
) (NodeResult, error)

// OnNodeErrorCallback is called when a node execution fails.
// It cannot change the error.
type OnNodeErrorCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
)

// Callbacks holds callbacks for node operations.
type Callbacks struct {
	// BeforeNode is a list of callbacks that are called before the node is executed.
	BeforeNode []BeforeNodeCallback
	// AfterNode is a list of callbacks that are called after the node is executed.
	AfterNode []AfterNodeCallback
	// OnNodeError is a list of callbacks that are called when a node execution fails.
	OnNodeError []OnNodeErrorCallback
}

// NewCallbacks creates a new Callbacks instance.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeNode registers a before node callback.
func (c *Callbacks) RegisterBeforeNode(cb BeforeNodeCallback) *Callbacks {
	c.BeforeNode = append(c.BeforeNode, cb)
	return c
}

// RegisterAfterNode registers an after node callback.
func (c *Callbacks) RegisterAfterNode(cb AfterNodeCallback) *Callbacks {
	c.AfterNode = append(c.AfterNode, cb)
	return c
}

// RegisterOnNodeError registers an on node error callback.
func (c *Callbacks) RegisterOnNodeError(cb OnNodeErrorCallback) *Callbacks {
	c.OnNodeError = append(c.OnNodeError, cb)
	return c
}

// runBeforeNode runs the before callbacks in order and stops at the first
// custom result or error.
func (c *Callbacks) runBeforeNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (NodeResult, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.BeforeNode {
		result, err := cb(ctx, callbackCtx, state)
		if err != nil || result != nil {
			return result, err
		}
	}
	return nil, nil
}

// runAfterNode runs the after callbacks in order. The last custom result wins.
func (c *Callbacks) runAfterNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	result NodeResult,
) (NodeResult, error) {
	if c == nil {
		return result, nil
	}
	for _, cb := range c.AfterNode {
		custom, err := cb(ctx, callbackCtx, state, result)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			result = custom
		}
	}
	return result, nil
}

func (c *Callbacks) runOnNodeError(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("graph: node %s error callback panicked: %v", callbackCtx.NodeID, r)
		}
	}()
	for _, cb := range c.OnNodeError {
		cb(ctx, callbackCtx, state, err)
	}
}
