//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "time"

// NodeResult is what a node returns: either a state update built with Update
// or a suspend request built with Suspend. A nil NodeResult is an empty
// update.
type NodeResult interface {
	nodeResult()
}

// StateUpdate is a partial state merged into the session state field by
// field.
type StateUpdate State

func (StateUpdate) nodeResult() {}

// SuspendRequest pauses the session and hands Payload to the caller.
type SuspendRequest struct {
	Payload any
}

func (*SuspendRequest) nodeResult() {}

// Update returns a NodeResult that merges fields into the session state.
func Update(fields State) NodeResult {
	return StateUpdate(fields)
}

// Suspend returns a NodeResult that suspends the session at the current node.
// The payload is returned to the caller and persisted with the checkpoint.
func Suspend(payload any) NodeResult {
	return &SuspendRequest{Payload: payload}
}

// Interrupt is the pending suspend request stored in a checkpoint. A session
// holds at most one.
type Interrupt struct {
	// NodeID is the ID of the node that suspended.
	NodeID string `json:"node_id"`
	// Payload is the value the node passed to Suspend.
	Payload any `json:"payload"`
	// Timestamp is when the node suspended.
	Timestamp time.Time `json:"ts"`
}

func (i *Interrupt) copy() *Interrupt {
	if i == nil {
		return nil
	}
	c := *i
	c.Payload = deepCopyValue(i.Payload)
	return &c
}
