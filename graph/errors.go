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
	"strings"
)

// Errors.
var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrNothingToResume   = errors.New("no pending interrupt to resume")
	ErrInputOnResume     = errors.New("input must be empty when resuming")
	ErrMaxStepsExceeded  = errors.New("maximum execution steps exceeded")
	ErrNilStore          = errors.New("checkpoint store is nil")
	ErrNilGraph          = errors.New("graph is nil")
)

// DuplicateNodeError is returned when a node id is registered twice.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already exists", e.NodeID)
}

// UnknownNodeError is returned when an edge or the entry point references a
// node that was never registered.
type UnknownNodeError struct {
	NodeID string
	// Role describes where the reference came from, e.g. "edge source".
	Role string
}

func (e *UnknownNodeError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("node %q does not exist", e.NodeID)
	}
	return fmt.Sprintf("%s node %q does not exist", e.Role, e.NodeID)
}

// GraphIntegrityError lists every problem found while validating a graph.
type GraphIntegrityError struct {
	Violations []error
}

func (e *GraphIntegrityError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("invalid graph: %d violation(s): %s",
		len(e.Violations), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual violations to errors.Is and errors.As.
func (e *GraphIntegrityError) Unwrap() []error {
	return e.Violations
}

// SchemaViolationError is returned when state input or a node update does not
// match the declared StateSchema.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("state field %q: %s", e.Field, e.Reason)
}

// AwaitingResumeError is returned when a suspended session is invoked without
// a resume value. The checkpoint is left untouched.
type AwaitingResumeError struct {
	SessionID string
	NodeID    string
	Payload   any
}

func (e *AwaitingResumeError) Error() string {
	return fmt.Sprintf("session %s is suspended at node %s and awaits a resume value",
		e.SessionID, e.NodeID)
}

// SessionCompletedError is returned when a completed session is invoked again
// and the executor does not restart completed sessions.
type SessionCompletedError struct {
	SessionID string
}

func (e *SessionCompletedError) Error() string {
	return fmt.Sprintf("session %s has already completed", e.SessionID)
}

// NodeExecutionError wraps a failure raised while running a node. The session
// stays resumable from its last saved checkpoint.
type NodeExecutionError struct {
	SessionID string
	NodeID    string
	Step      int
	Cause     error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("session %s: node %s failed at step %d: %v",
		e.SessionID, e.NodeID, e.Step, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}
