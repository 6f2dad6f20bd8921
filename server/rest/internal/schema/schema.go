//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package schema defines the JSON bodies of the REST server. These types are
// internal; they only exist to facilitate request/response marshalling.
package schema

import "time"

// InvokeRequest is the body of POST /sessions/{sessionId}/invoke. Input and
// Resume are mutually exclusive.
type InvokeRequest struct {
	Input  map[string]any `json:"input,omitempty"`
	Resume *Resume        `json:"resume,omitempty"`
}

// Resume carries the external decision for a suspended session.
type Resume struct {
	Value any `json:"value"`
}

// InvokeResponse is the outcome of an invocation.
type InvokeResponse struct {
	Status       string         `json:"status"`
	SessionID    string         `json:"session_id"`
	NodeID       string         `json:"node_id,omitempty"`
	Payload      any            `json:"payload,omitempty"`
	State        map[string]any `json:"state,omitempty"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	Step         int            `json:"step"`
}

// SessionResponse is the body of GET /sessions/{sessionId}.
type SessionResponse struct {
	SessionID    string         `json:"session_id"`
	Status       string         `json:"status"`
	Cursor       string         `json:"cursor,omitempty"`
	State        map[string]any `json:"state,omitempty"`
	Payload      any            `json:"payload,omitempty"`
	Step         int            `json:"step"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

// ErrorResponse is returned with every non 2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}
