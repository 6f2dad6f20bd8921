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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckpointVersion is the current version of the checkpoint format.
const CheckpointVersion = 1

// CheckpointStatus tells whether a checkpoint marks a suspended or a
// completed session.
type CheckpointStatus string

// Checkpoint statuses.
const (
	CheckpointSuspended CheckpointStatus = "suspended"
	CheckpointCompleted CheckpointStatus = "completed"
)

// Checkpoint is the durable snapshot of a session: where it stopped, the
// state accumulated so far and the pending interrupt, if any.
//
// A completed checkpoint has Cursor == End and no interrupt; it stays in the
// store so that the session is known to be finished.
type Checkpoint struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// ParentID is the checkpoint this one replaced, if any.
	ParentID string `json:"parent_id,omitempty"`
	// SessionID is the session this checkpoint belongs to.
	SessionID string `json:"session_id"`
	// Status is suspended or completed.
	Status CheckpointStatus `json:"status"`
	// State is the session state at checkpoint time.
	State State `json:"state"`
	// Cursor is the node to re-enter on resume, or End once completed.
	Cursor string `json:"cursor"`
	// Interrupt is the pending suspend request of a suspended session.
	Interrupt *Interrupt `json:"interrupt,omitempty"`
	// Step counts the node executions of the session so far.
	Step int `json:"step"`
	// CreatedAt is when the session started.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when this checkpoint was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointStore persists the latest checkpoint per session id.
//
// Save must be atomic for a given session id: a concurrent Load sees either
// the previous or the new checkpoint, never a mix. Callers serialize writers
// of one session; the store does not arbitrate them. Implementations return
// copies so callers cannot mutate stored checkpoints.
type CheckpointStore interface {
	// Load returns the checkpoint of a session, or (nil, nil) if there is none.
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	// Save replaces the checkpoint of a session.
	Save(ctx context.Context, sessionID string, checkpoint *Checkpoint) error
	// Delete removes the checkpoint of a session. Deleting a missing session is
	// not an error.
	Delete(ctx context.Context, sessionID string) error
}

// NewCheckpoint creates a checkpoint with a fresh id.
func NewCheckpoint(sessionID string, status CheckpointStatus, state State, cursor string) *Checkpoint {
	if state == nil {
		state = make(State)
	}
	now := time.Now().UTC()
	return &Checkpoint{
		Version:   CheckpointVersion,
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    status,
		State:     state,
		Cursor:    cursor,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Copy creates a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = c.State.Clone()
	cp.Interrupt = c.Interrupt.copy()
	return &cp
}

// Suspended reports whether the checkpoint holds a pending interrupt.
func (c *Checkpoint) Suspended() bool {
	return c != nil && c.Status == CheckpointSuspended && c.Interrupt != nil
}

// Completed reports whether the session reached End.
func (c *Checkpoint) Completed() bool {
	return c != nil && c.Status == CheckpointCompleted
}

// checkpointJSON is the serialized form of a checkpoint. NumberKinds maps
// the JSON pointer of every number held in untyped containers (the state, its
// map[string]any and []any values, the interrupt payload) to its Go kind, so
// that float64(2) does not come back as an int.
type checkpointJSON struct {
	Checkpoint
	NumberKinds map[string]string `json:"number_kinds,omitempty"`
}

const (
	statePointer   = "/state"
	payloadPointer = "/payload"
)

// MarshalCheckpoint encodes a checkpoint as JSON for durable stores.
func MarshalCheckpoint(c *Checkpoint) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("checkpoint cannot be nil")
	}
	kinds := make(map[string]string)
	for key, value := range c.State {
		collectNumberKinds(statePointer+"/"+escapePointer(key), value, kinds)
	}
	if c.Interrupt != nil {
		collectNumberKinds(payloadPointer, c.Interrupt.Payload, kinds)
	}
	env := checkpointJSON{Checkpoint: *c}
	if len(kinds) > 0 {
		env.NumberKinds = kinds
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint %s: %w", c.ID, err)
	}
	return data, nil
}

// UnmarshalCheckpoint decodes a checkpoint written by MarshalCheckpoint.
// Numbers recorded by MarshalCheckpoint get their original Go type back.
// Any other number is kept as json.Number so the executor can restore it to
// the type declared by the state schema.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var env checkpointJSON
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	c := env.Checkpoint
	if c.Version > CheckpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", c.Version)
	}
	if c.State == nil {
		c.State = make(State)
	}
	if len(env.NumberKinds) > 0 {
		for key, value := range c.State {
			c.State[key] = restoreNumbers(statePointer+"/"+escapePointer(key), value, env.NumberKinds)
		}
		if c.Interrupt != nil {
			c.Interrupt.Payload = restoreNumbers(payloadPointer, c.Interrupt.Payload, env.NumberKinds)
		}
	}
	return &c, nil
}

func collectNumberKinds(pointer string, v any, kinds map[string]string) {
	switch t := v.(type) {
	case State:
		for k, vv := range t {
			collectNumberKinds(pointer+"/"+escapePointer(k), vv, kinds)
		}
	case map[string]any:
		for k, vv := range t {
			collectNumberKinds(pointer+"/"+escapePointer(k), vv, kinds)
		}
	case []any:
		for i, vv := range t {
			collectNumberKinds(pointer+"/"+strconv.Itoa(i), vv, kinds)
		}
	case json.Number:
	default:
		switch kind := reflect.ValueOf(v).Kind(); kind {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			kinds[pointer] = kind.String()
		}
	}
}

func restoreNumbers(pointer string, v any, kinds map[string]string) any {
	switch t := v.(type) {
	case json.Number:
		if kind, ok := kinds[pointer]; ok {
			if n, err := parseNumber(t.String(), kind); err == nil {
				return n
			}
		}
		return t
	case map[string]any:
		for k, vv := range t {
			t[k] = restoreNumbers(pointer+"/"+escapePointer(k), vv, kinds)
		}
		return t
	case []any:
		for i, vv := range t {
			t[i] = restoreNumbers(pointer+"/"+strconv.Itoa(i), vv, kinds)
		}
		return t
	default:
		return v
	}
}

func parseNumber(s, kind string) (any, error) {
	switch kind {
	case "int":
		i, err := strconv.ParseInt(s, 10, 0)
		return int(i), err
	case "int8":
		i, err := strconv.ParseInt(s, 10, 8)
		return int8(i), err
	case "int16":
		i, err := strconv.ParseInt(s, 10, 16)
		return int16(i), err
	case "int32":
		i, err := strconv.ParseInt(s, 10, 32)
		return int32(i), err
	case "int64":
		return strconv.ParseInt(s, 10, 64)
	case "uint":
		u, err := strconv.ParseUint(s, 10, 0)
		return uint(u), err
	case "uint8":
		u, err := strconv.ParseUint(s, 10, 8)
		return uint8(u), err
	case "uint16":
		u, err := strconv.ParseUint(s, 10, 16)
		return uint16(u), err
	case "uint32":
		u, err := strconv.ParseUint(s, 10, 32)
		return uint32(u), err
	case "uint64":
		return strconv.ParseUint(s, 10, 64)
	case "float32":
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case "float64":
		return strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("unknown number kind %q", kind)
	}
}

// escapePointer escapes a key as a JSON pointer reference token (RFC 6901).
func escapePointer(key string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(key)
}
