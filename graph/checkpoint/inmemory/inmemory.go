//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage for graph
// sessions. It is suitable for tests and single-process use.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
)

// Saver provides an in-memory implementation of graph.CheckpointStore.
type Saver struct {
	mu      sync.RWMutex
	latest  map[string]*graph.Checkpoint   // sessionID -> latest checkpoint
	history map[string][]*graph.Checkpoint // sessionID -> replaced checkpoints, oldest first
	// maxHistory is the number of replaced checkpoints kept per session.
	maxHistory int
}

// Option configures a Saver.
type Option func(*Saver)

// WithHistory keeps up to n replaced checkpoints per session, available
// through History. Zero disables history.
func WithHistory(n int) Option {
	return func(s *Saver) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver(opts ...Option) *Saver {
	s := &Saver{
		latest:  make(map[string]*graph.Checkpoint),
		history: make(map[string][]*graph.Checkpoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns a copy of the latest checkpoint of a session.
func (s *Saver) Load(ctx context.Context, sessionID string) (*graph.Checkpoint, error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[sessionID].Copy(), nil
}

// Save stores a copy of the checkpoint as the latest of the session.
func (s *Saver) Save(ctx context.Context, sessionID string, ckpt *graph.Checkpoint) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if ckpt == nil {
		return errors.New("checkpoint cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.latest[sessionID]; ok && s.maxHistory > 0 {
		h := append(s.history[sessionID], prev)
		if len(h) > s.maxHistory {
			h = h[len(h)-s.maxHistory:]
		}
		s.history[sessionID] = h
	}
	s.latest[sessionID] = ckpt.Copy()
	log.Debugf("inmemory: saved checkpoint %s for session %s", ckpt.ID, sessionID)
	return nil
}

// Delete removes the checkpoint and history of a session.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, sessionID)
	delete(s.history, sessionID)
	return nil
}

// History returns the latest checkpoint followed by the retained replaced
// ones, newest first.
func (s *Saver) History(ctx context.Context, sessionID string) ([]*graph.Checkpoint, error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest, ok := s.latest[sessionID]
	if !ok {
		return nil, nil
	}
	h := s.history[sessionID]
	out := make([]*graph.Checkpoint, 0, len(h)+1)
	out = append(out, latest.Copy())
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i].Copy())
	}
	return out, nil
}

// Sessions returns the number of sessions with a checkpoint.
func (s *Saver) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
