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
	"errors"
	"reflect"
	"sync"
)

// testStore is a minimal CheckpointStore that can round-trip checkpoints
// through JSON, like the durable stores do.
type testStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	saves     int
	failSave  error
	viaObject map[string]*Checkpoint
	json      bool
}

func newTestStore() *testStore {
	return &testStore{data: map[string][]byte{}, viaObject: map[string]*Checkpoint{}}
}

// newJSONStore returns a store that serializes every checkpoint.
func newJSONStore() *testStore {
	s := newTestStore()
	s.json = true
	return s
}

func (s *testStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.json {
		return s.viaObject[sessionID].Copy(), nil
	}
	data, ok := s.data[sessionID]
	if !ok {
		return nil, nil
	}
	return UnmarshalCheckpoint(data)
}

func (s *testStore) Save(ctx context.Context, sessionID string, ckpt *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.saves++
	if !s.json {
		s.viaObject[sessionID] = ckpt.Copy()
		return nil
	}
	data, err := MarshalCheckpoint(ckpt)
	if err != nil {
		return err
	}
	s.data[sessionID] = data
	return nil
}

func (s *testStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	delete(s.viaObject, sessionID)
	return nil
}

func (s *testStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *testStore) raw(sessionID string) *Checkpoint {
	ckpt, _ := s.Load(context.Background(), sessionID)
	return ckpt
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func passThrough(ctx context.Context, state State, resume *ResumeCommand) (NodeResult, error) {
	return nil, nil
}

func setField(key string, value any) NodeFunc {
	return func(ctx context.Context, state State, resume *ResumeCommand) (NodeResult, error) {
		return Update(State{key: value}), nil
	}
}

var errBoom = errors.New("boom")
