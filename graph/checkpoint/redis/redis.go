//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides redis based checkpoint storage for graph sessions.
// Each session is one string key holding its latest checkpoint as JSON.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
	istorage "trpc.group/trpc-go/trpc-graph-go/storage/redis"
)

const defaultKeyPrefix = "graph:ckpt"

// Saver is a redis backed implementation of graph.CheckpointStore.
type Saver struct {
	client    redis.UniversalClient
	ownClient bool
	prefix    string
	ttl       time.Duration
}

type options struct {
	client   redis.UniversalClient
	instance string
	url      string
	prefix   string
	ttl      time.Duration
}

// Option configures a Saver.
type Option func(*options)

// WithRedisClient uses an existing client. The caller keeps ownership.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithRedisInstance builds the client from an instance registered in the
// storage/redis registry.
func WithRedisInstance(name string) Option {
	return func(o *options) {
		o.instance = name
	}
}

// WithRedisClientURL builds the client from a redis URL.
func WithRedisClientURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithKeyPrefix sets the key prefix (default "graph:ckpt").
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithTTL expires a session checkpoint after ttl without writes. Zero keeps
// checkpoints forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// NewSaver creates a redis checkpoint saver. The client is taken from
// WithRedisClient, then WithRedisInstance, then WithRedisClientURL.
func NewSaver(opts ...Option) (*Saver, error) {
	o := options{prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Saver{client: o.client, prefix: o.prefix, ttl: o.ttl}
	if s.client == nil {
		if o.instance == "" && o.url == "" {
			return nil, errors.New("redis checkpoint saver: no client, instance or url configured")
		}
		client, err := istorage.NewClient(o.instance, o.url)
		if err != nil {
			return nil, fmt.Errorf("redis checkpoint saver: %w", err)
		}
		s.client = client
		s.ownClient = true
	}
	return s, nil
}

func (s *Saver) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Load returns the checkpoint of a session, or nil when there is none.
func (s *Saver) Load(ctx context.Context, sessionID string) (*graph.Checkpoint, error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get checkpoint: %w", err)
	}
	return graph.UnmarshalCheckpoint(data)
}

// Save replaces the checkpoint of a session with a single SET.
func (s *Saver) Save(ctx context.Context, sessionID string, ckpt *graph.Checkpoint) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	data, err := graph.MarshalCheckpoint(ckpt)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	log.Debugf("redis: saved checkpoint %s for session %s", ckpt.ID, sessionID)
	return nil
}

// Delete removes the checkpoint of a session.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the client if the saver created it.
func (s *Saver) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
