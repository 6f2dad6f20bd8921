//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package runner runs graph sessions on a bounded worker pool and serializes
// invocations that target the same session id.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

// ErrClosed is returned by a closed runner.
var ErrClosed = errors.New("runner is closed")

const spanNameRunSession = "run_session"

// Option is a function that configures a Runner.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithMaxConcurrent sets the worker pool size.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
	}
}

// Runner invokes graph sessions. Calls for the same session id never overlap;
// calls for different sessions run in parallel up to the pool size.
type Runner interface {
	// Run invokes the session and waits for the outcome.
	Run(ctx context.Context, sessionID string, input graph.State, resume *graph.ResumeCommand) (*graph.Result, error)
	// Snapshot returns a read-only view of the session.
	Snapshot(ctx context.Context, sessionID string) (*graph.Snapshot, error)
	// Discard deletes the session checkpoint once no run of it is in flight.
	Discard(ctx context.Context, sessionID string) error
	// Close stops accepting runs and waits for running ones.
	Close() error
}

type runner struct {
	executor *graph.Executor
	pool     *ants.Pool
	locks    *keyedLocks
	config   Config
	closed   atomic.Bool
}

// NewRunner creates a new Runner.
func NewRunner(executor *graph.Executor, opts ...Option) (Runner, error) {
	if executor == nil {
		return nil, errors.New("executor is nil")
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	pool, err := ants.NewPool(cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session worker pool: %w", err)
	}
	return &runner{
		executor: executor,
		pool:     pool,
		locks:    newKeyedLocks(),
		config:   cfg,
	}, nil
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	return uuid.NewString()
}

type outcome struct {
	result *graph.Result
	err    error
}

// Run implements Runner.
func (r *runner) Run(
	ctx context.Context,
	sessionID string,
	input graph.State,
	resume *graph.ResumeCommand,
) (*graph.Result, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	ctx, span := trace.Tracer.Start(ctx, spanNameRunSession)
	defer span.End()
	span.SetAttributes(attribute.String(itelemetry.KeySessionID, sessionID))
	lockCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	release, err := r.locks.acquire(lockCtx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session %s: %w", sessionID, err)
	}
	// Once started, a run is carried through to its checkpoint write even if
	// the caller goes away; otherwise durable stores would reject the save
	// and the node's work would be lost.
	runCtx := context.WithoutCancel(ctx)
	done := make(chan outcome, 1)
	task := func() {
		var o outcome
		func() {
			defer release()
			o.result, o.err = r.executor.Invoke(runCtx, sessionID, input, resume)
		}()
		done <- o
	}
	if err := r.pool.Submit(task); err != nil {
		release()
		if errors.Is(err, ants.ErrPoolClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("submit session %s: %w", sessionID, err)
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		log.Warnf("runner: stopped waiting for session %s: %v", sessionID, ctx.Err())
		go logLateOutcome(sessionID, done)
		return nil, ctx.Err()
	}
}

// logLateOutcome reports how a run ended after its caller stopped waiting.
func logLateOutcome(sessionID string, done <-chan outcome) {
	o := <-done
	switch {
	case o.err != nil:
		log.Warnf("runner: session %s failed after its caller left: %v", sessionID, o.err)
	case o.result.Suspended():
		log.Warnf("runner: session %s suspended at %s after its caller left", sessionID, o.result.NodeID)
	default:
		log.Warnf("runner: session %s completed after its caller left", sessionID)
	}
}

// Snapshot implements Runner.
func (r *runner) Snapshot(ctx context.Context, sessionID string) (*graph.Snapshot, error) {
	return r.executor.Snapshot(ctx, sessionID)
}

// Discard implements Runner.
func (r *runner) Discard(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	release, err := r.locks.acquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("wait for session %s: %w", sessionID, err)
	}
	defer release()
	return r.executor.Discard(ctx, sessionID)
}

// Close implements Runner.
func (r *runner) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.pool.ReleaseTimeout(r.config.CloseTimeout); err != nil {
		return fmt.Errorf("release session worker pool: %w", err)
	}
	return nil
}

// keyedLocks is a set of mutexes keyed by session id. Entries are removed
// once nobody holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				k.unref(key, l)
			})
		}, nil
	case <-ctx.Done():
		k.unref(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) unref(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
