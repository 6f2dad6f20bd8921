//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
)

func singleNodeExecutor(t *testing.T, fn graph.NodeFunc, opts ...graph.ExecutorOption) *graph.Executor {
	t.Helper()
	return singleNodeExecutorWithStore(t, inmemory.NewSaver(), fn, opts...)
}

func singleNodeExecutorWithStore(
	t *testing.T,
	store graph.CheckpointStore,
	fn graph.NodeFunc,
	opts ...graph.ExecutorOption,
) *graph.Executor {
	t.Helper()
	sg := graph.NewStateGraph(nil)
	require.NoError(t, sg.AddNode("work", fn))
	require.NoError(t, sg.SetEntryPoint("work"))
	require.NoError(t, sg.SetFinishPoint("work"))
	exec, err := graph.NewExecutor(sg.MustCompile(), store, opts...)
	require.NoError(t, err)
	return exec
}

// cancelAwareStore fails saves on a done context, like a database driver.
type cancelAwareStore struct {
	graph.CheckpointStore
}

func (s cancelAwareStore) Save(ctx context.Context, sessionID string, ckpt *graph.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CheckpointStore.Save(ctx, sessionID, ckpt)
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(nil)
	assert.Error(t, err)

	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		return nil, nil
	})
	r, err := NewRunner(exec, WithMaxConcurrent(0))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, DefaultConfig().MaxConcurrent, r.(*runner).config.MaxConcurrent)
	assert.NotEmpty(t, NewSessionID())
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestRunner_SuspendResume(t *testing.T) {
	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		if r == nil {
			return graph.Suspend("approve?"), nil
		}
		return graph.Update(graph.State{"decision": r.Value}), nil
	})
	r, err := NewRunner(exec)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	res, err := r.Run(ctx, "s1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "approve?", res.Payload)

	snap, err := r.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, graph.SessionSuspended, snap.Status)

	res, err = r.Run(ctx, "s1", nil, graph.NewResumeCommand("approved"))
	require.NoError(t, err)
	assert.Equal(t, "approved", res.State["decision"])

	require.NoError(t, r.Discard(ctx, "s1"))
	snap, err = r.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, graph.SessionNotStarted, snap.Status)

	_, err = r.Run(ctx, "", nil, nil)
	assert.ErrorIs(t, err, graph.ErrSessionIDRequired)
	assert.ErrorIs(t, r.Discard(ctx, ""), graph.ErrSessionIDRequired)
}

func TestRunner_SerializesSameSession(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxInflight.Load()
			if n <= m || maxInflight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}, graph.WithCompletionPolicy(graph.CompletionRestart))
	r, err := NewRunner(exec, WithMaxConcurrent(8))
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), "same", nil, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, graph.StatusCompleted, res.Status)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInflight.Load())
	assert.Zero(t, r.(*runner).locks.size())
}

func TestRunner_IndependentSessions(t *testing.T) {
	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		return graph.Update(graph.State{"out": fmt.Sprintf("%v-done", s["in"])}), nil
	})
	r, err := NewRunner(exec, WithConfig(DefaultConfig().WithMaxConcurrent(4).WithTimeout(time.Minute)))
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Run(context.Background(), fmt.Sprintf("s%d", i), graph.State{"in": i}, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, fmt.Sprintf("%d-done", i), res.State["out"])
			}
		}(i)
	}
	wg.Wait()
}

func TestRunner_WaitForLockHonorsContext(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		close(started)
		<-unblock
		return nil, nil
	})
	r, err := NewRunner(exec)
	require.NoError(t, err)
	defer r.Close()

	first := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "busy", nil, nil)
		first <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Run(ctx, "busy", nil, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(unblock)
	require.NoError(t, <-first)
}

func TestRunner_TimeoutDoesNotAbortStartedRun(t *testing.T) {
	exec := singleNodeExecutorWithStore(t, cancelAwareStore{inmemory.NewSaver()},
		func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
			time.Sleep(100 * time.Millisecond)
			return graph.Update(graph.State{"done": true}), nil
		})
	r, err := NewRunner(exec, WithConfig(DefaultConfig().WithTimeout(20*time.Millisecond)))
	require.NoError(t, err)
	defer r.Close()

	res, err := r.Run(context.Background(), "slow", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, true, res.State["done"])
}

func TestRunner_CallerLeavingStillCommits(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	exec := singleNodeExecutorWithStore(t, cancelAwareStore{inmemory.NewSaver()},
		func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
			close(started)
			<-unblock
			return graph.Update(graph.State{"done": true}), nil
		})
	r, err := NewRunner(exec)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, "s1", nil, nil)
		errCh <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(unblock)

	require.Eventually(t, func() bool {
		snap, err := r.Snapshot(context.Background(), "s1")
		return err == nil && snap.Status == graph.SessionCompleted
	}, time.Second, 5*time.Millisecond)
	snap, err := r.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, true, snap.State["done"])
}

func TestRunner_Close(t *testing.T) {
	exec := singleNodeExecutor(t, func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		return nil, nil
	})
	r, err := NewRunner(exec)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Run(context.Background(), "s1", nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
}
