//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

func TestSaver_LoadMissing(t *testing.T) {
	saver := NewSaver()
	ckpt, err := saver.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, ckpt)
}

func TestSaver_SaveLoadReturnsCopies(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()

	ckpt := graph.NewCheckpoint("s1", graph.CheckpointSuspended,
		graph.State{"draft": "hello", "tags": []string{"a"}}, "human")
	ckpt.Interrupt = &graph.Interrupt{NodeID: "human", Payload: "approve?"}
	require.NoError(t, saver.Save(ctx, "s1", ckpt))

	// Mutating the caller copy must not leak into the store.
	ckpt.State["draft"] = "changed"

	loaded, err := saver.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "hello", loaded.State["draft"])
	assert.Equal(t, "approve?", loaded.Interrupt.Payload)
	assert.True(t, loaded.Suspended())

	loaded.State["tags"].([]string)[0] = "mutated"
	again, err := saver.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.State["tags"])
}

func TestSaver_SaveReplacesAndDelete(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()

	first := graph.NewCheckpoint("s1", graph.CheckpointSuspended, graph.State{"n": 1}, "a")
	second := graph.NewCheckpoint("s1", graph.CheckpointCompleted, graph.State{"n": 2}, graph.End)
	require.NoError(t, saver.Save(ctx, "s1", first))
	require.NoError(t, saver.Save(ctx, "s1", second))

	loaded, err := saver.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, loaded.ID)
	assert.True(t, loaded.Completed())
	assert.Equal(t, 1, saver.Sessions())

	require.NoError(t, saver.Delete(ctx, "s1"))
	require.NoError(t, saver.Delete(ctx, "s1"))
	loaded, err = saver.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaver_History(t *testing.T) {
	saver := NewSaver(WithHistory(2))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		ckpt := graph.NewCheckpoint("s1", graph.CheckpointSuspended, graph.State{"n": i}, "a")
		ids = append(ids, ckpt.ID)
		require.NoError(t, saver.Save(ctx, "s1", ckpt))
	}

	history, err := saver.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[3], history[0].ID)
	assert.Equal(t, ids[2], history[1].ID)
	assert.Equal(t, ids[1], history[2].ID)

	none, err := saver.History(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaver_EmptySessionID(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	_, err := saver.Load(ctx, "")
	assert.ErrorIs(t, err, graph.ErrSessionIDRequired)
	assert.ErrorIs(t, saver.Save(ctx, "", &graph.Checkpoint{}), graph.ErrSessionIDRequired)
	assert.ErrorIs(t, saver.Delete(ctx, ""), graph.ErrSessionIDRequired)
	assert.Error(t, saver.Save(ctx, "s1", nil))
}

func TestSaver_ConcurrentSessions(t *testing.T) {
	saver := NewSaver(WithHistory(1))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			ckpt := graph.NewCheckpoint(id, graph.CheckpointSuspended, graph.State{"i": i}, "a")
			assert.NoError(t, saver.Save(ctx, id, ckpt))
			loaded, err := saver.Load(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, i, loaded.State["i"])
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, saver.Sessions())
}
