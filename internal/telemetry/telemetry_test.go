//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import "testing"

func TestNewExecuteNodeSpanName(t *testing.T) {
	if got := NewExecuteNodeSpanName("human"); got != "execute_node human" {
		t.Fatalf("NewExecuteNodeSpanName got %q", got)
	}
	if got := NewExecuteNodeSpanName(""); got != "execute_node" {
		t.Fatalf("NewExecuteNodeSpanName empty got %q", got)
	}
}

func TestNewGRPCConn(t *testing.T) {
	conn, err := NewGRPCConn("localhost:4317")
	if err != nil {
		t.Fatalf("NewGRPCConn: %v", err)
	}
	_ = conn.Close()
}
