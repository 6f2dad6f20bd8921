//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds names and helpers shared by the public telemetry
// packages and the graph executor.
package telemetry

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceName      = "graph"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-graph"
	InstrumentName   = "trpc.graph.go"

	SpanNameInvokeGraph       = "invoke_graph"
	SpanNamePrefixExecuteNode = "execute_node"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// Span attribute keys.
const (
	KeySessionID    = "trpc.go.graph.session_id"
	KeyNodeID       = "trpc.go.graph.node_id"
	KeyNodeName     = "trpc.go.graph.node_name"
	KeyStep         = "trpc.go.graph.step"
	KeyStatus       = "trpc.go.graph.status"
	KeyResumed      = "trpc.go.graph.resumed"
	KeyCheckpointID = "trpc.go.graph.checkpoint_id"
	KeyError        = "trpc.go.graph.error"
)

// Metric instrument names.
const (
	MetricInvocations = "graph.invocations"
	MetricSuspends    = "graph.suspends"
	MetricCompletions = "graph.completions"
	MetricNodeErrors  = "graph.node_errors"
)

// NewExecuteNodeSpanName returns the span name used for a single node run.
func NewExecuteNodeSpanName(nodeID string) string {
	if nodeID == "" {
		return SpanNamePrefixExecuteNode
	}
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteNode, nodeID)
}

// NewGRPCConn dials the collector endpoint without TLS.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
