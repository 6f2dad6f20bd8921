//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package postgres provides PostgreSQL based checkpoint storage for graph
// sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
	storage "trpc.group/trpc-go/trpc-graph-go/storage/postgres"
)

const (
	defaultTable = "graph_checkpoints"

	sqlCreateTable = `CREATE TABLE IF NOT EXISTS %s (
		session_id TEXT PRIMARY KEY,
		checkpoint_id TEXT NOT NULL,
		status TEXT NOT NULL,
		checkpoint_json JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

	sqlUpsert = `INSERT INTO %s (session_id, checkpoint_id, status, checkpoint_json, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			checkpoint_id = EXCLUDED.checkpoint_id,
			status = EXCLUDED.status,
			checkpoint_json = EXCLUDED.checkpoint_json,
			updated_at = EXCLUDED.updated_at`

	sqlSelect = `SELECT checkpoint_json FROM %s WHERE session_id = $1`

	sqlDelete = `DELETE FROM %s WHERE session_id = $1`
)

// Saver is a PostgreSQL backed implementation of graph.CheckpointStore. Each
// session is one row updated with an upsert.
type Saver struct {
	client    storage.Client
	ownClient bool
	table     string
}

type options struct {
	client     storage.Client
	instance   string
	connString string
	table      string
	skipDDL    bool
}

// Option configures a Saver.
type Option func(*options)

// WithPostgresClient uses an existing client. The caller keeps ownership.
func WithPostgresClient(client storage.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithPostgresInstance builds the client from an instance registered in the
// storage/postgres registry.
func WithPostgresInstance(name string) Option {
	return func(o *options) {
		o.instance = name
	}
}

// WithPostgresConnString builds the client from a connection string.
func WithPostgresConnString(connString string) Option {
	return func(o *options) {
		o.connString = connString
	}
}

// WithTable overrides the table name (default "graph_checkpoints").
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

// WithSkipDDL skips creating the table on construction.
func WithSkipDDL(skip bool) Option {
	return func(o *options) {
		o.skipDDL = skip
	}
}

// NewSaver creates a PostgreSQL checkpoint saver and creates its table
// unless WithSkipDDL is set.
func NewSaver(ctx context.Context, opts ...Option) (*Saver, error) {
	o := options{table: defaultTable}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Saver{client: o.client, table: o.table}
	if s.client == nil {
		builderOpts := []storage.ClientBuilderOpt{storage.WithClientConnString(o.connString)}
		if o.instance != "" {
			registered, ok := storage.GetPostgresInstance(o.instance)
			if !ok {
				return nil, fmt.Errorf("postgres checkpoint saver: instance %q is not registered", o.instance)
			}
			builderOpts = registered
		}
		client, err := storage.GetClientBuilder()(ctx, builderOpts...)
		if err != nil {
			return nil, fmt.Errorf("postgres checkpoint saver: %w", err)
		}
		s.client = client
		s.ownClient = true
	}
	if !o.skipDDL {
		if _, err := s.client.ExecContext(ctx, fmt.Sprintf(sqlCreateTable, s.table)); err != nil {
			s.Close()
			return nil, fmt.Errorf("create %s table: %w", s.table, err)
		}
	}
	return s, nil
}

// Load returns the checkpoint of a session, or nil when there is none.
func (s *Saver) Load(ctx context.Context, sessionID string) (*graph.Checkpoint, error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	var data []byte
	err := s.client.Query(ctx, func(rows *sql.Rows) error {
		if !rows.Next() {
			return nil
		}
		return rows.Scan(&data)
	}, fmt.Sprintf(sqlSelect, s.table), sessionID)
	if err != nil {
		return nil, fmt.Errorf("select checkpoint: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return graph.UnmarshalCheckpoint(data)
}

// Save upserts the checkpoint of a session.
func (s *Saver) Save(ctx context.Context, sessionID string, ckpt *graph.Checkpoint) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	data, err := graph.MarshalCheckpoint(ckpt)
	if err != nil {
		return err
	}
	_, err = s.client.ExecContext(ctx, fmt.Sprintf(sqlUpsert, s.table),
		sessionID, ckpt.ID, string(ckpt.Status), data, ckpt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	log.Debugf("postgres: saved checkpoint %s for session %s", ckpt.ID, sessionID)
	return nil
}

// Delete removes the checkpoint of a session.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if _, err := s.client.ExecContext(ctx, fmt.Sprintf(sqlDelete, s.table), sessionID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the client if the saver created it.
func (s *Saver) Close() error {
	if s.ownClient && s.client != nil {
		return s.client.Close()
	}
	return nil
}
