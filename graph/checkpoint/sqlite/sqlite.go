//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-based checkpoint storage for graph
// sessions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
)

const (
	defaultTable = "graph_checkpoints"

	sqliteCreateTable = "CREATE TABLE IF NOT EXISTS %s (" +
		"session_id TEXT NOT NULL PRIMARY KEY, " +
		"checkpoint_id TEXT NOT NULL, " +
		"status TEXT NOT NULL, " +
		"updated_at INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL" +
		")"

	sqliteUpsert = "INSERT OR REPLACE INTO %s (" +
		"session_id, checkpoint_id, status, updated_at, checkpoint_json) " +
		"VALUES (?, ?, ?, ?, ?)"

	sqliteSelect = "SELECT checkpoint_json FROM %s WHERE session_id = ? LIMIT 1"

	sqliteDelete = "DELETE FROM %s WHERE session_id = ?"
)

// Saver is a SQLite-backed implementation of graph.CheckpointStore. Each
// session occupies one row holding its latest checkpoint as JSON.
type Saver struct {
	db    *sql.DB
	table string

	upsertSQL string
	selectSQL string
	deleteSQL string
}

// Option configures a Saver.
type Option func(*Saver)

// WithTable overrides the table name (default "graph_checkpoints").
func WithTable(table string) Option {
	return func(s *Saver) {
		if table != "" {
			s.table = table
		}
	}
}

// NewSaver creates a new saver using the provided DB. The DB must use a
// SQLite driver. The constructor creates the table if needed.
func NewSaver(db *sql.DB, opts ...Option) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	s := &Saver{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(fmt.Sprintf(sqliteCreateTable, s.table)); err != nil {
		return nil, fmt.Errorf("create %s table: %w", s.table, err)
	}
	s.upsertSQL = fmt.Sprintf(sqliteUpsert, s.table)
	s.selectSQL = fmt.Sprintf(sqliteSelect, s.table)
	s.deleteSQL = fmt.Sprintf(sqliteDelete, s.table)
	return s, nil
}

// Load returns the checkpoint of a session, or nil when there is none.
func (s *Saver) Load(ctx context.Context, sessionID string) (*graph.Checkpoint, error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, s.selectSQL, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint: %w", err)
	}
	return graph.UnmarshalCheckpoint(data)
}

// Save replaces the checkpoint of a session in a single statement.
func (s *Saver) Save(ctx context.Context, sessionID string, ckpt *graph.Checkpoint) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	data, err := graph.MarshalCheckpoint(ckpt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.upsertSQL,
		sessionID, ckpt.ID, string(ckpt.Status), ckpt.UpdatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	log.Debugf("sqlite: saved checkpoint %s for session %s", ckpt.ID, sessionID)
	return nil
}

// Delete removes the checkpoint of a session.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases resources held by the saver. The DB is owned by the caller.
func (s *Saver) Close() error {
	return nil
}
