//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package runner

import "time"

// Config holds the runner configuration.
type Config struct {
	// MaxConcurrent is the size of the worker pool, i.e. the number of
	// sessions executing at the same time.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// Timeout bounds the wait for the session lock. A run that got the lock
	// is not interrupted: it ends with its checkpoint written. Zero means no
	// timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// CloseTimeout is how long Close waits for running sessions.
	CloseTimeout time.Duration `json:"close_timeout" yaml:"close_timeout"`
}

// DefaultConfig returns a default runner configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		CloseTimeout:  5 * time.Second,
	}
}

// WithTimeout sets how long a run waits for its session lock.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithMaxConcurrent sets the maximum concurrent executions.
func (c Config) WithMaxConcurrent(max int) Config {
	c.MaxConcurrent = max
	return c
}

// WithCloseTimeout sets how long Close waits for running sessions.
func (c Config) WithCloseTimeout(timeout time.Duration) Config {
	c.CloseTimeout = timeout
	return c
}
