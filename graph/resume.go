//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

// ResumeCommand carries the external decision that resumes a suspended
// session.
type ResumeCommand struct {
	// Value is handed to the suspended node when it is re-entered.
	Value any
}

// NewResumeCommand creates a resume command with the given value.
func NewResumeCommand(value any) *ResumeCommand {
	return &ResumeCommand{Value: value}
}

// ResumeAs extracts the resume value with type safety. It reports false when
// there is no resume command or the value has another type.
func ResumeAs[T any](resume *ResumeCommand) (T, bool) {
	var zero T
	if resume == nil {
		return zero, false
	}
	v, ok := resume.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// ResumeOrDefault extracts the resume value or returns defaultValue.
func ResumeOrDefault[T any](resume *ResumeCommand, defaultValue T) T {
	if v, ok := ResumeAs[T](resume); ok {
		return v
	}
	return defaultValue
}
