//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// State represents the state that flows through the graph.
type State map[string]any

// Clone creates a deep copy of the state. Nested maps and slices of the
// common JSON shapes are copied; other values are copied by assignment.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = deepCopyValue(v)
	}
	return clone
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case State:
		return t.Clone()
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = deepCopyValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = deepCopyValue(vv)
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, vv := range t {
			m[k] = vv
		}
		return m
	case []string:
		return append([]string(nil), t...)
	case []int:
		return append([]int(nil), t...)
	default:
		return v
	}
}

// StateReducer is a function that determines how state updates are merged.
// It takes existing and new values and returns the merged result.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema with its type and reducer.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema declares the named, typed fields of a session state. Updates
// and inputs naming undeclared fields are rejected.
//
// A nil *StateSchema describes untyped state: every field is accepted and
// merged by overwrite.
type StateSchema struct {
	Fields map[string]StateField
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// AddField adds a field to the state schema.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}
	s.Fields[name] = field
	return s
}

// NewState builds the initial session state from caller input: the input is
// validated, then defaults are filled in and required fields checked.
func (s *StateSchema) NewState(input State) (State, error) {
	state := input.Clone()
	if state == nil {
		state = make(State)
	}
	if s == nil {
		return state, nil
	}
	for _, key := range sortedKeys(state) {
		if err := s.check(key, state[key]); err != nil {
			return nil, err
		}
	}
	for _, name := range s.fieldNames() {
		field := s.Fields[name]
		if _, ok := state[name]; ok {
			continue
		}
		if field.Default != nil {
			state[name] = field.Default()
			continue
		}
		if field.Required {
			return nil, &SchemaViolationError{Field: name, Reason: "required field is missing"}
		}
	}
	return state, nil
}

// ApplyUpdate merges update into a copy of current using the field reducers.
// The merge is a shallow per-key overwrite unless a field declares another
// reducer. current is never modified.
func (s *StateSchema) ApplyUpdate(current State, update State) (State, error) {
	result := current.Clone()
	if result == nil {
		result = make(State)
	}
	for _, key := range sortedKeys(update) {
		value := update[key]
		if s == nil {
			result[key] = deepCopyValue(value)
			continue
		}
		if err := s.check(key, value); err != nil {
			return nil, err
		}
		field := s.Fields[key]
		existing, ok := result[key]
		if !ok && field.Default != nil {
			existing = field.Default()
		}
		reducer := field.Reducer
		if reducer == nil {
			reducer = DefaultReducer
		}
		result[key] = reducer(existing, deepCopyValue(value))
	}
	return result, nil
}

// Validate checks a full state against the schema.
func (s *StateSchema) Validate(state State) error {
	if s == nil {
		return nil
	}
	for _, key := range sortedKeys(state) {
		if err := s.check(key, state[key]); err != nil {
			return err
		}
	}
	for _, name := range s.fieldNames() {
		if _, ok := state[name]; !ok && s.Fields[name].Required {
			return &SchemaViolationError{Field: name, Reason: "required field is missing"}
		}
	}
	return nil
}

// Normalize converts values decoded from a serialized checkpoint back to the
// declared field types, e.g. a json.Number into an int. Undeclared fields get
// a best-effort conversion of numbers only.
func (s *StateSchema) Normalize(state State) (State, error) {
	out := make(State, len(state))
	for key, value := range state {
		var field StateField
		declared := false
		if s != nil {
			field, declared = s.Fields[key]
		}
		if !declared || field.Type == nil || value == nil {
			out[key] = normalizeNumbers(value)
			continue
		}
		if reflect.TypeOf(value).AssignableTo(field.Type) {
			out[key] = normalizeNumbers(value)
			continue
		}
		converted, err := convertJSON(value, field.Type)
		if err != nil {
			return nil, &SchemaViolationError{
				Field:  key,
				Reason: fmt.Sprintf("cannot restore %T as %v: %v", value, field.Type, err),
			}
		}
		out[key] = converted
	}
	return out, nil
}

func (s *StateSchema) check(key string, value any) error {
	field, ok := s.Fields[key]
	if !ok {
		return &SchemaViolationError{Field: key, Reason: "field is not declared in the state schema"}
	}
	if value == nil || field.Type == nil {
		return nil
	}
	if vt := reflect.TypeOf(value); !vt.AssignableTo(field.Type) {
		return &SchemaViolationError{
			Field:  key,
			Reason: fmt.Sprintf("wrong type: expected %v, got %v", field.Type, vt),
		}
	}
	return nil
}

func (s *StateSchema) fieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(s State) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func convertJSON(value any, typ reflect.Type) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// NormalizeValue converts json.Number values produced by a decoder with
// UseNumber into int when integral and float64 otherwise. Maps and slices are
// converted in place.
func NormalizeValue(v any) any {
	return normalizeNumbers(v)
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, vv := range t {
			t[k] = normalizeNumbers(vv)
		}
		return t
	case []any:
		for i, vv := range t {
			t[i] = normalizeNumbers(vv)
		}
		return t
	default:
		return v
	}
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends update to existing slice.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}
	existingSlice, ok1 := existing.([]any)
	updateSlice, ok2 := update.([]any)
	if !ok1 || !ok2 {
		return update
	}
	return append(append([]any(nil), existingSlice...), updateSlice...)
}

// StringSliceReducer appends string slices specifically.
func StringSliceReducer(existing, update any) any {
	if existing == nil {
		existing = []string{}
	}
	existingSlice, ok1 := existing.([]string)
	updateSlice, ok2 := update.([]string)
	if !ok1 || !ok2 {
		return update
	}
	return append(append([]string(nil), existingSlice...), updateSlice...)
}

// MergeReducer merges update map into existing map.
func MergeReducer(existing, update any) any {
	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok2 {
		return update
	}
	result := make(map[string]any, len(existingMap)+len(updateMap))
	if ok1 {
		for k, v := range existingMap {
			result[k] = v
		}
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}
