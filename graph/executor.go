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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"

	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

// CompletionPolicy decides what Invoke does with a session that already
// reached End.
type CompletionPolicy int

const (
	// CompletionFail rejects further invocations with *SessionCompletedError.
	CompletionFail CompletionPolicy = iota
	// CompletionRestart starts a fresh run from the new input, replacing the
	// completed checkpoint once the new run suspends or completes.
	CompletionRestart
)

// String implements fmt.Stringer.
func (p CompletionPolicy) String() string {
	switch p {
	case CompletionFail:
		return "fail"
	case CompletionRestart:
		return "restart"
	default:
		return fmt.Sprintf("CompletionPolicy(%d)", int(p))
	}
}

// Status is the outcome of a successful Invoke.
type Status string

// Invoke outcomes.
const (
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// Result is returned by Invoke. Exactly one of Payload (suspended) or State
// (completed) is meaningful.
type Result struct {
	Status    Status
	SessionID string
	// NodeID is the node that suspended. Empty when completed.
	NodeID string
	// Payload is the value the node passed to Suspend.
	Payload any
	// State is the final session state.
	State State
	// CheckpointID is the id of the checkpoint written by this call.
	CheckpointID string
	// Step counts the node executions of the session so far.
	Step int
}

// Suspended reports whether the session paused for external input.
func (r *Result) Suspended() bool {
	return r != nil && r.Status == StatusSuspended
}

// SessionStatus describes a session as seen from its checkpoint.
type SessionStatus string

// Session statuses.
const (
	SessionNotStarted SessionStatus = "not_started"
	SessionSuspended  SessionStatus = "suspended"
	SessionCompleted  SessionStatus = "completed"
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID    string
	Status       SessionStatus
	Cursor       string
	State        State
	Payload      any
	Step         int
	CheckpointID string
	UpdatedAt    time.Time
}

// Executor drives sessions through a compiled Graph, persisting their
// progress in a CheckpointStore.
//
// The executor keeps no per-session state between calls: each Invoke reads
// the checkpoint again. Invocations for different sessions may run
// concurrently; invocations for the same session must be serialized by the
// caller (see the runner package).
type Executor struct {
	graph     *Graph
	store     CheckpointStore
	policy    CompletionPolicy
	maxSteps  int
	callbacks *Callbacks

	invocations otelmetric.Int64Counter
	suspends    otelmetric.Int64Counter
	completions otelmetric.Int64Counter
	nodeErrors  otelmetric.Int64Counter
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// CompletionPolicy handles invocations of completed sessions (default: CompletionFail).
	CompletionPolicy CompletionPolicy
	// MaxSteps bounds the node executions of a single Invoke. The default
	// is the number of nodes in the graph: a compiled graph has no cycles,
	// so no walk is longer than that.
	MaxSteps int
	// Callbacks are run around every node execution.
	Callbacks *Callbacks
}

// WithCompletionPolicy sets what happens when a completed session is invoked.
func WithCompletionPolicy(policy CompletionPolicy) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.CompletionPolicy = policy
	}
}

// WithMaxSteps caps the number of node executions per Invoke below the
// graph size. Values <= 0 keep the default.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithCallbacks sets the node callbacks.
func WithCallbacks(callbacks *Callbacks) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Callbacks = callbacks
	}
}

// NewExecutor creates a new graph executor. The store is created once by the
// caller and shared by every call of the executor.
func NewExecutor(graph *Graph, store CheckpointStore, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, ErrNilGraph
	}
	if store == nil {
		return nil, ErrNilStore
	}
	options := ExecutorOptions{
		CompletionPolicy: CompletionFail,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxSteps <= 0 {
		options.MaxSteps = len(graph.nodes)
	}
	return &Executor{
		graph:       graph,
		store:       store,
		policy:      options.CompletionPolicy,
		maxSteps:    options.MaxSteps,
		callbacks:   options.Callbacks,
		invocations: newCounter(itelemetry.MetricInvocations, "Number of graph invocations."),
		suspends:    newCounter(itelemetry.MetricSuspends, "Number of invocations that suspended."),
		completions: newCounter(itelemetry.MetricCompletions, "Number of sessions that completed."),
		nodeErrors:  newCounter(itelemetry.MetricNodeErrors, "Number of failed node executions."),
	}, nil
}

func newCounter(name, description string) otelmetric.Int64Counter {
	counter, err := metric.Meter.Int64Counter(name, otelmetric.WithDescription(description))
	if err != nil {
		log.Warnf("graph: create counter %s: %v", name, err)
		return noopm.Int64Counter{}
	}
	return counter
}

// Graph returns the graph run by the executor.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// Start runs a new session from input. It is Invoke without a resume value.
func (e *Executor) Start(ctx context.Context, sessionID string, input State) (*Result, error) {
	return e.Invoke(ctx, sessionID, input, nil)
}

// Resume continues a suspended session with the given value.
func (e *Executor) Resume(ctx context.Context, sessionID string, value any) (*Result, error) {
	return e.Invoke(ctx, sessionID, nil, NewResumeCommand(value))
}

// Invoke runs a session until it suspends or completes.
//
//   - Without a checkpoint the session starts at the entry point with input.
//   - A suspended session re-enters the suspended node with resume.Value.
//     Invoking it without resume fails with *AwaitingResumeError and changes
//     nothing.
//   - A completed session fails with *SessionCompletedError unless the
//     executor restarts completed sessions.
//
// A node failure surfaces as *NodeExecutionError and leaves the previous
// checkpoint untouched.
func (e *Executor) Invoke(
	ctx context.Context,
	sessionID string,
	input State,
	resume *ResumeCommand,
) (*Result, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameInvokeGraph)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeySessionID, sessionID),
		attribute.Bool(itelemetry.KeyResumed, resume != nil),
	)
	e.invocations.Add(ctx, 1)

	run, err := e.prepare(ctx, sessionID, input, resume)
	if err != nil {
		span.SetAttributes(attribute.String(itelemetry.KeyError, err.Error()))
		return nil, err
	}
	result, err := e.run(ctx, run)
	if err != nil {
		span.SetAttributes(attribute.String(itelemetry.KeyError, err.Error()))
		return nil, err
	}
	span.SetAttributes(
		attribute.String(itelemetry.KeyStatus, string(result.Status)),
		attribute.String(itelemetry.KeyCheckpointID, result.CheckpointID),
	)
	return result, nil
}

// session is the in-flight form of one Invoke.
type session struct {
	id        string
	state     State
	cursor    string
	resume    *ResumeCommand
	step      int
	parentID  string
	createdAt time.Time
}

func (e *Executor) prepare(
	ctx context.Context,
	sessionID string,
	input State,
	resume *ResumeCommand,
) (*session, error) {
	ckpt, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint of session %s: %w", sessionID, err)
	}

	if ckpt.Completed() {
		if e.policy != CompletionRestart || resume != nil {
			return nil, &SessionCompletedError{SessionID: sessionID}
		}
		log.Debugf("graph: restarting completed session %s", sessionID)
		return e.fresh(sessionID, input, ckpt.ID)
	}

	if ckpt == nil {
		if resume != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNothingToResume)
		}
		return e.fresh(sessionID, input, "")
	}

	if !ckpt.Suspended() {
		return nil, fmt.Errorf("session %s: checkpoint %s has status %q and no pending interrupt",
			sessionID, ckpt.ID, ckpt.Status)
	}
	if resume == nil {
		return nil, &AwaitingResumeError{
			SessionID: sessionID,
			NodeID:    ckpt.Cursor,
			Payload:   normalizeNumbers(ckpt.Interrupt.Payload),
		}
	}
	if len(input) > 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrInputOnResume)
	}
	if _, ok := e.graph.Node(ckpt.Cursor); !ok {
		return nil, fmt.Errorf("session %s: checkpoint cursor %w",
			sessionID, &UnknownNodeError{NodeID: ckpt.Cursor})
	}
	state, err := e.graph.Schema().Normalize(ckpt.State)
	if err != nil {
		return nil, fmt.Errorf("session %s: restore checkpoint %s: %w", sessionID, ckpt.ID, err)
	}
	log.Debugf("graph: resuming session %s at node %s", sessionID, ckpt.Cursor)
	return &session{
		id:        sessionID,
		state:     state,
		cursor:    ckpt.Cursor,
		resume:    resume,
		step:      ckpt.Step,
		parentID:  ckpt.ID,
		createdAt: ckpt.CreatedAt,
	}, nil
}

func (e *Executor) fresh(sessionID string, input State, parentID string) (*session, error) {
	state, err := e.graph.Schema().NewState(input)
	if err != nil {
		return nil, fmt.Errorf("session %s: invalid input: %w", sessionID, err)
	}
	log.Debugf("graph: starting session %s at node %s", sessionID, e.graph.EntryPoint())
	return &session{
		id:        sessionID,
		state:     state,
		cursor:    e.graph.EntryPoint(),
		parentID:  parentID,
		createdAt: time.Now().UTC(),
	}, nil
}

// run walks the graph from the session cursor. Nothing is persisted until a
// node suspends or the walk reaches End.
func (e *Executor) run(ctx context.Context, s *session) (*Result, error) {
	resume := s.resume
	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			return nil, &NodeExecutionError{
				SessionID: s.id,
				NodeID:    s.cursor,
				Step:      s.step,
				Cause:     fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, e.maxSteps),
			}
		}
		node, ok := e.graph.Node(s.cursor)
		if !ok {
			return nil, fmt.Errorf("session %s: %w", s.id, &UnknownNodeError{NodeID: s.cursor})
		}
		s.step++
		result, err := e.executeNode(ctx, s, node, resume)
		resume = nil
		if err != nil {
			return nil, &NodeExecutionError{SessionID: s.id, NodeID: node.ID, Step: s.step, Cause: err}
		}

		switch r := result.(type) {
		case *SuspendRequest:
			return e.suspend(ctx, s, node.ID, r.Payload)
		case StateUpdate:
			if s.state, err = e.graph.Schema().ApplyUpdate(s.state, State(r)); err != nil {
				e.nodeErrors.Add(ctx, 1)
				return nil, &NodeExecutionError{SessionID: s.id, NodeID: node.ID, Step: s.step, Cause: err}
			}
		case nil:
		default:
			return nil, &NodeExecutionError{
				SessionID: s.id,
				NodeID:    node.ID,
				Step:      s.step,
				Cause:     fmt.Errorf("invalid node result type %T", result),
			}
		}

		next, ok := e.graph.Next(node.ID)
		if !ok {
			return nil, fmt.Errorf("session %s: node %s has no outgoing edge", s.id, node.ID)
		}
		if next == End {
			return e.complete(ctx, s)
		}
		s.cursor = next
	}
}

// executeNode runs one node with callbacks and tracing. Panics are turned
// into errors.
func (e *Executor) executeNode(
	ctx context.Context,
	s *session,
	node *Node,
	resume *ResumeCommand,
) (result NodeResult, err error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteNodeSpanName(node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeySessionID, s.id),
		attribute.String(itelemetry.KeyNodeID, node.ID),
		attribute.String(itelemetry.KeyNodeName, node.Name),
		attribute.Int(itelemetry.KeyStep, s.step),
		attribute.Bool(itelemetry.KeyResumed, resume != nil),
	)

	cbCtx := &NodeCallbackContext{
		SessionID:          s.id,
		NodeID:             node.ID,
		NodeName:           node.Name,
		StepNumber:         s.step,
		Resumed:            resume != nil,
		ExecutionStartTime: time.Now(),
	}
	defer func() {
		if err != nil {
			e.nodeErrors.Add(ctx, 1)
			span.SetAttributes(attribute.String(itelemetry.KeyError, err.Error()))
			log.Errorf("graph: session %s node %s failed: %v", s.id, node.ID, err)
			e.callbacks.runOnNodeError(ctx, cbCtx, s.state.Clone(), err)
		}
	}()
	// Registered last so it runs first: a panic in a callback or in the
	// node is reported as the node's error.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("node %s panicked: %v", node.ID, r)
		}
	}()

	result, err = e.callbacks.runBeforeNode(ctx, cbCtx, s.state.Clone())
	if err != nil || result != nil {
		return result, err
	}
	result, err = callNode(ctx, node, s.state.Clone(), resume)
	if err != nil {
		return nil, err
	}
	return e.callbacks.runAfterNode(ctx, cbCtx, s.state.Clone(), result)
}

// callNode hands the node a private copy of the state so the only way to
// change the session state is through the returned update.
func callNode(ctx context.Context, node *Node, state State, resume *ResumeCommand) (NodeResult, error) {
	return node.Function(ctx, state, resume)
}

func (e *Executor) suspend(ctx context.Context, s *session, nodeID string, payload any) (*Result, error) {
	ckpt := e.checkpoint(s, CheckpointSuspended, nodeID)
	ckpt.Interrupt = &Interrupt{
		NodeID:    nodeID,
		Payload:   deepCopyValue(payload),
		Timestamp: ckpt.UpdatedAt,
	}
	if err := e.store.Save(ctx, s.id, ckpt); err != nil {
		return nil, fmt.Errorf("save checkpoint of session %s: %w", s.id, err)
	}
	e.suspends.Add(ctx, 1)
	log.Debugf("graph: session %s suspended at node %s (checkpoint %s)", s.id, nodeID, ckpt.ID)
	return &Result{
		Status:       StatusSuspended,
		SessionID:    s.id,
		NodeID:       nodeID,
		Payload:      payload,
		CheckpointID: ckpt.ID,
		Step:         s.step,
	}, nil
}

func (e *Executor) complete(ctx context.Context, s *session) (*Result, error) {
	ckpt := e.checkpoint(s, CheckpointCompleted, End)
	if err := e.store.Save(ctx, s.id, ckpt); err != nil {
		return nil, fmt.Errorf("save checkpoint of session %s: %w", s.id, err)
	}
	e.completions.Add(ctx, 1)
	log.Debugf("graph: session %s completed after %d steps", s.id, s.step)
	return &Result{
		Status:       StatusCompleted,
		SessionID:    s.id,
		State:        s.state.Clone(),
		CheckpointID: ckpt.ID,
		Step:         s.step,
	}, nil
}

func (e *Executor) checkpoint(s *session, status CheckpointStatus, cursor string) *Checkpoint {
	return &Checkpoint{
		Version:   CheckpointVersion,
		ID:        uuid.NewString(),
		ParentID:  s.parentID,
		SessionID: s.id,
		Status:    status,
		State:     s.state.Clone(),
		Cursor:    cursor,
		Step:      s.step,
		CreatedAt: s.createdAt,
		UpdatedAt: time.Now().UTC(),
	}
}

// Snapshot returns a read-only view of a session.
func (e *Executor) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	ckpt, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint of session %s: %w", sessionID, err)
	}
	if ckpt == nil {
		return &Snapshot{SessionID: sessionID, Status: SessionNotStarted}, nil
	}
	state, err := e.graph.Schema().Normalize(ckpt.State)
	if err != nil {
		return nil, fmt.Errorf("session %s: restore checkpoint %s: %w", sessionID, ckpt.ID, err)
	}
	snap := &Snapshot{
		SessionID:    sessionID,
		Status:       SessionCompleted,
		Cursor:       ckpt.Cursor,
		State:        state,
		Step:         ckpt.Step,
		CheckpointID: ckpt.ID,
		UpdatedAt:    ckpt.UpdatedAt,
	}
	if ckpt.Suspended() {
		snap.Status = SessionSuspended
		snap.Payload = normalizeNumbers(ckpt.Interrupt.Payload)
	}
	return snap, nil
}

// Discard deletes the checkpoint of a session. The next Invoke starts it
// from scratch.
func (e *Executor) Discard(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint of session %s: %w", sessionID, err)
	}
	log.Debugf("graph: discarded session %s", sessionID)
	return nil
}

// AsAwaitingResume reports whether err means the session waits for a resume
// value, and returns the pending interrupt.
func AsAwaitingResume(err error) (*AwaitingResumeError, bool) {
	var awaiting *AwaitingResumeError
	if errors.As(err, &awaiting) {
		return awaiting, true
	}
	return nil, false
}
