//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package rest exposes graph sessions over HTTP.
//
// Routes:
//
//	POST   /sessions                     start a session with a generated id
//	POST   /sessions/{sessionId}/invoke  start or resume a session
//	GET    /sessions/{sessionId}         session snapshot
//	DELETE /sessions/{sessionId}         discard a session
//	GET    /graph                        graph in Graphviz DOT format
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/runner"
	"trpc.group/trpc-go/trpc-graph-go/server/rest/internal/schema"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeAwaitingResume   = "awaiting_resume"
	CodeSessionCompleted = "session_completed"
	CodeNothingToResume  = "nothing_to_resume"
	CodeInputOnResume    = "input_on_resume"
	CodeSchemaViolation  = "schema_violation"
	CodeNodeExecution    = "node_execution"
	CodeInvalidRequest   = "invalid_request"
	CodeTimeout          = "timeout"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

const defaultMaxBodyBytes = 1 << 20

// Server serves one graph through a runner.
type Server struct {
	runner  runner.Runner
	graph   *graph.Graph
	router  *mux.Router
	handler http.Handler

	allowedOrigins []string
	maxBodyBytes   int64
}

// Option configures the Server instance.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allowed origins (default "*").
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithMaxBodyBytes limits request bodies (default 1 MiB).
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a new REST server. g must be the graph run by r; it is used to
// restore JSON input to the declared state types and to render /graph.
func New(r runner.Runner, g *graph.Graph, opts ...Option) *Server {
	s := &Server{
		runner:         r,
		graph:          g,
		router:         mux.NewRouter(),
		allowedOrigins: []string{"*"},
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.registerRoutes()
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}/invoke", s.handleInvoke).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{sessionId}", s.handleDeleteSession).Methods(http.MethodDelete)
	s.router.HandleFunc("/graph", s.handleGraph).Methods(http.MethodGet)
}

// ---- Handlers -----------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, runner.NewSessionID(), http.StatusCreated)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, mux.Vars(r)["sessionId"], http.StatusOK)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, sessionID string, okStatus int) {
	log.Debugf("rest: invoke session %s", sessionID)
	req, err := s.decodeInvoke(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, &schema.ErrorResponse{
			Error:   CodeInvalidRequest,
			Message: err.Error(),
		})
		return
	}
	input, err := s.graph.Schema().Normalize(req.Input)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	var resume *graph.ResumeCommand
	if req.Resume != nil {
		resume = graph.NewResumeCommand(graph.NormalizeValue(req.Resume.Value))
	}

	result, err := s.runner.Run(r.Context(), sessionID, input, resume)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, okStatus, &schema.InvokeResponse{
		Status:       string(result.Status),
		SessionID:    result.SessionID,
		NodeID:       result.NodeID,
		Payload:      result.Payload,
		State:        result.State,
		CheckpointID: result.CheckpointID,
		Step:         result.Step,
	})
}

func (s *Server) decodeInvoke(r *http.Request) (*schema.InvokeRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", s.maxBodyBytes)
	}
	req := &schema.InvokeRequest{}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return req, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	snap, err := s.runner.Snapshot(r.Context(), sessionID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := &schema.SessionResponse{
		SessionID:    snap.SessionID,
		Status:       string(snap.Status),
		Cursor:       snap.Cursor,
		State:        snap.State,
		Payload:      snap.Payload,
		Step:         snap.Step,
		CheckpointID: snap.CheckpointID,
	}
	if !snap.UpdatedAt.IsZero() {
		resp.UpdatedAt = &snap.UpdatedAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if err := s.runner.Discard(r.Context(), sessionID); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	opts := []graph.VizOption{graph.WithRankDir(r.URL.Query().Get("rankdir"))}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		opts = append(opts, graph.WithCursor(cursor))
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	if err := s.graph.WriteDOT(w, opts...); err != nil {
		log.Errorf("rest: write graph: %v", err)
	}
}

// ---- Responses ----------------------------------------------------------

// writeFailure maps an invocation error to its HTTP status and error code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("rest: %v", err)
	}
	s.writeError(w, status, resp)
}

func errorResponse(err error) (int, *schema.ErrorResponse) {
	resp := &schema.ErrorResponse{Message: err.Error()}
	var (
		awaiting  *graph.AwaitingResumeError
		completed *graph.SessionCompletedError
		violation *graph.SchemaViolationError
		nodeErr   *graph.NodeExecutionError
	)
	switch {
	case errors.As(err, &awaiting):
		resp.Error, resp.NodeID, resp.Payload = CodeAwaitingResume, awaiting.NodeID, awaiting.Payload
		return http.StatusConflict, resp
	case errors.As(err, &completed):
		resp.Error = CodeSessionCompleted
		return http.StatusConflict, resp
	case errors.Is(err, graph.ErrNothingToResume):
		resp.Error = CodeNothingToResume
		return http.StatusBadRequest, resp
	case errors.Is(err, graph.ErrInputOnResume):
		resp.Error = CodeInputOnResume
		return http.StatusBadRequest, resp
	case errors.Is(err, graph.ErrSessionIDRequired):
		resp.Error = CodeInvalidRequest
		return http.StatusBadRequest, resp
	case errors.As(err, &violation):
		resp.Error = CodeSchemaViolation
		return http.StatusBadRequest, resp
	case errors.As(err, &nodeErr):
		resp.Error, resp.NodeID = CodeNodeExecution, nodeErr.NodeID
		return http.StatusInternalServerError, resp
	case errors.Is(err, context.DeadlineExceeded):
		resp.Error = CodeTimeout
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, runner.ErrClosed):
		resp.Error = CodeUnavailable
		return http.StatusServiceUnavailable, resp
	default:
		resp.Error = CodeInternal
		return http.StatusInternalServerError, resp
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, resp *schema.ErrorResponse) {
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("rest: encode response: %v", err)
	}
}
