//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-graph-go/runner"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	schema := graph.NewStateSchema().
		AddField("draft", graph.StateField{Type: reflect.TypeOf("")}).
		AddField("status", graph.StateField{Type: reflect.TypeOf("")}).
		AddField("priority", graph.StateField{Type: reflect.TypeOf(0)})

	sg := graph.NewStateGraph(schema)
	require.NoError(t, sg.AddNode("entry", func(ctx context.Context, s graph.State, _ *graph.ResumeCommand) (graph.NodeResult, error) {
		if s["priority"] == 13 {
			return nil, errors.New("unlucky priority")
		}
		return graph.Update(graph.State{"draft": "Draft"}), nil
	}))
	require.NoError(t, sg.AddNode("human", func(ctx context.Context, s graph.State, r *graph.ResumeCommand) (graph.NodeResult, error) {
		if r == nil {
			return graph.Suspend(map[string]any{"message": "Review " + s["draft"].(string)}), nil
		}
		decision, _ := graph.ResumeAs[string](r)
		return graph.Update(graph.State{"status": decision}), nil
	}))
	require.NoError(t, sg.SetEntryPoint("entry"))
	require.NoError(t, sg.AddEdge("entry", "human"))
	require.NoError(t, sg.SetFinishPoint("human"))
	g := sg.MustCompile()

	exec, err := graph.NewExecutor(g, inmemory.NewSaver())
	require.NoError(t, err)
	r, err := runner.NewRunner(exec)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	srv := httptest.NewServer(New(r, g).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestServer_ApprovalFlow(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/sessions/s1"

	resp, body := do(t, http.MethodPost, base+"/invoke", `{"input":{"priority":2}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "suspended", body["status"])
	assert.Equal(t, "human", body["node_id"])
	assert.Equal(t, map[string]any{"message": "Review Draft"}, body["payload"])

	resp, body = do(t, http.MethodPost, base+"/invoke", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeAwaitingResume, body["error"])
	assert.Equal(t, map[string]any{"message": "Review Draft"}, body["payload"])

	resp, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "suspended", body["status"])
	assert.Equal(t, "human", body["cursor"])
	assert.Equal(t, float64(2), body["state"].(map[string]any)["priority"])

	resp, body = do(t, http.MethodPost, base+"/invoke", `{"resume":{"value":"approved"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, map[string]any{"draft": "Draft", "status": "approved", "priority": float64(2)}, body["state"])

	resp, body = do(t, http.MethodPost, base+"/invoke", `{"resume":{"value":"rejected"}}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeSessionCompleted, body["error"])

	resp, _ = do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not_started", body["status"])
}

func TestServer_CreateSession(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/sessions", `{"input":{}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)

	resp, body = do(t, http.MethodGet, srv.URL+"/sessions/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "suspended", body["status"])
}

func TestServer_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", "/sessions/a/invoke", `{"input":`, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown field", "/sessions/a/invoke", `{"inputs":{}}`, http.StatusBadRequest, CodeInvalidRequest},
		{"nothing to resume", "/sessions/b/invoke", `{"resume":{"value":"x"}}`, http.StatusBadRequest, CodeNothingToResume},
		{"undeclared field", "/sessions/c/invoke", `{"input":{"nope":1}}`, http.StatusBadRequest, CodeSchemaViolation},
		{"wrong type", "/sessions/d/invoke", `{"input":{"priority":"high"}}`, http.StatusBadRequest, CodeSchemaViolation},
		{"node fault", "/sessions/e/invoke", `{"input":{"priority":13}}`, http.StatusInternalServerError, CodeNodeExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}

	// Input alongside a resume value.
	resp, _ := do(t, http.MethodPost, srv.URL+"/sessions/f/invoke", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/f/invoke",
		`{"input":{"priority":1},"resume":{"value":"approved"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInputOnResume, body["error"])
}

func TestServer_Graph(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/graph?cursor=human&rankdir=TB")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/vnd.graphviz")

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"entry" -> "human";`)
	assert.Contains(t, buf.String(), "rankdir=TB;")
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/sessions/s1/invoke", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestErrorResponse_Fallbacks(t *testing.T) {
	status, resp := errorResponse(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, CodeTimeout, resp.Error)

	status, resp = errorResponse(runner.ErrClosed)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, CodeUnavailable, resp.Error)

	status, resp = errorResponse(errors.New("other"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternal, resp.Error)
}
