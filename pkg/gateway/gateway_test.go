// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/card"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
	"github.com/switchboard-dev/switchboard/pkg/registry"
	"github.com/switchboard-dev/switchboard/pkg/store"
	"github.com/switchboard-dev/switchboard/pkg/task"
)

type fixture struct {
	orch    *orchestrator.Orchestrator
	service *registry.Service
	gateway *Gateway
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orch := orchestrator.New(task.NewManager())
	service := registry.NewService(orch, store.NewInMemoryStore(), "http://localhost:8080")
	gw := New(service, orch)
	service.SetInvalidateFunc(gw.Invalidate)

	echo, err := agent.NewLocal("assistant", "Assistant", "answers questions",
		func(ctx context.Context, req agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Text: "echo: " + req.Text}, nil
		})
	require.NoError(t, err)
	service.RegisterLocal(echo, card.Definition{
		Skills: []card.Skill{{ID: "chat", Name: "chat", Tags: []string{"general"}}},
	}, orchestrator.AsDefault())

	handler := NewRouter(RouterConfig{
		Gateway:   gw,
		Invoker:   orch,
		Lister:    orch,
		Registrar: service,
	})

	return &fixture{orch: orch, service: service, gateway: gw, handler: handler}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestAgentCardEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/agents/assistant/.well-known/agent-card.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	url, _ := got["url"].(string)
	assert.Contains(t, url, "/agents/assistant/jsonrpc")
}

func TestAgentCardUnknownAgent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/agents/ghost/.well-known/agent-card.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent not found: ghost")
}

func TestProtocolUnknownAgent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/agents/ghost/jsonrpc", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")
}

func TestHandlerCacheAndInvalidate(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.gateway.getOrCreateHandler("ghost"))

	h := f.gateway.getOrCreateHandler("assistant")
	require.NotNil(t, h)
	f.gateway.mu.Lock()
	_, cached := f.gateway.handlers["assistant"]
	f.gateway.mu.Unlock()
	assert.True(t, cached)

	f.gateway.Invalidate("assistant")
	f.gateway.mu.Lock()
	_, cached = f.gateway.handlers["assistant"]
	f.gateway.mu.Unlock()
	assert.False(t, cached, "invalidate evicts so the next request rebuilds")

	require.NotNil(t, f.gateway.getOrCreateHandler("assistant"))
}

func TestChatEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo: hello", resp.Text)
	assert.NotEmpty(t, resp.ConversationID, "fresh conversation id synthesized")
	assert.Equal(t, "assistant", resp.Metadata["agentId"])
}

func TestChatMissingMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/chat", map[string]any{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")
}

func TestChatUnknownAgentHint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/chat", map[string]any{"message": "hi", "agentId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")
}

func TestListAgents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Agents []orchestrator.AgentSummary `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 1)
	assert.Equal(t, "assistant", resp.Agents[0].ID)
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/agents/register", map[string]any{"id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterAndUnregisterEndpoints(t *testing.T) {
	f := newFixture(t)

	// The peer is unreachable; registration must still succeed with
	// a fallback card.
	rec := f.do(t, http.MethodPost, "/agents/register", map[string]any{
		"id":   "remote",
		"name": "Remote",
		"url":  "http://127.0.0.1:1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"agentId":"remote"`)

	rec = f.do(t, http.MethodGet, "/agents/remote/.well-known/agent-card.json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/agents/remote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = f.do(t, http.MethodDelete, "/agents/remote", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent not found: remote")
}

func TestDefaultCardAtWellKnownPath(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/.well-known/agent-card.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Assistant", got["name"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
