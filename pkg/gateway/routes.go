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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/switchboard-dev/switchboard/pkg/bus"
	"github.com/switchboard-dev/switchboard/pkg/config"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
)

// AgentLister enumerates the agents known to the orchestrator.
type AgentLister interface {
	Agents() []orchestrator.AgentSummary
}

// Registrar manages dynamic external agent registrations.
type Registrar interface {
	RegisterExternal(ctx context.Context, id, name, url, description string) error
	Unregister(ctx context.Context, id string) (bool, error)
}

// RouterConfig wires the HTTP surface together.
type RouterConfig struct {
	Gateway   *Gateway
	Invoker   Invoker
	Lister    AgentLister
	Registrar Registrar

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler

	// Middleware wraps every route when set.
	Middleware func(http.Handler) http.Handler
}

type router struct {
	cfg    RouterConfig
	logger *slog.Logger
}

// NewRouter builds the full HTTP surface: per-agent card and protocol
// endpoints, the REST chat endpoint, registration management, health,
// schema, and metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	rt := &router{cfg: cfg, logger: slog.Default()}

	r := chi.NewRouter()
	if cfg.Middleware != nil {
		r.Use(cfg.Middleware)
	}

	r.Get("/health", rt.handleHealth)
	r.Get("/api/schema", rt.handleSchema)
	r.Get(a2asrv.WellKnownAgentCardPath, rt.handleDefaultCard)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Post("/chat", rt.handleChat)

	r.Get("/agents", rt.handleListAgents)
	r.Post("/agents/register", rt.handleRegister)
	r.Delete("/agents/{agentID}", rt.handleUnregister)

	r.Get("/agents/{agentID}/.well-known/agent-card.json", rt.handleAgentCard)
	r.Handle("/agents/{agentID}/jsonrpc", http.HandlerFunc(rt.handleProtocol))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAgentNotFound(w http.ResponseWriter, agentID string) {
	writeError(w, http.StatusNotFound, "Agent not found: "+agentID)
}

func (rt *router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSchema returns the JSON Schema of the configuration file.
func (rt *router) handleSchema(w http.ResponseWriter, r *http.Request) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://github.com/switchboard-dev/switchboard/schemas/config.json"
	schema.Title = "Switchboard Configuration Schema"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		rt.logger.Error("failed to encode schema", "error", err)
	}
}

// handleDefaultCard serves the default agent's card at the server-level
// well-known path, for single-agent clients.
func (rt *router) handleDefaultCard(w http.ResponseWriter, r *http.Request) {
	for _, summary := range rt.cfg.Lister.Agents() {
		if !summary.Default {
			continue
		}
		if card := rt.cfg.Gateway.Card(summary.ID); card != nil {
			writeJSON(w, http.StatusOK, card)
			return
		}
	}
	writeError(w, http.StatusNotFound, "No agents configured")
}

func (rt *router) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	card := rt.cfg.Gateway.Card(agentID)
	if card == nil {
		writeAgentNotFound(w, agentID)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (rt *router) handleProtocol(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	handler := rt.cfg.Gateway.getOrCreateHandler(agentID)
	if handler == nil {
		writeAgentNotFound(w, agentID)
		return
	}
	handler.ServeHTTP(w, r)
}

type chatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
}

type chatResponse struct {
	Text           string         `json:"text"`
	ConversationID string         `json:"conversationId"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (rt *router) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	metadata := map[string]any{
		"channel": "rest",
		"userId":  req.UserID,
	}
	if req.AgentID != "" {
		metadata[bus.MetaKeyAgentID] = req.AgentID
	}

	result, err := rt.cfg.Invoker.Invoke(r.Context(), req.AgentID, req.ConversationID, req.Message, nil, metadata)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		rt.logger.Error("chat invocation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Text:           result.Text,
		ConversationID: req.ConversationID,
		Metadata:       result.Metadata,
	})
}

func (rt *router) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": rt.cfg.Lister.Agents()})
}

type registerRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (rt *router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "id, name and url are required")
		return
	}

	if err := rt.cfg.Registrar.RegisterExternal(r.Context(), req.ID, req.Name, req.URL, req.Description); err != nil {
		rt.logger.Error("agent registration failed", "agent_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agentId": req.ID})
}

func (rt *router) handleUnregister(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	removed, err := rt.cfg.Registrar.Unregister(r.Context(), agentID)
	if err != nil {
		rt.logger.Error("agent unregistration failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeAgentNotFound(w, agentID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
