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

// Package gateway exposes every registered agent as its own A2A
// JSON-RPC endpoint with a per-agent capability card.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
)

// CardSource resolves the externally visible card for an agent id.
// Returns nil for unknown agents.
type CardSource interface {
	Card(agentID string) *a2a.AgentCard
}

// Option customizes gateway construction.
type Option func(*Gateway)

// WithTaskStore sets a persistent store for protocol-level task state.
func WithTaskStore(store a2asrv.TaskStore) Option {
	return func(g *Gateway) { g.taskStore = store }
}

// Gateway caches one protocol handler per agent. Handlers are built
// lazily on first use and evicted by Invalidate whenever the agent's
// card or routing changes.
type Gateway struct {
	cards     CardSource
	invoker   Invoker
	taskStore a2asrv.TaskStore
	logger    *slog.Logger

	mu       sync.Mutex
	handlers map[string]http.Handler
}

// New creates a gateway over the given card source and invoker.
func New(cards CardSource, invoker Invoker, opts ...Option) *Gateway {
	g := &Gateway{
		cards:    cards,
		invoker:  invoker,
		logger:   slog.Default(),
		handlers: make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Card returns the external card for an agent, or nil if unknown.
func (g *Gateway) Card(agentID string) *a2a.AgentCard {
	return g.cards.Card(agentID)
}

// getOrCreateHandler returns the cached protocol handler for the
// agent, building one on first use. Returns nil for unknown agents.
func (g *Gateway) getOrCreateHandler(agentID string) http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.handlers[agentID]; ok {
		return h
	}

	if g.cards.Card(agentID) == nil {
		return nil
	}

	var opts []a2asrv.RequestHandlerOption
	if g.taskStore != nil {
		opts = append(opts, a2asrv.WithTaskStore(g.taskStore))
	}

	exec := newExecutor(agentID, g.invoker, g.logger)
	handler := a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(exec, opts...))

	g.handlers[agentID] = handler
	g.logger.Debug("protocol handler built", "agent_id", agentID)
	return handler
}

// Invalidate evicts the cached handler so the next request rebuilds it
// from the latest card and executor binding.
func (g *Gateway) Invalidate(agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.handlers[agentID]; ok {
		delete(g.handlers, agentID)
		g.logger.Debug("protocol handler invalidated", "agent_id", agentID)
	}
}
