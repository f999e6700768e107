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

// Package registry manages agent registrations: it binds agents into
// the orchestrator, keeps their internal capability cards, persists
// external registrations, and notifies the gateway when a binding
// changes.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/card"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
	"github.com/switchboard-dev/switchboard/pkg/store"
)

// Service coordinates registrations across the orchestrator, the
// durable store, and the per-agent gateway cache.
type Service struct {
	orch    *orchestrator.Orchestrator
	store   store.Store
	baseURL string

	mu    sync.RWMutex
	cards map[string]*a2a.AgentCard

	// invalidate evicts the gateway's cached handler for an agent.
	// Set at wiring time; a nil func is a no-op.
	invalidate func(agentID string)

	logger *slog.Logger
}

// NewService creates a registry service. baseURL is the externally
// visible base used when deriving agent cards.
func NewService(orch *orchestrator.Orchestrator, st store.Store, baseURL string) *Service {
	return &Service{
		orch:    orch,
		store:   st,
		baseURL: baseURL,
		cards:   make(map[string]*a2a.AgentCard),
		logger:  slog.Default(),
	}
}

// SetInvalidateFunc wires the gateway cache eviction callback.
func (s *Service) SetInvalidateFunc(fn func(agentID string)) {
	s.invalidate = fn
}

func (s *Service) evict(agentID string) {
	if s.invalidate != nil {
		s.invalidate(agentID)
	}
}

// RegisterLocal binds an in-process agent and builds its internal card
// from the definition.
func (s *Service) RegisterLocal(h agent.Handle, def card.Definition, opts ...orchestrator.RegisterOption) {
	if def.ID == "" {
		def.ID = h.ID()
	}
	if def.Name == "" {
		def.Name = h.Name()
	}
	if def.Description == "" {
		def.Description = h.Description()
	}

	internal := card.Build(def, s.baseURL)

	s.mu.Lock()
	s.cards[h.ID()] = internal
	s.mu.Unlock()

	s.orch.RegisterAgent(h, opts...)
	s.evict(h.ID())
	s.logger.Info("local agent registered", "agent_id", h.ID())
}

// RegisterExternal binds a remote A2A agent and persists the
// registration. A card fetch failure is non-fatal: the agent is
// registered without a resolved card rather than aborting.
func (s *Service) RegisterExternal(ctx context.Context, id, name, url, description string) error {
	remote, err := agent.NewRemote(id, name, description, url)
	if err != nil {
		return err
	}

	if err := remote.Connect(ctx); err != nil {
		s.logger.Warn("remote agent card fetch failed, registering without card",
			"agent_id", id, "url", url, "error", err)
	}

	internal := remote.Card()
	if internal == nil {
		internal = card.Build(card.Definition{ID: id, Name: name, Description: description}, s.baseURL)
	}

	record := &store.RegisteredAgent{
		ID:        id,
		Name:      name,
		URL:       url,
		Card:      internal,
		CreatedAt: time.Now().UTC(),
		Status:    store.StatusActive,
	}
	if err := s.store.Register(ctx, record); err != nil {
		return fmt.Errorf("failed to persist registration for %s: %w", id, err)
	}

	s.mu.Lock()
	s.cards[id] = internal
	s.mu.Unlock()

	s.orch.RegisterAgent(remote)
	s.evict(id)
	s.logger.Info("external agent registered", "agent_id", id, "url", url)
	return nil
}

// Unregister removes an agent everywhere. Returns whether any
// registration, persisted or in-memory, existed.
func (s *Service) Unregister(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.Unregister(ctx, id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	_, known := s.cards[id]
	delete(s.cards, id)
	s.mu.Unlock()

	s.orch.UnregisterAgent(id)
	s.evict(id)

	if removed || known {
		s.logger.Info("agent unregistered", "agent_id", id)
	}
	return removed || known, nil
}

// Card returns the externally visible card for an agent, freshly
// derived from the internal one. Nil for unknown agents.
func (s *Service) Card(agentID string) *a2a.AgentCard {
	s.mu.RLock()
	internal, ok := s.cards[agentID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return card.External(internal, s.baseURL+"/agents/"+agentID, card.DefaultSkillFilter)
}

// InternalCard returns the internal card for an agent, or nil.
func (s *Service) InternalCard(agentID string) *a2a.AgentCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cards[agentID]
}

// FindBySkill searches persisted active agents by skill name.
func (s *Service) FindBySkill(ctx context.Context, name string) ([]*store.RegisteredAgent, error) {
	return s.store.FindBySkill(ctx, name)
}

// LoadPersisted rebinds all active persisted registrations, typically
// at startup. Unreachable agents are bound with their stored card.
func (s *Service) LoadPersisted(ctx context.Context) error {
	records, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted agents: %w", err)
	}

	for _, record := range records {
		remote, err := agent.NewRemote(record.ID, record.Name, "", record.URL)
		if err != nil {
			s.logger.Warn("skipping invalid persisted registration", "agent_id", record.ID, "error", err)
			continue
		}

		internal := record.Card
		if err := remote.Connect(ctx); err != nil {
			s.logger.Warn("persisted agent unreachable, using stored card",
				"agent_id", record.ID, "url", record.URL, "error", err)
		} else if fresh := remote.Card(); fresh != nil {
			internal = fresh
		}
		if internal == nil {
			internal = card.Build(card.Definition{ID: record.ID, Name: record.Name}, s.baseURL)
		}

		s.mu.Lock()
		s.cards[record.ID] = internal
		s.mu.Unlock()

		s.orch.RegisterAgent(remote)
		s.evict(record.ID)
	}

	s.logger.Info("persisted agents loaded", "count", len(records))
	return nil
}
