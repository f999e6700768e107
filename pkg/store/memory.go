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

package store

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore keeps registrations in a map. Used in tests and when
// no database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*RegisteredAgent
}

// NewInMemoryStore creates an empty in-memory registry store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{agents: make(map[string]*RegisteredAgent)}
}

func (s *InMemoryStore) Register(ctx context.Context, agent *RegisteredAgent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent id is required")
	}

	copied := *agent
	if copied.Status == "" {
		copied.Status = StatusActive
	}

	s.mu.Lock()
	s.agents[copied.ID] = &copied
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*RegisteredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotRegistered, id)
	}
	copied := *agent
	return &copied, nil
}

func (s *InMemoryStore) ListActive(ctx context.Context) ([]*RegisteredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RegisteredAgent
	for _, agent := range s.agents {
		if agent.Status != StatusActive {
			continue
		}
		copied := *agent
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemoryStore) FindBySkill(ctx context.Context, name string) ([]*RegisteredAgent, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []*RegisteredAgent
	for _, agent := range active {
		if matchesSkill(agent.Card, name) {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Unregister(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.agents[id]
	delete(s.agents, id)
	return ok, nil
}

func (s *InMemoryStore) Close() error { return nil }

var _ Store = (*InMemoryStore)(nil)
