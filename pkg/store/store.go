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

// Package store persists agent registrations so externally registered
// agents survive restarts.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// ErrAgentNotRegistered is returned by Get when no record exists for
// the id.
var ErrAgentNotRegistered = errors.New("agent not registered")

// Status marks whether a registration is live.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// RegisteredAgent is one persisted registration record.
type RegisteredAgent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	Card      *a2a.AgentCard `json:"agentCard,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	CreatedBy string         `json:"createdBy,omitempty"`
	Status    Status         `json:"status"`
}

// Store is the durable registry of agent registrations. Register is an
// upsert keyed by id; a re-registration fully replaces the previous
// record. Unregister reports whether a record was actually removed.
type Store interface {
	Register(ctx context.Context, agent *RegisteredAgent) error
	Get(ctx context.Context, id string) (*RegisteredAgent, error)
	ListActive(ctx context.Context) ([]*RegisteredAgent, error)
	FindBySkill(ctx context.Context, name string) ([]*RegisteredAgent, error)
	Unregister(ctx context.Context, id string) (bool, error)
	Close() error
}

// matchesSkill reports whether any skill name on the card contains the
// query as a case-sensitive substring.
func matchesSkill(card *a2a.AgentCard, name string) bool {
	if card == nil {
		return false
	}
	for _, skill := range card.Skills {
		if strings.Contains(skill.Name, name) {
			return true
		}
	}
	return false
}
