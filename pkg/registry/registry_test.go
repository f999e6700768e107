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

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/card"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
	"github.com/switchboard-dev/switchboard/pkg/store"
	"github.com/switchboard-dev/switchboard/pkg/task"
)

func newService(t *testing.T) (*Service, *orchestrator.Orchestrator, *store.InMemoryStore) {
	t.Helper()
	orch := orchestrator.New(task.NewManager())
	st := store.NewInMemoryStore()
	return NewService(orch, st, "http://localhost:8080"), orch, st
}

func newLocal(t *testing.T, id string) *agent.LocalAgent {
	t.Helper()
	a, err := agent.NewLocal(id, id, "", func(ctx context.Context, req agent.Request) (*agent.Reply, error) {
		return &agent.Reply{Text: "ok"}, nil
	})
	require.NoError(t, err)
	return a
}

func TestRegisterLocalBuildsCard(t *testing.T) {
	svc, orch, _ := newService(t)

	svc.RegisterLocal(newLocal(t, "assistant"), card.Definition{
		Skills: []card.Skill{
			{ID: "chat", Name: "chat"},
			{ID: "debug", Name: "debug", Tags: []string{card.TagInternal}},
		},
	})

	_, err := orch.Resolve("assistant")
	require.NoError(t, err)

	external := svc.Card("assistant")
	require.NotNil(t, external)
	assert.Contains(t, external.URL, "/agents/assistant/jsonrpc")
	require.Len(t, external.Skills, 1, "internal skills filtered out")
	assert.Equal(t, "chat", external.Skills[0].Name)

	internal := svc.InternalCard("assistant")
	require.NotNil(t, internal)
	assert.Len(t, internal.Skills, 2)
}

func TestCardUnknownAgent(t *testing.T) {
	svc, _, _ := newService(t)
	assert.Nil(t, svc.Card("missing"))
}

func TestRegisterExternalUnreachablePeer(t *testing.T) {
	svc, orch, st := newService(t)

	// Nothing listens here; the card fetch fails but registration
	// must still succeed.
	err := svc.RegisterExternal(context.Background(), "remote", "Remote", "http://127.0.0.1:1", "a peer")
	require.NoError(t, err)

	_, err = orch.Resolve("remote")
	require.NoError(t, err)

	record, err := st.Get(context.Background(), "remote")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, record.Status)
	require.NotNil(t, record.Card, "fallback card persisted")

	assert.NotNil(t, svc.Card("remote"))
}

func TestUnregisterEvictsEverywhere(t *testing.T) {
	svc, orch, _ := newService(t)

	var evicted []string
	svc.SetInvalidateFunc(func(id string) { evicted = append(evicted, id) })

	svc.RegisterLocal(newLocal(t, "assistant"), card.Definition{})

	removed, err := svc.Unregister(context.Background(), "assistant")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, svc.Card("assistant"))
	_, err = orch.Resolve("assistant")
	assert.ErrorIs(t, err, orchestrator.ErrAgentNotFound)
	assert.Contains(t, evicted, "assistant")
}

func TestUnregisterUnknownAgent(t *testing.T) {
	svc, _, _ := newService(t)

	removed, err := svc.Unregister(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLoadPersistedRebindsAgents(t *testing.T) {
	svc, orch, st := newService(t)

	stored := &store.RegisteredAgent{
		ID:   "archived",
		Name: "Archived",
		URL:  "http://127.0.0.1:1",
		Card: card.Build(card.Definition{ID: "archived", Name: "Archived"}, "http://localhost:8080"),
	}
	require.NoError(t, st.Register(context.Background(), stored))

	require.NoError(t, svc.LoadPersisted(context.Background()))

	_, err := orch.Resolve("archived")
	require.NoError(t, err)
	assert.NotNil(t, svc.Card("archived"), "stored card used when peer unreachable")
}
