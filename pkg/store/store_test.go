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
	"database/sql"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)
	return s
}

func cardWithSkills(names ...string) *a2a.AgentCard {
	skills := make([]a2a.AgentSkill, 0, len(names))
	for _, n := range names {
		skills = append(skills, a2a.AgentSkill{ID: n, Name: n})
	}
	return &a2a.AgentCard{Name: "test", Skills: skills}
}

// Both implementations must satisfy the same contract.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get unknown", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrAgentNotRegistered)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("register and get", func(t *testing.T) {
		err := s.Register(ctx, &RegisteredAgent{
			ID:        "reviewer",
			Name:      "Reviewer",
			URL:       "http://localhost:9000",
			Card:      cardWithSkills("code-review", "code-analysis"),
			CreatedBy: "admin",
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, "Reviewer", got.Name)
		assert.Equal(t, StatusActive, got.Status, "status defaults to active")
		require.NotNil(t, got.Card)
		assert.Len(t, got.Card.Skills, 2)
	})

	t.Run("upsert replaces record", func(t *testing.T) {
		err := s.Register(ctx, &RegisteredAgent{
			ID:   "reviewer",
			Name: "Reviewer v2",
			URL:  "http://localhost:9001",
			Card: cardWithSkills("linting"),
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, "Reviewer v2", got.Name)
		assert.Equal(t, "http://localhost:9001", got.URL)
		require.NotNil(t, got.Card)
		require.Len(t, got.Card.Skills, 1, "no field merging on re-registration")
		assert.Equal(t, "linting", got.Card.Skills[0].Name)
	})

	t.Run("findBySkill matches once per agent", func(t *testing.T) {
		err := s.Register(ctx, &RegisteredAgent{
			ID:   "coder",
			Name: "Coder",
			URL:  "http://localhost:9002",
			Card: cardWithSkills("code-review", "code-analysis"),
		})
		require.NoError(t, err)

		found, err := s.FindBySkill(ctx, "code")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "coder", found[0].ID)

		// Case-sensitive substring match.
		found, err = s.FindBySkill(ctx, "CODE")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("listActive excludes inactive", func(t *testing.T) {
		err := s.Register(ctx, &RegisteredAgent{
			ID:     "retired",
			Name:   "Retired",
			URL:    "http://localhost:9003",
			Status: StatusInactive,
		})
		require.NoError(t, err)

		active, err := s.ListActive(ctx)
		require.NoError(t, err)
		for _, agent := range active {
			assert.NotEqual(t, "retired", agent.ID)
		}
	})

	t.Run("unregister", func(t *testing.T) {
		removed, err := s.Unregister(ctx, "coder")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Unregister(ctx, "coder")
		require.NoError(t, err)
		assert.False(t, removed, "absent record is not an error")
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemoryStore())
}

func TestSQLStoreSQLite(t *testing.T) {
	runStoreSuite(t, newSQLiteStore(t))
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewSQLStore(db, "oracle")
	assert.Error(t, err)
}
