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
	"encoding/json"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists registrations in a relational database. Supported
// dialects: sqlite, postgres, mysql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createRegisteredAgentsTableSQL = `
CREATE TABLE IF NOT EXISTS registered_agents (
    id VARCHAR(255) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    url TEXT NOT NULL,
    card_json TEXT,
    created_at TIMESTAMP NOT NULL,
    created_by VARCHAR(255),
    status VARCHAR(32) NOT NULL
)`

const createRegisteredAgentsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_registered_agents_status ON registered_agents(status)`

// NewSQLStore creates a registry store on an existing connection. The
// connection should be shared with other services using the same
// database to avoid SQLite lock contention.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	switch normalized {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &SQLStore{db: db, dialect: normalized}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Open opens a connection for the given driver and wraps it in a store.
func Open(driver, dsn string) (*SQLStore, error) {
	name := driver
	if driver == "sqlite" {
		name = "sqlite3"
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return NewSQLStore(db, driver)
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createRegisteredAgentsTableSQL); err != nil {
		return fmt.Errorf("failed to create registered_agents table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createRegisteredAgentsStatusIndexSQL); err != nil {
		return fmt.Errorf("failed to create status index: %w", err)
	}
	return nil
}

// Register upserts the record, fully replacing any previous row with
// the same id.
func (s *SQLStore) Register(ctx context.Context, agent *RegisteredAgent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent id is required")
	}

	cardJSON := ""
	if agent.Card != nil {
		b, err := json.Marshal(agent.Card)
		if err != nil {
			return fmt.Errorf("failed to marshal agent card: %w", err)
		}
		cardJSON = string(b)
	}

	createdAt := agent.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := agent.Status
	if status == "" {
		status = StatusActive
	}

	query := `
INSERT INTO registered_agents (id, name, url, card_json, created_at, created_by, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name = VALUES(name),
    url = VALUES(url),
    card_json = VALUES(card_json),
    created_at = VALUES(created_at),
    created_by = VALUES(created_by),
    status = VALUES(status)
`
	switch s.dialect {
	case "postgres":
		query = `
INSERT INTO registered_agents (id, name, url, card_json, created_at, created_by, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    url = EXCLUDED.url,
    card_json = EXCLUDED.card_json,
    created_at = EXCLUDED.created_at,
    created_by = EXCLUDED.created_by,
    status = EXCLUDED.status
`
	case "sqlite":
		query = `
INSERT INTO registered_agents (id, name, url, card_json, created_at, created_by, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    url = excluded.url,
    card_json = excluded.card_json,
    created_at = excluded.created_at,
    created_by = excluded.created_by,
    status = excluded.status
`
	}

	_, err := s.db.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.URL, cardJSON, createdAt, agent.CreatedBy, string(status))
	if err != nil {
		return fmt.Errorf("failed to register agent %s: %w", agent.ID, err)
	}
	return nil
}

// Get returns the record for id or ErrAgentNotRegistered.
func (s *SQLStore) Get(ctx context.Context, id string) (*RegisteredAgent, error) {
	query := `
SELECT id, name, url, card_json, created_at, created_by, status
FROM registered_agents WHERE id = ?`
	if s.dialect == "postgres" {
		query = `
SELECT id, name, url, card_json, created_at, created_by, status
FROM registered_agents WHERE id = $1`
	}

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotRegistered, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent %s: %w", id, err)
	}
	return agent, nil
}

// ListActive returns all active records, order unspecified.
func (s *SQLStore) ListActive(ctx context.Context) ([]*RegisteredAgent, error) {
	query := `
SELECT id, name, url, card_json, created_at, created_by, status
FROM registered_agents WHERE status = ?`
	if s.dialect == "postgres" {
		query = `
SELECT id, name, url, card_json, created_at, created_by, status
FROM registered_agents WHERE status = $1`
	}

	rows, err := s.db.QueryContext(ctx, query, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*RegisteredAgent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

// FindBySkill returns active agents whose card advertises a skill name
// containing the query, each agent at most once.
func (s *SQLStore) FindBySkill(ctx context.Context, name string) ([]*RegisteredAgent, error) {
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

// Unregister removes the record. Returns false without error when no
// record existed.
func (s *SQLStore) Unregister(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM registered_agents WHERE id = ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM registered_agents WHERE id = $1`
	}

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to unregister agent %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*RegisteredAgent, error) {
	var (
		agent     RegisteredAgent
		cardJSON  sql.NullString
		createdBy sql.NullString
		status    string
	)
	err := row.Scan(&agent.ID, &agent.Name, &agent.URL, &cardJSON, &agent.CreatedAt, &createdBy, &status)
	if err != nil {
		return nil, err
	}

	if cardJSON.Valid && cardJSON.String != "" {
		var card a2a.AgentCard
		if err := json.Unmarshal([]byte(cardJSON.String), &card); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card for agent %s: %w", agent.ID, err)
		}
		agent.Card = &card
	}
	agent.CreatedBy = createdBy.String
	agent.Status = Status(status)
	return &agent, nil
}

var _ Store = (*SQLStore)(nil)
