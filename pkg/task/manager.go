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

// Package task tracks the lifecycle of agent invocations. Records are
// in-memory and process-scoped; the orchestrator is their only mutator.
package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when an update targets an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// State is the lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateWorking   State = "working"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends an invocation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task records one invocation's lifecycle. Tasks are never deleted
// within a process lifetime and are never reused across invocations.
type Task struct {
	ID        string    `json:"id"`
	ContextID string    `json:"context_id"`
	AgentID   string    `json:"agent_id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager creates and mutates task records. Pure state tracking, no I/O.
type Manager struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	logger *slog.Logger
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{
		tasks:  make(map[string]*Task),
		logger: slog.Default(),
	}
}

// Create registers a new pending task with a fresh unique id.
func (m *Manager) Create(contextID, agentID string) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New().String(),
		ContextID: contextID,
		AgentID:   agentID,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	snapshot := *t
	return &snapshot
}

// UpdateState overwrites the task's state and bumps UpdatedAt.
//
// Transition legality is not enforced: the orchestrator only calls this
// at its own transition points. A terminal task re-entering working is
// logged as it indicates a caller bug.
func (m *Manager) UpdateState(taskID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if t.State.Terminal() && !state.Terminal() {
		m.logger.Warn("task leaving terminal state",
			"task_id", taskID, "from", string(t.State), "to", string(state))
	}

	t.State = state
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a snapshot of the task, or false if the id is unknown.
func (m *Manager) Get(taskID string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	snapshot := *t
	return &snapshot, true
}

// Count returns the number of tracked tasks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// List returns snapshots of all tracked tasks, order unspecified.
func (m *Manager) List() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		snapshot := *t
		out = append(out, &snapshot)
	}
	return out
}
