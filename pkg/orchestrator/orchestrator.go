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

// Package orchestrator routes invocations to registered agents and
// records each one as a task lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/bus"
	"github.com/switchboard-dev/switchboard/pkg/task"
)

var (
	// ErrAgentNotFound is returned when an invocation names an
	// unknown agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrNoDefaultAgent is returned when no agent id is given and no
	// default agent is registered.
	ErrNoDefaultAgent = errors.New("no default agent registered")
)

// Result is the outcome of a successful invocation.
type Result struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AgentSummary describes one registered agent.
type AgentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// RegisterOption customizes agent registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	isDefault bool
}

// AsDefault marks the agent as the fallback for invocations that name
// no agent.
func AsDefault() RegisterOption {
	return func(o *registerOptions) { o.isDefault = true }
}

// Orchestrator owns the agent registration map and drives invocations
// through the task lifecycle. Registrations are single-writer;
// invocations are concurrent and independent.
type Orchestrator struct {
	mu        sync.RWMutex
	agents    map[string]agent.Handle
	defaultID string

	tasks    *task.Manager
	logger   *slog.Logger
	observer InvocationObserver
}

// InvocationObserver is notified after every finished invocation with
// the agent id and the outcome ("completed" or "failed"). Used to feed
// metrics without coupling the orchestrator to a metrics backend.
type InvocationObserver func(agentID, outcome string)

// New creates an orchestrator backed by the given task manager.
func New(tasks *task.Manager) *Orchestrator {
	return &Orchestrator{
		agents: make(map[string]agent.Handle),
		tasks:  tasks,
		logger: slog.Default(),
	}
}

// SetInvocationObserver wires the metrics callback. Must be called
// before invocations start.
func (o *Orchestrator) SetInvocationObserver(fn InvocationObserver) {
	o.observer = fn
}

func (o *Orchestrator) observe(agentID, outcome string) {
	if o.observer != nil {
		o.observer(agentID, outcome)
	}
}

// RegisterAgent adds an agent to the routing map. The first registered
// agent becomes the default; AsDefault overrides that choice.
// Re-registering an id replaces the previous handle.
func (o *Orchestrator) RegisterAgent(h agent.Handle, opts ...RegisterOption) {
	var ro registerOptions
	for _, opt := range opts {
		opt(&ro)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.agents[h.ID()] = h
	if o.defaultID == "" || ro.isDefault {
		o.defaultID = h.ID()
	}
	o.logger.Info("agent registered", "agent_id", h.ID(), "default", o.defaultID == h.ID())
}

// UnregisterAgent removes an agent from the routing map. Removing the
// default leaves subsequent default resolution failing until another
// default is registered.
func (o *Orchestrator) UnregisterAgent(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.agents, id)
	if o.defaultID == id {
		o.defaultID = ""
	}
}

// Resolve looks up an agent by id, or returns the default agent when
// id is empty.
func (o *Orchestrator) Resolve(id string) (agent.Handle, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if id != "" {
		h, ok := o.agents[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
		}
		return h, nil
	}

	if o.defaultID == "" {
		return nil, ErrNoDefaultAgent
	}
	return o.agents[o.defaultID], nil
}

// Agents returns a snapshot of registered agents, order unspecified.
func (o *Orchestrator) Agents() []AgentSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]AgentSummary, 0, len(o.agents))
	for id, h := range o.agents {
		out = append(out, AgentSummary{
			ID:          id,
			Name:        h.Name(),
			Description: h.Description(),
			Default:     id == o.defaultID,
		})
	}
	return out
}

// Invoke resolves an agent and runs one invocation through the task
// lifecycle. Every call creates exactly one task. Agent failures are
// recorded on the task and re-thrown unwrapped.
func (o *Orchestrator) Invoke(ctx context.Context, agentID, contextID, text string, history []agent.Turn, metadata map[string]any) (*Result, error) {
	h, err := o.Resolve(agentID)
	if err != nil {
		return nil, err
	}

	t := o.tasks.Create(contextID, h.ID())
	o.logger.Debug("task created", "task_id", t.ID, "agent_id", h.ID(), "context_id", contextID)

	if err := o.tasks.UpdateState(t.ID, task.StateWorking); err != nil {
		return nil, err
	}

	reply, err := h.Handle(ctx, agent.Request{
		ContextID: contextID,
		Text:      text,
		History:   history,
		Metadata:  metadata,
	})
	if err != nil {
		if uerr := o.tasks.UpdateState(t.ID, task.StateFailed); uerr != nil {
			o.logger.Error("failed to record task failure", "task_id", t.ID, "error", uerr)
		}
		o.observe(h.ID(), "failed")
		return nil, err
	}

	if err := o.tasks.UpdateState(t.ID, task.StateCompleted); err != nil {
		return nil, err
	}
	o.observe(h.ID(), "completed")

	meta := make(map[string]any, len(reply.Metadata)+1)
	for k, v := range reply.Metadata {
		meta[k] = v
	}
	meta["agentId"] = h.ID()

	return &Result{Text: reply.Text, Metadata: meta}, nil
}

// HandleInbound adapts a channel message to an invocation, reading an
// optional agent hint from the message metadata.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	agentID := msg.Metadata[bus.MetaKeyAgentID]

	contextID := msg.ChatID
	if contextID == "" {
		contextID = msg.SenderID
	}

	out := bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Timestamp: msg.Timestamp,
	}

	result, err := o.Invoke(ctx, agentID, contextID, msg.Content, nil, nil)
	if err != nil {
		o.logger.Error("inbound invocation failed",
			"channel", msg.Channel, "agent_id", agentID, "error", err)
		out.Content = "Sorry, something went wrong: " + err.Error()
		out.IsError = true
		return out
	}

	out.Content = result.Text
	if len(result.Metadata) > 0 {
		out.Metadata = map[string]string{}
		if id, ok := result.Metadata["agentId"].(string); ok {
			out.Metadata[bus.MetaKeyAgentID] = id
		}
	}
	return out
}

// Run consumes the inbound queue until ctx is cancelled, publishing
// each reply on the outbound queue.
func (o *Orchestrator) Run(ctx context.Context, b *bus.Bus) error {
	o.logger.Info("orchestrator loop started")
	for {
		msg, err := b.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				o.logger.Info("orchestrator loop stopped")
				return nil
			}
			return err
		}
		b.PublishOutbound(o.HandleInbound(ctx, msg))
	}
}

// Tasks exposes the task manager for read-side consumers.
func (o *Orchestrator) Tasks() *task.Manager {
	return o.tasks
}
