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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
)

// RemoteAgent proxies invocations to an external A2A server.
//
// Card resolution is lazy and non-fatal at construction time: a remote
// peer that is down when Switchboard boots becomes reachable once it
// comes up, without a restart.
type RemoteAgent struct {
	id          string
	name        string
	description string
	baseURL     string

	mu     sync.Mutex
	card   *a2a.AgentCard
	client *a2aclient.Client

	logger *slog.Logger
}

// NewRemote creates a remote agent speaking A2A JSON-RPC at baseURL.
func NewRemote(id, name, description, baseURL string) (*RemoteAgent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("agent %s: url is required", id)
	}
	if name == "" {
		name = id
	}
	return &RemoteAgent{
		id:          id,
		name:        name,
		description: description,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      slog.Default(),
	}, nil
}

func (a *RemoteAgent) ID() string          { return a.id }
func (a *RemoteAgent) Name() string        { return a.name }
func (a *RemoteAgent) Description() string { return a.description }

// URL returns the remote server's base URL.
func (a *RemoteAgent) URL() string { return a.baseURL }

// Connect resolves the remote agent card and prepares the client.
// Safe to call more than once; a resolved card is reused.
func (a *RemoteAgent) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked(ctx)
}

func (a *RemoteAgent) connectLocked(ctx context.Context) error {
	if a.client != nil {
		return nil
	}

	card, err := agentcard.DefaultResolver.Resolve(ctx, a.baseURL)
	if err != nil {
		return fmt.Errorf("agent %s: failed to resolve agent card from %s: %w", a.id, a.baseURL, err)
	}

	client, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return fmt.Errorf("agent %s: failed to create a2a client: %w", a.id, err)
	}

	a.card = card
	a.client = client
	return nil
}

// Card returns the resolved remote agent card, or nil before the first
// successful Connect.
func (a *RemoteAgent) Card() *a2a.AgentCard {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.card
}

// Handle sends the request text to the remote agent and blocks for the
// resulting task's answer.
func (a *RemoteAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	a.mu.Lock()
	if err := a.connectLocked(ctx); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	client := a.client
	a.mu.Unlock()

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: req.Text})
	msg.ContextID = req.ContextID

	result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("agent %s: send failed: %w", a.id, err)
	}

	switch r := result.(type) {
	case *a2a.Message:
		return &Reply{Text: textFromParts(r.Parts), Metadata: r.Metadata}, nil
	case *a2a.Task:
		return a.replyFromTask(r)
	}

	// Some transports return only a task reference; fetch the full task.
	info := result.TaskInfo()
	if info.TaskID == "" {
		return nil, fmt.Errorf("agent %s: no task in send result", a.id)
	}
	remote, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: info.TaskID})
	if err != nil {
		return nil, fmt.Errorf("agent %s: failed to fetch task %s: %w", a.id, info.TaskID, err)
	}
	return a.replyFromTask(remote)
}

func (a *RemoteAgent) replyFromTask(t *a2a.Task) (*Reply, error) {
	if t.Status.State == a2a.TaskStateFailed {
		text := ""
		if t.Status.Message != nil {
			text = textFromParts(t.Status.Message.Parts)
		}
		if text == "" {
			text = "remote task failed"
		}
		return nil, fmt.Errorf("agent %s: %s", a.id, text)
	}

	var sb strings.Builder
	for _, artifact := range t.Artifacts {
		sb.WriteString(textFromParts(artifact.Parts))
	}
	if sb.Len() == 0 && t.Status.Message != nil {
		sb.WriteString(textFromParts(t.Status.Message.Parts))
	}

	return &Reply{
		Text:     sb.String(),
		Metadata: map[string]any{"remoteTaskId": string(t.ID)},
	}, nil
}

// Close releases the underlying client, if one was created.
func (a *RemoteAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Destroy()
	a.client = nil
	a.card = nil
	return err
}

func textFromParts(parts []a2a.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		if tp, ok := part.(a2a.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}
