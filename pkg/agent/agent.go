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

// Package agent defines the agent handle capability and its two
// variants: locally-hosted agents and remote A2A-protocol-backed agents.
// The orchestrator holds only the Handle interface and never branches on
// the concrete kind.
package agent

import "context"

// Turn is one prior exchange in a conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request carries one invocation's input to an agent.
type Request struct {
	ContextID string
	Text      string
	History   []Turn
	Metadata  map[string]any
}

// Reply is an agent's answer to a request.
type Reply struct {
	Text     string
	Metadata map[string]any
}

// Handle is the capability every agent variant exposes.
type Handle interface {
	ID() string
	Name() string
	Description() string
	Handle(ctx context.Context, req Request) (*Reply, error)
}
