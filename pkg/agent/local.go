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
)

// HandlerFunc is the logic behind a locally-hosted agent.
type HandlerFunc func(ctx context.Context, req Request) (*Reply, error)

// LocalAgent runs in-process, backed by a handler function.
type LocalAgent struct {
	id          string
	name        string
	description string
	fn          HandlerFunc
}

// NewLocal creates a locally-hosted agent.
func NewLocal(id, name, description string, fn HandlerFunc) (*LocalAgent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("agent %s: handler function is required", id)
	}
	if name == "" {
		name = id
	}
	return &LocalAgent{id: id, name: name, description: description, fn: fn}, nil
}

func (a *LocalAgent) ID() string          { return a.id }
func (a *LocalAgent) Name() string        { return a.name }
func (a *LocalAgent) Description() string { return a.description }

// Handle invokes the backing function.
func (a *LocalAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	return a.fn(ctx, req)
}
