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

// Package card builds agent capability descriptors. The internal card
// carries the true service URL and the full skill set; the external
// card is a fresh derivation with a caller-visible URL and a filtered
// skill subset. Derivation never mutates its input.
package card

import (
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// Version is the card version advertised when a definition does not
// set one.
const Version = "1.0.0"

// TagInternal marks a skill that must not appear on external cards
// under the default filter.
const TagInternal = "internal"

// Skill describes one capability in an agent's definition.
type Skill struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Definition is the static description a card is built from.
type Definition struct {
	ID          string
	Name        string
	Description string
	Version     string
	Skills      []Skill
}

// SkillFilter decides whether a skill appears on an external card.
type SkillFilter func(a2a.AgentSkill) bool

// Build assembles the internal card for an agent definition. The URL
// points at the agent's JSON-RPC endpoint under serviceURL.
func Build(def Definition, serviceURL string) *a2a.AgentCard {
	name := def.Name
	if name == "" {
		name = def.ID
	}
	version := def.Version
	if version == "" {
		version = Version
	}

	skills := make([]a2a.AgentSkill, 0, len(def.Skills))
	for _, s := range def.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Examples:    s.Examples,
		})
	}
	if len(skills) == 0 {
		skills = []a2a.AgentSkill{{
			ID:          def.ID,
			Name:        name,
			Description: def.Description,
			Tags:        []string{"general", "assistant"},
		}}
	}

	return &a2a.AgentCard{
		Name:               name,
		Description:        def.Description,
		URL:                strings.TrimSuffix(serviceURL, "/") + "/agents/" + def.ID + "/jsonrpc",
		Version:            version,
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              false,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Provider: &a2a.AgentProvider{
			Org: "Switchboard",
			URL: "https://github.com/switchboard-dev/switchboard",
		},
	}
}

// DefaultSkillFilter keeps every skill not tagged as internal.
func DefaultSkillFilter(s a2a.AgentSkill) bool {
	for _, tag := range s.Tags {
		if tag == TagInternal {
			return false
		}
	}
	return true
}

// External derives a caller-visible card from an internal one. The URL
// is rewritten to the JSON-RPC endpoint under baseURL and the skill
// list is filtered, preserving relative order. A nil filter keeps all
// skills. The source card and its skills container are never modified.
func External(src *a2a.AgentCard, baseURL string, filter SkillFilter) *a2a.AgentCard {
	if src == nil {
		return nil
	}
	if filter == nil {
		filter = func(a2a.AgentSkill) bool { return true }
	}

	out := *src
	out.URL = strings.TrimSuffix(baseURL, "/") + "/jsonrpc"

	skills := make([]a2a.AgentSkill, 0, len(src.Skills))
	for _, s := range src.Skills {
		if !filter(s) {
			continue
		}
		copied := s
		copied.Tags = append([]string(nil), s.Tags...)
		copied.Examples = append([]string(nil), s.Examples...)
		skills = append(skills, copied)
	}
	out.Skills = skills

	out.DefaultInputModes = append([]string(nil), src.DefaultInputModes...)
	out.DefaultOutputModes = append([]string(nil), src.DefaultOutputModes...)
	if src.Provider != nil {
		provider := *src.Provider
		out.Provider = &provider
	}

	return &out
}
