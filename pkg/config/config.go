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

// Package config loads the YAML configuration with ${ENV} expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/switchboard-dev/switchboard/pkg/card"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// BaseURL is the externally visible base used when deriving agent
	// cards. Defaults to http://<host>:<port>.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Address returns the listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the registry store.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql, or memory.
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
	// Format is json or text.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// SlackConfig configures the Slack channel adapter.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	BotToken string `yaml:"bot_token,omitempty" json:"bot_token,omitempty"`
	AppToken string `yaml:"app_token,omitempty" json:"app_token,omitempty"`
}

// DiscordConfig configures the Discord channel adapter.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
}

// ChannelsConfig groups the channel adapters.
type ChannelsConfig struct {
	Slack   SlackConfig   `yaml:"slack,omitempty" json:"slack,omitempty"`
	Discord DiscordConfig `yaml:"discord,omitempty" json:"discord,omitempty"`
}

// AgentConfig declares one agent. Agents with a URL are remote A2A
// peers; agents without one must be registered programmatically.
type AgentConfig struct {
	Name        string       `yaml:"name,omitempty" json:"name,omitempty"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	URL         string       `yaml:"url,omitempty" json:"url,omitempty"`
	Default     bool         `yaml:"default,omitempty" json:"default,omitempty"`
	Skills      []card.Skill `yaml:"skills,omitempty" json:"skills,omitempty"`
}

// ObservabilityConfig toggles tracing and metrics.
type ObservabilityConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty"`
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig            `yaml:"server,omitempty" json:"server,omitempty"`
	Database      DatabaseConfig          `yaml:"database,omitempty" json:"database,omitempty"`
	Logging       LoggingConfig           `yaml:"logging,omitempty" json:"logging,omitempty"`
	Channels      ChannelsConfig          `yaml:"channels,omitempty" json:"channels,omitempty"`
	Observability ObservabilityConfig     `yaml:"observability,omitempty" json:"observability,omitempty"`
	Agents        map[string]*AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://" + c.Server.Address()
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "switchboard.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %s", c.Database.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}

	if c.Channels.Slack.Enabled && (c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "") {
		return fmt.Errorf("slack channel requires bot_token and app_token")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("discord channel requires token")
	}

	for id, agent := range c.Agents {
		if agent == nil {
			return fmt.Errorf("agent %s: empty definition", id)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.TrimSuffix(strings.TrimPrefix(string(match), "${"), "}")
		return []byte(os.Getenv(name))
	})
}

// Load reads, expands, parses, defaults, and validates the file.
// A .env file next to the working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
