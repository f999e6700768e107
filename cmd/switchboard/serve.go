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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/switchboard-dev/switchboard/pkg/bus"
	"github.com/switchboard-dev/switchboard/pkg/channel"
	"github.com/switchboard-dev/switchboard/pkg/config"
	"github.com/switchboard-dev/switchboard/pkg/gateway"
	"github.com/switchboard-dev/switchboard/pkg/observability"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
	"github.com/switchboard-dev/switchboard/pkg/registry"
	"github.com/switchboard-dev/switchboard/pkg/store"
	"github.com/switchboard-dev/switchboard/pkg/task"
)

// ServeCmd starts the gateway server.
type ServeCmd struct {
	Port  int  `help:"Override the configured listen port."`
	Watch bool `help:"Watch the config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	setupLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	obs, err := observability.New(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = obs.Shutdown(shCtx)
	}()

	registryStore, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = registryStore.Close() }()

	b := bus.New()
	tasks := task.NewManager()
	orch := orchestrator.New(tasks)
	orch.SetInvocationObserver(func(agentID, outcome string) {
		obs.InvocationsTotal.WithLabelValues(agentID, outcome).Inc()
	})

	service := registry.NewService(orch, registryStore, cfg.Server.BaseURL)
	gw := gateway.New(service, orch)
	service.SetInvalidateFunc(gw.Invalidate)

	registerConfiguredAgents(ctx, cfg, service, orch)

	if err := service.LoadPersisted(ctx); err != nil {
		slog.Warn("failed to load persisted agents", "error", err)
	}

	channels := channel.NewManager(b, channel.WithDroppedCounter(obs.DroppedOutbound))
	if cfg.Channels.Slack.Enabled {
		channels.Register(channel.NewSlackChannel(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.AppToken, b))
	}
	if cfg.Channels.Discord.Enabled {
		channels.Register(channel.NewDiscordChannel(cfg.Channels.Discord.Token, b))
	}
	if err := channels.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := channels.StopAll(stopCtx); err != nil {
			slog.Error("failed to stop channels", "error", err)
		}
	}()

	go func() {
		if err := orch.Run(ctx, b); err != nil {
			slog.Error("orchestrator loop failed", "error", err)
			cancel()
		}
	}()

	if c.Watch {
		watcher := config.NewWatcher(cli.Config, func(next *config.Config) {
			// Agents whose definitions changed get fresh gateway
			// bindings on the next request.
			registerConfiguredAgents(ctx, next, service, orch)
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("config watcher failed", "error", err)
			}
		}()
	}

	routerCfg := gateway.RouterConfig{
		Gateway:    gw,
		Invoker:    orch,
		Lister:     orch,
		Registrar:  service,
		Middleware: obs.Middleware,
	}
	if obs.MetricsEnabled() {
		routerCfg.MetricsHandler = obs.MetricsHandler()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           gateway.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "base_url", cfg.Server.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openStore picks the registry store backend from config.
func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewInMemoryStore(), nil
	}
	s, err := store.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}
	return s, nil
}

// registerConfiguredAgents binds agents declared in the config file.
// Agents with a URL are remote A2A peers whose skills come from their
// own card; the rest need programmatic registration and are skipped
// with a warning.
func registerConfiguredAgents(ctx context.Context, cfg *config.Config, service *registry.Service, orch *orchestrator.Orchestrator) {
	for id, def := range cfg.Agents {
		if def.URL == "" {
			slog.Warn("agent has no url, register it programmatically", "agent_id", id)
			continue
		}
		if err := service.RegisterExternal(ctx, id, def.Name, def.URL, def.Description); err != nil {
			slog.Error("failed to register configured agent", "agent_id", id, "error", err)
			continue
		}
		if def.Default {
			if h, err := orch.Resolve(id); err == nil {
				orch.RegisterAgent(h, orchestrator.AsDefault())
			}
		}
	}
}
