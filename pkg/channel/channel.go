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

// Package channel manages messaging channel adapters and dispatches
// outbound messages from the bus to the right adapter.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/switchboard-dev/switchboard/pkg/bus"
)

// Channel is the adapter capability for one messaging surface.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	Running() bool
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithDroppedCounter counts outbound messages dropped because no
// adapter matched their channel name.
func WithDroppedCounter(c prometheus.Counter) ManagerOption {
	return func(m *Manager) { m.dropped = c }
}

// Manager registers channel adapters, starts and stops them as a
// group, and runs the single dispatch loop over the outbound queue.
type Manager struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]Channel

	dispatchOnce sync.Once
	stopDispatch context.CancelFunc
	dispatchDone chan struct{}

	dropped prometheus.Counter
}

// Status is a point-in-time view of one adapter.
type Status struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`
}

// NewManager creates a channel manager over the bus.
func NewManager(b *bus.Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		bus:      b,
		logger:   slog.Default(),
		channels: make(map[string]Channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds an adapter, keyed by name. Registering the same name
// again replaces the previous adapter.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()
	m.logger.Info("channel registered", "channel", ch.Name())
}

func (m *Manager) snapshot() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

// StartAll starts every adapter concurrently and launches the dispatch
// loop. Calling it again does not double-schedule the loop.
func (m *Manager) StartAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range m.snapshot() {
		ch := ch
		g.Go(func() error {
			if err := ch.Start(gctx); err != nil {
				return err
			}
			m.logger.Info("channel started", "channel", ch.Name())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.dispatchOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.Background())
		m.stopDispatch = cancel
		m.dispatchDone = make(chan struct{})
		go m.dispatchLoop(loopCtx)
	})
	return nil
}

// StopAll terminates the dispatch loop, then stops every adapter
// concurrently.
func (m *Manager) StopAll(ctx context.Context) error {
	if m.stopDispatch != nil {
		m.stopDispatch()
		<-m.dispatchDone
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range m.snapshot() {
		ch := ch
		g.Go(func() error {
			if err := ch.Stop(gctx); err != nil {
				return err
			}
			m.logger.Info("channel stopped", "channel", ch.Name())
			return nil
		})
	}
	return g.Wait()
}

// dispatchLoop is the single consumer of the outbound queue. A message
// routed to an unregistered channel is dropped with a log line, never
// an error, so one bad route cannot stall delivery.
func (m *Manager) dispatchLoop(ctx context.Context) {
	defer close(m.dispatchDone)
	m.logger.Info("outbound dispatch loop started")

	for {
		msg, err := m.bus.ConsumeOutbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				m.logger.Info("outbound dispatch loop stopped")
				return
			}
			m.logger.Error("outbound consume failed", "error", err)
			return
		}

		m.mu.RLock()
		ch, ok := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !ok {
			m.logger.Warn("dropping message for unknown channel", "channel", msg.Channel)
			if m.dropped != nil {
				m.dropped.Inc()
			}
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			m.logger.Error("channel send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// GetStatus returns a snapshot of every registered adapter.
func (m *Manager) GetStatus() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.channels))
	for name, ch := range m.channels {
		out[name] = Status{Enabled: true, Running: ch.Running()}
	}
	return out
}
