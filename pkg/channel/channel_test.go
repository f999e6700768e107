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

package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-dev/switchboard/pkg/bus"
)

// fakeChannel records sent messages for assertions.
type fakeChannel struct {
	name string

	mu      sync.Mutex
	sent    []bus.OutboundMessage
	running bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeChannel) sentMessages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.OutboundMessage(nil), f.sent...)
}

func TestStartAllStopAll(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	slack := &fakeChannel{name: "slack"}
	discord := &fakeChannel{name: "discord"}
	m.Register(slack)
	m.Register(discord)

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, slack.Running())
	assert.True(t, discord.Running())

	status := m.GetStatus()
	require.Contains(t, status, "slack")
	assert.True(t, status["slack"].Enabled)
	assert.True(t, status["slack"].Running)

	require.NoError(t, m.StopAll(context.Background()))
	assert.False(t, slack.Running())
	assert.False(t, discord.Running())
}

func TestDispatchRoutesByChannelName(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	slack := &fakeChannel{name: "slack"}
	discord := &fakeChannel{name: "discord"}
	m.Register(slack)
	m.Register(discord)

	require.NoError(t, m.StartAll(context.Background()))
	defer func() { require.NoError(t, m.StopAll(context.Background())) }()

	b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "to slack"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "D1", Content: "to discord"})

	require.Eventually(t, func() bool {
		return len(slack.sentMessages()) == 1 && len(discord.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "to slack", slack.sentMessages()[0].Content)
	assert.Equal(t, "to discord", discord.sentMessages()[0].Content)
}

func TestDispatchDropsUnknownChannel(t *testing.T) {
	b := bus.New()
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_dropped_outbound_total",
		Help: "test counter",
	})
	m := NewManager(b, WithDroppedCounter(dropped))

	slack := &fakeChannel{name: "slack"}
	m.Register(slack)

	require.NoError(t, m.StartAll(context.Background()))
	defer func() { require.NoError(t, m.StopAll(context.Background())) }()

	b.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "T1", Content: "nowhere"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "delivered"})

	// The later message still arrives, proving the loop survived the
	// unroutable one.
	require.Eventually(t, func() bool {
		return len(slack.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(dropped))
}

func TestStartAllTwiceDoesNotDoubleDispatch(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	slack := &fakeChannel{name: "slack"}
	m.Register(slack)

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.StartAll(context.Background()))
	defer func() { require.NoError(t, m.StopAll(context.Background())) }()

	for i := 0; i < 5; i++ {
		b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "msg"})
	}

	require.Eventually(t, func() bool {
		return len(slack.sentMessages()) == 5
	}, time.Second, 5*time.Millisecond)

	// A duplicated loop would have raced the queue; exactly one
	// consumer means every message was delivered exactly once.
	assert.Len(t, slack.sentMessages(), 5)
	assert.Equal(t, 0, b.OutboundSize())
}

func TestRegisterIdempotentByName(t *testing.T) {
	b := bus.New()
	m := NewManager(b)

	first := &fakeChannel{name: "slack"}
	second := &fakeChannel{name: "slack"}
	m.Register(first)
	m.Register(second)

	status := m.GetStatus()
	assert.Len(t, status, 1)
}
