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
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/switchboard-dev/switchboard/pkg/bus"
)

// DiscordChannel connects a Discord bot and publishes incoming
// messages on the inbound queue.
type DiscordChannel struct {
	token     string
	session   *discordgo.Session
	botUserID string

	bus     *bus.Bus
	logger  *slog.Logger
	running atomic.Bool
}

// NewDiscordChannel creates a Discord adapter publishing to b.
func NewDiscordChannel(token string, b *bus.Bus) *DiscordChannel {
	return &DiscordChannel{
		token:  token,
		bus:    b,
		logger: slog.Default(),
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Running() bool { return d.running.Load() }

func (d *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return err
	}
	d.session = session
	d.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	d.session.AddHandler(d.onMessageCreate)

	if err := d.session.Open(); err != nil {
		return err
	}

	d.botUserID = d.session.State.User.ID
	d.running.Store(true)
	d.logger.Info("discord channel started", "user_id", d.botUserID)
	return nil
}

func (d *DiscordChannel) Stop(ctx context.Context) error {
	d.running.Store(false)
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = "Error: " + content
	}
	_, err := d.session.ChannelMessageSend(msg.ChatID, content)
	return err
}

func (d *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == d.botUserID || m.Author.Bot {
		return
	}

	content := m.Content
	for _, mention := range []string{"<@" + d.botUserID + ">", "<@!" + d.botUserID + ">"} {
		content = strings.ReplaceAll(content, mention, "")
	}
	content = strings.TrimSpace(content)

	d.bus.PublishInbound(bus.InboundMessage{
		Channel:   "discord",
		SenderID:  m.Author.ID,
		ChatID:    m.ChannelID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

var _ Channel = (*DiscordChannel)(nil)
