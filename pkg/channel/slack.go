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
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/switchboard-dev/switchboard/pkg/bus"
)

// SlackChannel connects Slack via Socket Mode and publishes incoming
// messages on the inbound queue.
type SlackChannel struct {
	botToken string
	appToken string

	api       *slack.Client
	socketCli *socketmode.Client
	botUserID string

	bus     *bus.Bus
	logger  *slog.Logger
	running atomic.Bool
	cancel  context.CancelFunc
}

// NewSlackChannel creates a Slack adapter publishing to b.
func NewSlackChannel(botToken, appToken string, b *bus.Bus) *SlackChannel {
	return &SlackChannel{
		botToken: botToken,
		appToken: appToken,
		bus:      b,
		logger:   slog.Default(),
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Running() bool { return s.running.Load() }

func (s *SlackChannel) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.api = slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.socketCli = socketmode.New(s.api)

	authResp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		cancel()
		return err
	}
	s.botUserID = authResp.UserID

	go s.eventLoop(loopCtx)
	go func() {
		if err := s.socketCli.RunContext(loopCtx); err != nil && loopCtx.Err() == nil {
			s.logger.Error("slack socket mode error", "error", err)
		}
	}()

	s.running.Store(true)
	s.logger.Info("slack channel started", "bot_user_id", s.botUserID)
	return nil
}

func (s *SlackChannel) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.running.Store(false)
	return nil
}

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = ":warning: " + content
	}

	_, _, err := s.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(content, false))
	return err
}

func (s *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.socketCli.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			s.socketCli.Ack(*evt.Request)

			if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				s.handleMessage(ev)
			}
		}
	}
}

func (s *SlackChannel) handleMessage(ev *slackevents.MessageEvent) {
	// Ignore bot traffic, including our own replies.
	if ev.User == "" || ev.User == s.botUserID || ev.BotID != "" {
		return
	}

	content := ev.Text
	if mention := "<@" + s.botUserID + ">"; strings.Contains(content, mention) {
		content = strings.TrimSpace(strings.ReplaceAll(content, mention, ""))
	}

	s.bus.PublishInbound(bus.InboundMessage{
		Channel:   "slack",
		SenderID:  ev.User,
		ChatID:    ev.Channel,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

var _ Channel = (*SlackChannel)(nil)
