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

// Package bus provides the in-process message bus decoupling channel
// adapters from the orchestrator. Two FIFO queues carry normalized
// inbound and outbound messages; consumers block until an item arrives.
package bus

import "context"

// Bus composes an inbound and an outbound queue behind typed
// publish/consume operations.
type Bus struct {
	inbound  *Queue[InboundMessage]
	outbound *Queue[OutboundMessage]
}

// New creates an empty message bus.
func New() *Bus {
	return &Bus{
		inbound:  NewQueue[InboundMessage](),
		outbound: NewQueue[OutboundMessage](),
	}
}

// PublishInbound enqueues a message received from a channel.
func (b *Bus) PublishInbound(msg InboundMessage) {
	b.inbound.Enqueue(msg)
}

// ConsumeInbound blocks until an inbound message is available.
func (b *Bus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	return b.inbound.Dequeue(ctx)
}

// PublishOutbound enqueues a reply destined for a channel.
func (b *Bus) PublishOutbound(msg OutboundMessage) {
	b.outbound.Enqueue(msg)
}

// ConsumeOutbound blocks until an outbound message is available.
func (b *Bus) ConsumeOutbound(ctx context.Context) (OutboundMessage, error) {
	return b.outbound.Dequeue(ctx)
}

// InboundSize returns the number of undelivered inbound messages.
func (b *Bus) InboundSize() int { return b.inbound.Size() }

// OutboundSize returns the number of undelivered outbound messages.
func (b *Bus) OutboundSize() int { return b.outbound.Size() }
