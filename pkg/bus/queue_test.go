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

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	assert.Equal(t, 3, q.Size())

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Size())
}

func TestQueueInterleavedDequeue(t *testing.T) {
	q := NewQueue[int]()
	ctx := context.Background()

	q.Enqueue(1)
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	q.Enqueue(2)
	q.Enqueue(3)
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

// Three consumers start waiting before anything is enqueued; they must
// receive items in the order they began waiting.
func TestQueueWaiterOrder(t *testing.T) {
	q := NewQueue[string]()
	ctx := context.Background()

	results := make([]chan string, 3)
	for i := range results {
		results[i] = make(chan string, 1)
	}

	for i := 0; i < 3; i++ {
		i := i
		go func() {
			v, err := q.Dequeue(ctx)
			if err != nil {
				return
			}
			results[i] <- v
		}()
		// Let waiter i register before waiter i+1 starts.
		require.Eventually(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return len(q.waiters) == i+1
		}, time.Second, time.Millisecond)
	}

	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	for i, want := range []string{"a", "b", "c"} {
		select {
		case got := <-results[i]:
			assert.Equal(t, want, got, "waiter %d", i)
		case <-time.After(time.Second):
			t.Fatalf("waiter %d did not receive an item", i)
		}
	}
}

func TestQueueSizeExcludesWaiters(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Dequeue(ctx)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.waiters) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, q.Size())
	cancel()
	<-done
}

func TestQueueDequeueCancelled(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// A cancelled waiter must not disturb later deliveries.
	q.Enqueue(42)
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestBusTypedQueues(t *testing.T) {
	b := New()
	ctx := context.Background()

	b.PublishInbound(InboundMessage{Channel: "rest", Content: "hi"})
	b.PublishOutbound(OutboundMessage{Channel: "slack", Content: "yo"})
	b.PublishOutbound(OutboundMessage{Channel: "slack", Content: "again"})

	assert.Equal(t, 1, b.InboundSize())
	assert.Equal(t, 2, b.OutboundSize())

	in, err := b.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", in.Content)

	out, err := b.ConsumeOutbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yo", out.Content)
	assert.Equal(t, 1, b.OutboundSize())
}
