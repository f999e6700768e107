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
	"sync"
)

// Queue is an unbounded FIFO queue whose Dequeue blocks until an item is
// available. Items are delivered in strict enqueue order, and blocked
// consumers are served in the order they started waiting.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	waiters []chan T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends an item. If a consumer is blocked in Dequeue, the
// longest-waiting one receives the item directly.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		// Waiter channels are buffered, this never blocks.
		w <- item
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Dequeue returns the head of the queue, blocking until an item arrives
// or ctx is cancelled.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}

	w := make(chan T, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case item := <-w:
		return item, nil
	case <-ctx.Done():
		var zero T
		q.mu.Lock()
		for i, cand := range q.waiters {
			if cand == w {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return zero, ctx.Err()
			}
		}
		q.mu.Unlock()
		// An enqueuer already committed to this waiter; the item is
		// in flight on w and must not be lost.
		item := <-w
		q.redeliver(item)
		return zero, ctx.Err()
	}
}

// redeliver hands an orphaned item to the next waiter, or puts it back at
// the head of the queue so FIFO order is preserved.
func (q *Queue[T]) redeliver(item T) {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		w <- item
		return
	}
	q.items = append([]T{item}, q.items...)
	q.mu.Unlock()
}

// Size returns the number of queued, undelivered items. Waiting
// consumers are not counted.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
