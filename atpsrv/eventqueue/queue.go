// Copyright 2025 The ATP Authors
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

// Package eventqueue provides per-task fan-out of task lifecycle events to
// streaming subscribers.
package eventqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/atpproject/atp-go/atp"
)

// ErrQueueClosed indicates that the event queue has been closed.
var ErrQueueClosed = errors.New("queue is closed")

// Reader defines the interface for reading events from a queue.
// A Reader is owned by a single consumer goroutine.
type Reader interface {
	// Read dequeues an event or blocks until one is available, the queue is
	// closed, or the context is done. Returns ErrQueueClosed after the queue
	// has been closed and drained.
	Read(ctx context.Context) (atp.Event, error)

	// Close detaches the reader from further broadcasts.
	Close() error
}

// queue is an unbounded FIFO backing a single subscriber. Writes never block
// so a slow consumer cannot stall the publisher, which runs under the task
// manager's entry lock.
type queue struct {
	mu     sync.Mutex
	buf    []atp.Event
	closed bool

	// notify wakes the reader; capacity 1 is enough for a single consumer.
	notify chan struct{}

	onClose func(*queue)
}

var _ Reader = (*queue)(nil)

func newQueue(onClose func(*queue)) *queue {
	return &queue{
		notify:  make(chan struct{}, 1),
		onClose: onClose,
	}
}

func (q *queue) push(event atp.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, event)
	q.mu.Unlock()
	q.wake()
}

func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Read implements Reader. Buffered events are drained before ErrQueueClosed
// is reported.
func (q *queue) Read(ctx context.Context) (atp.Event, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			event := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return event, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close implements Reader.
func (q *queue) Close() error {
	q.close()
	if q.onClose != nil {
		q.onClose(q)
	}
	return nil
}
