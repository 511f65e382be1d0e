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

package eventqueue

import (
	"context"
	"sync"

	"github.com/atpproject/atp-go/atp"
)

// Broker is an in-memory per-task event fan-out. The task manager publishes
// exactly one event per successful mutation; every subscriber attached at
// publish time observes events in publish order.
//
// Publish never blocks on subscribers. Finish closes all subscriber queues
// for a task after buffered events are drained by their readers.
type Broker struct {
	mu   sync.Mutex
	subs map[atp.TaskID][]*queue
}

// NewBroker creates a new in-memory event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[atp.TaskID][]*queue)}
}

// Subscribe attaches a new reader to the task's event stream. Events published
// before the subscription are not replayed; callers snapshot the task after
// subscribing to avoid gaps.
func (b *Broker) Subscribe(ctx context.Context, taskID atp.TaskID) (Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := newQueue(func(closed *queue) { b.detach(taskID, closed) })
	b.subs[taskID] = append(b.subs[taskID], q)
	return q, nil
}

// Publish broadcasts the event to all subscribers of its task.
func (b *Broker) Publish(ctx context.Context, event atp.Event) {
	taskID := event.TaskInfo().TaskID

	b.mu.Lock()
	qs := make([]*queue, len(b.subs[taskID]))
	copy(qs, b.subs[taskID])
	b.mu.Unlock()

	for _, q := range qs {
		q.push(event)
	}
}

// Finish closes all subscriber queues for the task and forgets it. Buffered
// events remain readable until each queue is drained.
func (b *Broker) Finish(ctx context.Context, taskID atp.TaskID) {
	b.mu.Lock()
	qs := b.subs[taskID]
	delete(b.subs, taskID)
	b.mu.Unlock()

	for _, q := range qs {
		q.close()
	}
}

func (b *Broker) detach(taskID atp.TaskID, closed *queue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	qs := b.subs[taskID]
	for i, q := range qs {
		if q == closed {
			b.subs[taskID] = append(qs[:i], qs[i+1:]...)
			break
		}
	}
	if len(b.subs[taskID]) == 0 {
		delete(b.subs, taskID)
	}
}
