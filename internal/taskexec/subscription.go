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

package taskexec

import (
	"context"
	"errors"
	"iter"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/atpsrv/eventqueue"
	"github.com/atpproject/atp-go/log"
)

// Subscribe attaches to a task's event stream. The sequence opens with a full
// task snapshot, then follows live mutations in order, and ends once a
// terminal status event has been delivered.
//
// For a task that is already terminal, a single terminal status event is
// synthesized and the sequence closes; repeated calls yield the same snapshot.
func (d *Dispatcher) Subscribe(ctx context.Context, taskID atp.TaskID) (iter.Seq2[atp.Event, error], error) {
	reader, err := d.broker.Subscribe(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Snapshot after subscribing: any mutation past this point is guaranteed
	// to arrive on the reader, so the stream never misses the terminal event.
	task, err := d.store.Get(ctx, taskID, true)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	if task.Status.State.Terminal() {
		_ = reader.Close()
		return terminalSequence(task), nil
	}

	return liveSequence(ctx, task, reader), nil
}

// terminalSequence yields the single synthesized terminal status event.
func terminalSequence(task *atp.Task) iter.Seq2[atp.Event, error] {
	return func(yield func(atp.Event, error) bool) {
		yield(atp.NewStatusUpdateEvent(task, task.Status), nil)
	}
}

// liveSequence yields the snapshot followed by broker events until a terminal
// status event is delivered or the consumer stops.
func liveSequence(ctx context.Context, task *atp.Task, reader eventqueue.Reader) iter.Seq2[atp.Event, error] {
	return func(yield func(atp.Event, error) bool) {
		defer func() {
			if err := reader.Close(); err != nil {
				log.Warn(ctx, "subscription close failed", "error", err)
			}
		}()

		if !yield(task, nil) {
			return
		}

		for {
			event, err := reader.Read(ctx)
			if errors.Is(err, eventqueue.ErrQueueClosed) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(event, nil) {
				return
			}
			if status, ok := event.(*atp.TaskStatusUpdateEvent); ok && status.Status.State.Terminal() {
				return
			}
		}
	}
}
