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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/atpsrv/eventqueue"
	"github.com/atpproject/atp-go/atpsrv/taskstore"
)

type executorFn func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error)

func (fn executorFn) Execute(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
	return fn(ctx, task, message)
}

type fixture struct {
	store      *taskstore.Manager
	broker     *eventqueue.Broker
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, executor Executor) *fixture {
	t.Helper()
	broker := eventqueue.NewBroker()
	store := taskstore.NewManager(&taskstore.ManagerConfig{Publisher: broker})
	return &fixture{
		store:  store,
		broker: broker,
		dispatcher: NewDispatcher(Config{
			Store:    store,
			Broker:   broker,
			Executor: executor,
		}),
	}
}

func mustCreateTask(t *testing.T, store *taskstore.Manager) *atp.Task {
	t.Helper()
	msg := atp.NewMessage(atp.MessageRoleUser, atp.NewTextPart("run"))
	task, err := store.Create(t.Context(), "", msg, nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return task
}

func mustExecuteAndWait(t *testing.T, f *fixture, task *atp.Task) *atp.Task {
	t.Helper()
	execution, err := f.dispatcher.Execute(t.Context(), task, task.History[0])
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	got, err := execution.Wait(t.Context())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	return got
}

func TestDispatcher_ExecuteToCompleted(t *testing.T) {
	artifact := atp.NewArtifact(atp.NewDataPart(map[string]any{"result": 5.0}))
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{Artifact: artifact, Message: "done"}, nil
	}))

	task := mustCreateTask(t, f.store)
	got := mustExecuteAndWait(t, f, task)

	if got.Status.State != atp.TaskStateCompleted {
		t.Errorf("Status.State = %q, want %q", got.Status.State, atp.TaskStateCompleted)
	}
	if got.Status.Message != "done" {
		t.Errorf("Status.Message = %q, want %q", got.Status.Message, "done")
	}
	if len(got.Artifacts) != 1 {
		t.Fatalf("len(Artifacts) = %d, want 1", len(got.Artifacts))
	}
	if diff := cmp.Diff(artifact.Parts, got.Artifacts[0].Parts); diff != "" {
		t.Errorf("artifact parts mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_ExecutorErrorFailsTask(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return nil, errors.New("tool exploded")
	}))

	task := mustCreateTask(t, f.store)
	got := mustExecuteAndWait(t, f, task)

	if got.Status.State != atp.TaskStateFailed {
		t.Errorf("Status.State = %q, want %q", got.Status.State, atp.TaskStateFailed)
	}
	if got.Status.Message == "" {
		t.Error("Status.Message is empty, want the failure reason")
	}
}

func TestDispatcher_ExecutorPanicFailsTask(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		panic("unexpected")
	}))

	task := mustCreateTask(t, f.store)
	got := mustExecuteAndWait(t, f, task)

	if got.Status.State != atp.TaskStateFailed {
		t.Errorf("Status.State = %q, want %q", got.Status.State, atp.TaskStateFailed)
	}
}

func TestDispatcher_InputRequiredResult(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{State: atp.TaskStateInputRequired, Message: "need more"}, nil
	}))

	task := mustCreateTask(t, f.store)
	got := mustExecuteAndWait(t, f, task)

	if got.Status.State != atp.TaskStateInputRequired {
		t.Errorf("Status.State = %q, want %q", got.Status.State, atp.TaskStateInputRequired)
	}
}

// A task cancelled while the executor is still running keeps its cancelled
// state; the late result is discarded without error.
func TestDispatcher_LateResultDiscardedAfterCancel(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		<-release
		return &Result{Artifact: atp.NewArtifact(atp.NewTextPart("late"))}, nil
	}))

	task := mustCreateTask(t, f.store)
	execution, err := f.dispatcher.Execute(t.Context(), task, task.History[0])
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	waitForState(t, f.store, task.ID, atp.TaskStateWorking)
	if _, err := f.store.Cancel(t.Context(), task.ID); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	close(release)

	got, err := execution.Wait(t.Context())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if got.Status.State != atp.TaskStateCancelled {
		t.Errorf("Status.State = %q, want %q", got.Status.State, atp.TaskStateCancelled)
	}
	if len(got.Artifacts) != 0 {
		t.Errorf("late artifact was appended to a terminal task: %v", got.Artifacts)
	}
}

func TestDispatcher_RejectsConcurrentExecution(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		<-release
		return &Result{}, nil
	}))

	task := mustCreateTask(t, f.store)
	if _, err := f.dispatcher.Execute(t.Context(), task, task.History[0]); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if _, err := f.dispatcher.Execute(t.Context(), task, task.History[0]); !errors.Is(err, ErrExecutionInProgress) {
		t.Errorf("second Execute() error = %v, want ErrExecutionInProgress", err)
	}
}

func TestDispatcher_SubscribeStreamsUntilTerminal(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{Artifact: atp.NewArtifact(atp.NewTextPart("out"))}, nil
	}))

	task := mustCreateTask(t, f.store)
	events, err := f.dispatcher.Subscribe(t.Context(), task.ID)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if _, err := f.dispatcher.Execute(t.Context(), task, task.History[0]); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var names []string
	var lastStatus atp.TaskStatus
	for event, err := range events {
		if err != nil {
			t.Fatalf("event stream error: %v", err)
		}
		names = append(names, event.EventName())
		if status, ok := event.(*atp.TaskStatusUpdateEvent); ok {
			lastStatus = status.Status
		}
	}

	want := []string{"taskCreated", "taskStatus", "taskArtifact", "taskStatus"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if lastStatus.State != atp.TaskStateCompleted {
		t.Errorf("final status = %q, want %q", lastStatus.State, atp.TaskStateCompleted)
	}
}

// Status events observed by a subscriber match the states readable from the
// store at each transition boundary.
func TestDispatcher_SubscriberSeesMutationOrder(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{}, nil
	}))

	task := mustCreateTask(t, f.store)
	events, err := f.dispatcher.Subscribe(t.Context(), task.ID)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if _, err := f.dispatcher.Execute(t.Context(), task, task.History[0]); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var gotStates []atp.TaskState
	for event, err := range events {
		if err != nil {
			t.Fatalf("event stream error: %v", err)
		}
		if status, ok := event.(*atp.TaskStatusUpdateEvent); ok {
			gotStates = append(gotStates, status.Status.State)
		}
	}
	wantStates := []atp.TaskState{atp.TaskStateWorking, atp.TaskStateCompleted}
	if diff := cmp.Diff(wantStates, gotStates); diff != "" {
		t.Errorf("status subsequence mismatch (-want +got):\n%s", diff)
	}
}

// Subscribing to a terminal task twice yields the same single terminal event.
func TestDispatcher_SubscribeTerminalIdempotent(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{}, nil
	}))

	task := mustCreateTask(t, f.store)
	mustExecuteAndWait(t, f, task)

	var snapshots [][]atp.Event
	for range 2 {
		events, err := f.dispatcher.Subscribe(t.Context(), task.ID)
		if err != nil {
			t.Fatalf("Subscribe() failed: %v", err)
		}
		var collected []atp.Event
		for event, err := range events {
			if err != nil {
				t.Fatalf("event stream error: %v", err)
			}
			collected = append(collected, event)
		}
		snapshots = append(snapshots, collected)
	}

	if len(snapshots[0]) != 1 {
		t.Fatalf("terminal subscribe yielded %d events, want 1", len(snapshots[0]))
	}
	if diff := cmp.Diff(snapshots[0], snapshots[1]); diff != "" {
		t.Errorf("repeated terminal subscribe mismatch (-first +second):\n%s", diff)
	}
	status, ok := snapshots[0][0].(*atp.TaskStatusUpdateEvent)
	if !ok || !status.Status.State.Terminal() {
		t.Errorf("terminal subscribe event = %#v, want terminal taskStatus", snapshots[0][0])
	}
}

func TestDispatcher_SubscribeUnknownTask(t *testing.T) {
	f := newFixture(t, executorFn(func(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error) {
		return &Result{}, nil
	}))

	if _, err := f.dispatcher.Subscribe(t.Context(), atp.NewTaskID()); !errors.Is(err, atp.ErrTaskNotFound) {
		t.Errorf("Subscribe() error = %v, want ErrTaskNotFound", err)
	}
}

func waitForState(t *testing.T, store *taskstore.Manager, id atp.TaskID, want atp.TaskState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(t.Context(), id, false)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if task.Status.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", id, want)
}
