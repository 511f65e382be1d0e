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

// Package taskexec drives asynchronous tool execution for tasks and bridges
// task manager mutations to streaming subscribers.
package taskexec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/atpsrv/eventqueue"
	"github.com/atpproject/atp-go/atpsrv/taskstore"
	"github.com/atpproject/atp-go/log"
)

// ErrExecutionInProgress is returned when a caller attempts to start an
// execution for a task concurrently with another execution.
var ErrExecutionInProgress = errors.New("task execution is already in progress")

// Result is what an executor produced for one inbound message.
type Result struct {
	// Artifact is an optional output appended to the task before the status
	// transition.
	Artifact *atp.Artifact

	// State is the next stable state: completed, input-required or
	// auth-required. Zero value means completed.
	State atp.TaskState

	// Message is recorded as status.message of the resulting state.
	Message string
}

// Executor performs the work for one inbound message. Errors and panics are
// caught at the dispatcher boundary and turn into a failed task, never a
// transport-level crash.
type Executor interface {
	Execute(ctx context.Context, task *atp.Task, message *atp.Message) (*Result, error)
}

// Config contains Dispatcher dependencies.
type Config struct {
	Store    *taskstore.Manager
	Broker   *eventqueue.Broker
	Executor Executor
}

// Dispatcher runs executions in detached goroutines. Executions survive the
// request that started them: disconnecting a caller never cancels a task.
// There can be at most one active execution per task.
type Dispatcher struct {
	store    *taskstore.Manager
	broker   *eventqueue.Broker
	executor Executor
	tracer   trace.Tracer

	mu         sync.Mutex
	executions map[atp.TaskID]*Execution
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		store:      cfg.Store,
		broker:     cfg.Broker,
		executor:   cfg.Executor,
		tracer:     otel.Tracer("atp/taskexec"),
		executions: make(map[atp.TaskID]*Execution),
	}
}

// Execution is a handle to an in-flight task execution.
type Execution struct {
	taskID atp.TaskID
	result *promise
}

// Wait blocks until the execution reaches its next stable state and returns
// the task snapshot at that point.
func (e *Execution) Wait(ctx context.Context) (*atp.Task, error) {
	return e.result.wait(ctx)
}

// Execute starts executing the message against the task in a detached
// goroutine and returns immediately. The execution continues even if the
// caller's context is cancelled.
func (d *Dispatcher) Execute(ctx context.Context, task *atp.Task, message *atp.Message) (*Execution, error) {
	execution := &Execution{taskID: task.ID, result: newPromise()}

	d.mu.Lock()
	if _, ok := d.executions[task.ID]; ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExecutionInProgress, task.ID)
	}
	d.executions[task.ID] = execution
	d.mu.Unlock()

	detachedCtx := context.WithoutCancel(ctx)
	go d.run(detachedCtx, execution, task, message)

	return execution, nil
}

func (d *Dispatcher) run(ctx context.Context, execution *Execution, task *atp.Task, message *atp.Message) {
	defer func() {
		d.mu.Lock()
		delete(d.executions, execution.taskID)
		d.mu.Unlock()
	}()

	ctx, span := d.tracer.Start(ctx, "atp.execute", trace.WithAttributes(
		attribute.String("task.id", string(task.ID)),
		attribute.String("context.id", task.ContextID),
	))
	defer span.End()

	if _, err := d.store.UpdateStatus(ctx, task.ID, atp.TaskStateWorking, ""); err != nil {
		// The task was cancelled or otherwise finished before execution
		// started. Resolve with whatever the task looks like now.
		log.Warn(ctx, "skipping execution of a finished task", "task_id", task.ID, "error", err)
		d.resolveWithSnapshot(ctx, execution)
		return
	}

	result, err := d.safeExecute(ctx, task, message)
	if err != nil {
		span.RecordError(err)
		log.Info(ctx, "task execution failed", "task_id", task.ID, "error", err)
		if _, failErr := d.store.Fail(ctx, task.ID, err.Error()); failErr != nil {
			d.discardLateResult(ctx, task.ID, failErr)
		}
		d.resolveWithSnapshot(ctx, execution)
		return
	}

	if result.Artifact != nil {
		if _, err := d.store.AppendArtifact(ctx, task.ID, result.Artifact); err != nil {
			d.discardLateResult(ctx, task.ID, err)
			d.resolveWithSnapshot(ctx, execution)
			return
		}
	}

	state := result.State
	if state == atp.TaskStateUnspecified {
		state = atp.TaskStateCompleted
	}
	if _, err := d.store.UpdateStatus(ctx, task.ID, state, result.Message); err != nil {
		d.discardLateResult(ctx, task.ID, err)
	}
	d.resolveWithSnapshot(ctx, execution)
}

// safeExecute invokes the executor with panic recovery so collaborator bugs
// surface as task failures.
func (d *Dispatcher) safeExecute(ctx context.Context, task *atp.Task, message *atp.Message) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("executor panic: %v", r)
		}
	}()

	result, err = d.executor.Execute(ctx, task, message)
	if err == nil && result == nil {
		result = &Result{}
	}
	return result, err
}

// discardLateResult logs and drops an executor result that arrived after the
// task reached a terminal state. Intentional: never an error to the executor.
func (d *Dispatcher) discardLateResult(ctx context.Context, taskID atp.TaskID, err error) {
	if errors.Is(err, atp.ErrTaskTerminal) {
		log.Warn(ctx, "discarding late executor result for finished task", "task_id", taskID)
		return
	}
	log.Error(ctx, "failed to record executor result", err, "task_id", taskID)
}

func (d *Dispatcher) resolveWithSnapshot(ctx context.Context, execution *Execution) {
	task, err := d.store.Get(ctx, execution.taskID, true)
	if err != nil {
		execution.result.setError(err)
		return
	}
	execution.result.setValue(task)
}
