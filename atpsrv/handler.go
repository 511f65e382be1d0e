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

// Package atpsrv implements the server side of the Agent Task Protocol: a
// task manager, a streaming dispatcher, agent card discovery and an HTTP+SSE
// transport binding.
package atpsrv

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/atpsrv/eventqueue"
	"github.com/atpproject/atp-go/atpsrv/taskstore"
	"github.com/atpproject/atp-go/internal/metrics"
	"github.com/atpproject/atp-go/internal/taskexec"
)

// RequestHandler defines a transport-agnostic interface for handling incoming
// protocol requests.
type RequestHandler interface {
	// GetTask handles the 'GetTask' protocol method.
	GetTask(context.Context, *atp.GetTaskRequest) (*atp.Task, error)

	// ListTasks handles the 'ListTasks' protocol method.
	ListTasks(context.Context, *atp.ListTasksRequest) (*atp.ListTasksResponse, error)

	// CancelTask handles the 'CancelTask' protocol method.
	CancelTask(context.Context, *atp.CancelTaskRequest) (*atp.Task, error)

	// SendMessage handles the 'SendMessage' protocol method (non-streaming).
	// It runs the task to its next stable state and returns the resulting
	// task snapshot.
	SendMessage(context.Context, *atp.SendMessageRequest) (*atp.Task, error)

	// SendStreamingMessage handles the 'SendStreamingMessage' protocol method.
	// The sequence opens with a full task snapshot and ends after a terminal
	// status event.
	SendStreamingMessage(context.Context, *atp.SendMessageRequest) iter.Seq2[atp.Event, error]

	// SubscribeToTask attaches to the event stream of an existing task.
	SubscribeToTask(context.Context, *atp.SubscribeToTaskRequest) (iter.Seq2[atp.Event, error], error)
}

// Implements RequestHandler on top of the task manager and dispatcher.
type defaultRequestHandler struct {
	store      *taskstore.Manager
	dispatcher *taskexec.Dispatcher
	metrics    *metrics.Metrics
}

var _ RequestHandler = (*defaultRequestHandler)(nil)

// RequestHandlerOption customizes the default [RequestHandler] implementation.
type RequestHandlerOption func(*handlerConfig)

type handlerConfig struct {
	timeProvider func() time.Time
	registerer   prometheus.Registerer
}

// WithTimeProvider overrides the task manager clock, used in tests.
func WithTimeProvider(now func() time.Time) RequestHandlerOption {
	return func(cfg *handlerConfig) {
		cfg.timeProvider = now
	}
}

// WithMetricsRegisterer enables Prometheus metrics collection using the
// provided registerer.
func WithMetricsRegisterer(reg prometheus.Registerer) RequestHandlerOption {
	return func(cfg *handlerConfig) {
		cfg.registerer = reg
	}
}

// NewRequestHandler builds the default server stack for the given catalog:
// an in-memory task manager publishing to a per-task event broker, and a
// dispatcher routing messages to catalog tools.
func NewRequestHandler(catalog Catalog, options ...RequestHandlerOption) RequestHandler {
	cfg := &handlerConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	var m *metrics.Metrics
	if cfg.registerer != nil {
		m = metrics.New(cfg.registerer)
	}

	broker := eventqueue.NewBroker()
	var publisher taskstore.Publisher = broker
	if m != nil {
		publisher = m.ObservePublisher(broker)
	}

	store := taskstore.NewManager(&taskstore.ManagerConfig{
		Publisher:    publisher,
		TimeProvider: cfg.timeProvider,
	})
	dispatcher := taskexec.NewDispatcher(taskexec.Config{
		Store:    store,
		Broker:   broker,
		Executor: NewCatalogExecutor(catalog),
	})

	return &defaultRequestHandler{store: store, dispatcher: dispatcher, metrics: m}
}

// GetTask implements RequestHandler.
func (h *defaultRequestHandler) GetTask(ctx context.Context, req *atp.GetTaskRequest) (*atp.Task, error) {
	return h.store.Get(ctx, req.ID, req.IncludeHistory)
}

// ListTasks implements RequestHandler.
func (h *defaultRequestHandler) ListTasks(ctx context.Context, req *atp.ListTasksRequest) (*atp.ListTasksResponse, error) {
	return h.store.List(ctx, req)
}

// CancelTask implements RequestHandler. Cancelling does not interrupt an
// in-flight executor; its late results are discarded.
func (h *defaultRequestHandler) CancelTask(ctx context.Context, req *atp.CancelTaskRequest) (*atp.Task, error) {
	return h.store.Cancel(ctx, req.ID)
}

// SendMessage implements RequestHandler.
func (h *defaultRequestHandler) SendMessage(ctx context.Context, req *atp.SendMessageRequest) (*atp.Task, error) {
	task, err := h.upsertTask(ctx, req)
	if err != nil {
		return nil, err
	}

	execution, err := h.dispatcher.Execute(ctx, task, req.Message)
	if err != nil {
		return nil, err
	}
	return execution.Wait(ctx)
}

// SendStreamingMessage implements RequestHandler.
func (h *defaultRequestHandler) SendStreamingMessage(ctx context.Context, req *atp.SendMessageRequest) iter.Seq2[atp.Event, error] {
	return func(yield func(atp.Event, error) bool) {
		task, err := h.upsertTask(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}

		events, err := h.dispatcher.Subscribe(ctx, task.ID)
		if err != nil {
			yield(nil, err)
			return
		}

		if _, err := h.dispatcher.Execute(ctx, task, req.Message); err != nil {
			yield(nil, err)
			return
		}

		for event, err := range events {
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// SubscribeToTask implements RequestHandler.
func (h *defaultRequestHandler) SubscribeToTask(ctx context.Context, req *atp.SubscribeToTaskRequest) (iter.Seq2[atp.Event, error], error) {
	events, err := h.dispatcher.Subscribe(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.SubscriberAttached()
		return func(yield func(atp.Event, error) bool) {
			defer h.metrics.SubscriberDetached()
			for event, err := range events {
				if !yield(event, err) {
					return
				}
			}
		}, nil
	}
	return events, nil
}

// upsertTask creates a task for a first message or appends a follow-up
// message to the task it references.
func (h *defaultRequestHandler) upsertTask(ctx context.Context, req *atp.SendMessageRequest) (*atp.Task, error) {
	if req == nil || req.Message == nil {
		return nil, fmt.Errorf("%w: message is required", atp.ErrMalformedMessage)
	}

	if req.Message.TaskID != "" {
		return h.store.AppendMessage(ctx, req.Message.TaskID, req.Message)
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = req.Message.ContextID
	}
	return h.store.Create(ctx, contextID, req.Message, nil)
}
