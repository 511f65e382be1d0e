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

// Package metrics collects Prometheus metrics for the protocol server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/atpsrv/taskstore"
)

// Metrics holds the task-level Prometheus collectors.
type Metrics struct {
	tasksCreated     prometheus.Counter
	stateTransitions *prometheus.CounterVec
	subscribers      prometheus.Gauge
}

// New creates the task collectors and registers them with the provided
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atp_tasks_created_total",
			Help: "Total number of tasks created.",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atp_task_state_transitions_total",
			Help: "Total number of task state transitions by target state.",
		}, []string{"state"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atp_active_subscribers",
			Help: "Number of currently attached event stream subscribers.",
		}),
	}
	reg.MustRegister(m.tasksCreated, m.stateTransitions, m.subscribers)
	return m
}

// TaskCreated records a task creation.
func (m *Metrics) TaskCreated() {
	m.tasksCreated.Inc()
}

// StateTransition records a transition into the given state.
func (m *Metrics) StateTransition(state atp.TaskState) {
	m.stateTransitions.WithLabelValues(string(state)).Inc()
}

// SubscriberAttached records a new event stream subscriber.
func (m *Metrics) SubscriberAttached() {
	m.subscribers.Inc()
}

// SubscriberDetached records a subscriber going away.
func (m *Metrics) SubscriberDetached() {
	m.subscribers.Dec()
}

// observedPublisher counts task events on their way to the wrapped publisher.
type observedPublisher struct {
	m    *Metrics
	next taskstore.Publisher
}

// ObservePublisher decorates a publisher so task creations and state
// transitions are counted as they happen.
func (m *Metrics) ObservePublisher(next taskstore.Publisher) taskstore.Publisher {
	return &observedPublisher{m: m, next: next}
}

func (p *observedPublisher) Publish(ctx context.Context, event atp.Event) {
	switch e := event.(type) {
	case *atp.Task:
		p.m.TaskCreated()
	case *atp.TaskStatusUpdateEvent:
		p.m.StateTransition(e.Status.State)
	}
	p.next.Publish(ctx, event)
}

func (p *observedPublisher) Finish(ctx context.Context, taskID atp.TaskID) {
	p.next.Finish(ctx, taskID)
}

// HTTP holds the request-level Prometheus collectors. They are separate from
// [Metrics] so the transport binding and the request handler can register
// against the same registerer without colliding.
type HTTP struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTP creates the request collectors and registers them with the provided
// registerer.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	h := &HTTP{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atp_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"method", "path", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atp_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(h.requestsTotal, h.requestDuration)
	return h
}

// statusWriter captures the response status code for labeling. Flush is
// forwarded so SSE streaming keeps working behind the middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments an HTTP handler with request count and latency
// metrics. The path label uses the routing pattern, not the raw URL, to keep
// cardinality bounded.
func (h *HTTP) Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		h.requestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		h.requestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
